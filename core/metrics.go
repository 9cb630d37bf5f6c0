package core

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics tracks cache and mutation activity. Counters are atomic so
// backends and the executor can record without coordination; Snapshot
// is for tests and the CLI, the OTel instruments feed whatever meter
// provider the host application installed.
type Metrics struct {
	Hits              atomic.Int64
	Misses            atomic.Int64
	Invalidations     atomic.Int64
	OptimisticApplies atomic.Int64
	Rollbacks         atomic.Int64
	Errors            atomic.Int64
	BytesCached       atomic.Int64

	otelHits          metric.Int64Counter
	otelMisses        metric.Int64Counter
	otelInvalidations metric.Int64Counter
	otelApplies       metric.Int64Counter
	otelRollbacks     metric.Int64Counter
	otelErrors        metric.Int64Counter
	otelBytesCached   metric.Int64UpDownCounter
}

// NewMetrics creates metrics with OTel instruments registered under
// the fm-sync meter.
func NewMetrics() *Metrics {
	m := &Metrics{}
	meter := otel.Meter("buildstate.com/fm-sync")

	m.otelHits, _ = meter.Int64Counter("fmsync.cache.hits",
		metric.WithDescription("Number of cache hits"))
	m.otelMisses, _ = meter.Int64Counter("fmsync.cache.misses",
		metric.WithDescription("Number of cache misses"))
	m.otelInvalidations, _ = meter.Int64Counter("fmsync.cache.invalidations",
		metric.WithDescription("Number of cache invalidations"))
	m.otelApplies, _ = meter.Int64Counter("fmsync.mutation.optimistic_applies",
		metric.WithDescription("Number of optimistic patches applied"))
	m.otelRollbacks, _ = meter.Int64Counter("fmsync.mutation.rollbacks",
		metric.WithDescription("Number of mutation rollbacks"))
	m.otelErrors, _ = meter.Int64Counter("fmsync.errors",
		metric.WithDescription("Number of cache or mutation errors"))
	m.otelBytesCached, _ = meter.Int64UpDownCounter("fmsync.cache.bytes_cached",
		metric.WithDescription("Total bytes stored in cache"))

	return m
}

func (m *Metrics) RecordHit(ctx context.Context) {
	m.Hits.Add(1)
	if m.otelHits != nil {
		m.otelHits.Add(ctx, 1)
	}
}

func (m *Metrics) RecordMiss(ctx context.Context) {
	m.Misses.Add(1)
	if m.otelMisses != nil {
		m.otelMisses.Add(ctx, 1)
	}
}

func (m *Metrics) RecordInvalidation(ctx context.Context, n int64) {
	m.Invalidations.Add(n)
	if m.otelInvalidations != nil {
		m.otelInvalidations.Add(ctx, n)
	}
}

func (m *Metrics) RecordOptimisticApply(ctx context.Context) {
	m.OptimisticApplies.Add(1)
	if m.otelApplies != nil {
		m.otelApplies.Add(ctx, 1)
	}
}

func (m *Metrics) RecordRollback(ctx context.Context) {
	m.Rollbacks.Add(1)
	if m.otelRollbacks != nil {
		m.otelRollbacks.Add(ctx, 1)
	}
}

func (m *Metrics) RecordError(ctx context.Context) {
	m.Errors.Add(1)
	if m.otelErrors != nil {
		m.otelErrors.Add(ctx, 1)
	}
}

func (m *Metrics) AddBytesCached(ctx context.Context, n int64) {
	m.BytesCached.Add(n)
	if m.otelBytesCached != nil {
		m.otelBytesCached.Add(ctx, n)
	}
}

// Snapshot returns current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"hits":               m.Hits.Load(),
		"misses":             m.Misses.Load(),
		"invalidations":      m.Invalidations.Load(),
		"optimistic_applies": m.OptimisticApplies.Load(),
		"rollbacks":          m.Rollbacks.Load(),
		"errors":             m.Errors.Load(),
		"bytes_cached":       m.BytesCached.Load(),
	}
}

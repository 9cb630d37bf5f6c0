package serv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"

	"github.com/buildstate/fm-sync/core"
)

// Hardcoded constants for cache behavior
const (
	redisKeyPrefix       = "fmsync:cache:"        // slot keys
	redisIndexPrefix     = "fmsync:idx:"          // prefix -> member slot hashes
	compressionThreshold = 1024                   // only compress > 1KB
	redisTimeout         = 100 * time.Millisecond // per-op timeout
	redisRetryInterval   = 30 * time.Second       // ping interval when unavailable
)

// redisCacheEntry is the wire form of one cached entry.
type redisCacheEntry struct {
	Payload    []byte   `json:"p"`
	Compressed bool     `json:"c,omitempty"`
	Key        []string `json:"k"`
	StoredAt   int64    `json:"s"`
	FreshUntil int64    `json:"f"`
}

// redisEntryBody is the entry content inside Payload. Fetch errors are
// not shared across processes; only success entries go to Redis.
type redisEntryBody struct {
	Data      *core.Collection `json:"d"`
	Status    core.Status      `json:"st"`
	UpdatedAt time.Time        `json:"u"`
}

// RedisCache is the shared backend for deployments where several
// workers serve one account and must see each other's writes. Hard TTL
// is delegated to Redis key expiry; the fresh TTL rides in the entry.
type RedisCache struct {
	client    *redis.Client
	conf      CachingConfig
	metrics   *core.Metrics
	available atomic.Bool
	lastCheck atomic.Int64
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(redisURL string, conf CachingConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	rc := &RedisCache{
		client:  client,
		conf:    conf,
		metrics: core.NewMetrics(),
	}
	rc.available.Store(true)
	return rc, nil
}

// checkAvailable retries a previously failed connection at most once
// per retry interval, so a Redis outage degrades to cache misses
// instead of per-request timeouts.
func (rc *RedisCache) checkAvailable(ctx context.Context) bool {
	if rc.available.Load() {
		return true
	}
	now := time.Now().Unix()
	last := rc.lastCheck.Load()
	if now-last < int64(redisRetryInterval.Seconds()) {
		return false
	}
	if !rc.lastCheck.CompareAndSwap(last, now) {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := rc.client.Ping(pctx).Err(); err != nil {
		return false
	}
	rc.available.Store(true)
	return true
}

// Get retrieves the entry for a key.
// Returns (entry, isStale, found).
func (rc *RedisCache) Get(ctx context.Context, key core.Key) (*core.Entry, bool, bool) {
	if !rc.checkAvailable(ctx) {
		rc.metrics.RecordMiss(ctx)
		return nil, false, false
	}

	octx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	raw, err := rc.client.Get(octx, redisKeyPrefix+key.Hash()).Bytes()
	if err == redis.Nil {
		rc.metrics.RecordMiss(ctx)
		return nil, false, false
	}
	if err != nil {
		rc.available.Store(false)
		rc.lastCheck.Store(time.Now().Unix())
		rc.metrics.RecordError(ctx)
		return nil, false, false
	}

	var wire redisCacheEntry
	if err := json.Unmarshal(raw, &wire); err != nil {
		rc.metrics.RecordError(ctx)
		return nil, false, false
	}

	payload := wire.Payload
	if wire.Compressed {
		payload, err = decompress(payload)
		if err != nil {
			rc.metrics.RecordError(ctx)
			return nil, false, false
		}
	}

	var body redisEntryBody
	if err := json.Unmarshal(payload, &body); err != nil {
		rc.metrics.RecordError(ctx)
		return nil, false, false
	}

	rc.metrics.RecordHit(ctx)

	isStale := wire.FreshUntil > 0 && time.Now().Unix() >= wire.FreshUntil
	e := &core.Entry{
		Key:       core.Key(wire.Key),
		Data:      body.Data,
		Status:    body.Status,
		UpdatedAt: body.UpdatedAt,
	}
	return e, isStale, true
}

// Set stores an entry under its key and indexes every prefix of the
// key so Invalidate can find it.
func (rc *RedisCache) Set(ctx context.Context, key core.Key, e *core.Entry) error {
	if !rc.checkAvailable(ctx) {
		return nil
	}
	// Error entries are process-local state, not shared truth.
	if e.Status == core.StatusError {
		return nil
	}

	payload, err := json.Marshal(redisEntryBody{
		Data:      e.Data,
		Status:    e.Status,
		UpdatedAt: e.UpdatedAt,
	})
	if err != nil {
		return err
	}

	compressed := false
	if len(payload) > compressionThreshold {
		if compData, cerr := compress(payload); cerr == nil && len(compData) < len(payload) {
			payload = compData
			compressed = true
		}
	}

	now := time.Now()
	wire := redisCacheEntry{
		Payload:    payload,
		Compressed: compressed,
		Key:        key,
		StoredAt:   now.Unix(),
	}

	ttl := time.Duration(rc.conf.TTL) * time.Second
	if rc.conf.FreshTTL > 0 {
		wire.FreshUntil = now.Add(time.Duration(rc.conf.FreshTTL) * time.Second).Unix()
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	octx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	hash := key.Hash()
	pipe := rc.client.Pipeline()
	pipe.Set(octx, redisKeyPrefix+hash, raw, ttl)
	for i := 1; i <= len(key); i++ {
		idx := redisIndexPrefix + core.Key(key[:i]).Hash()
		pipe.SAdd(octx, idx, hash)
		if ttl > 0 {
			pipe.Expire(octx, idx, ttl)
		}
	}
	if _, err := pipe.Exec(octx); err != nil {
		rc.available.Store(false)
		rc.lastCheck.Store(time.Now().Unix())
		return err
	}
	rc.metrics.AddBytesCached(ctx, int64(len(raw)))
	return nil
}

// Delete removes one slot.
func (rc *RedisCache) Delete(ctx context.Context, key core.Key) error {
	if !rc.checkAvailable(ctx) {
		return nil
	}
	octx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	return rc.client.Del(octx, redisKeyPrefix+key.Hash()).Err()
}

// Invalidate drops every entry indexed under the prefix.
func (rc *RedisCache) Invalidate(ctx context.Context, prefix core.Key) error {
	if !rc.checkAvailable(ctx) {
		return nil
	}
	octx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	idx := redisIndexPrefix + prefix.Hash()
	hashes, err := rc.client.SMembers(octx, idx).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, redisKeyPrefix+h)
	}
	keys = append(keys, idx)

	if err := rc.client.Del(octx, keys...).Err(); err != nil {
		return err
	}
	rc.metrics.RecordInvalidation(ctx, int64(len(hashes)))
	return nil
}

// Metrics returns the cache metrics
func (rc *RedisCache) Metrics() *core.Metrics { return rc.metrics }

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// compress gzips data using the fastest level; cache entries are
// written far more often than they are large.
func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

package serv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/buildstate/fm-sync/api"
	"github.com/buildstate/fm-sync/core"
)

func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fm-sync.yml")
	conf := `
api_base_url: ` + baseURL + `
api_token: test-token
log_level: debug
cache_backend: memory
caching:
  ttl: 3600
  fresh_ttl: 300
`
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	return path
}

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conf, err := ReadInConfig(writeTestConfig(t, srv.URL))
	require.NoError(t, err)

	s, err := NewService(conf, OptionSetZapLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	s.Start(context.Background())
	return s
}

func TestReadInConfig(t *testing.T) {
	conf, err := ReadInConfig(writeTestConfig(t, "https://api.example.com"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", conf.APIBaseURL)
	assert.Equal(t, "memory", conf.CacheBackend)
	assert.Equal(t, 3600, conf.Caching.TTL)
	assert.Equal(t, 300, conf.Caching.FreshTTL)
	assert.NoError(t, conf.Validate())
}

func TestConfigValidate(t *testing.T) {
	bad := &Config{CacheBackend: "redis"}
	assert.Error(t, bad.Validate(), "redis backend without url must fail")

	bad = &Config{APIBaseURL: "x", CacheBackend: "etcd"}
	assert.Error(t, bad.Validate(), "unknown backend must fail")
}

func TestServiceReadThrough(t *testing.T) {
	var listCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		listCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"jobs": []map[string]any{
				{"id": "j1", "status": "OPEN", "unitId": "u1"},
				{"id": "j2", "status": "ASSIGNED", "unitId": "u2"},
			},
		})
	})

	s := newTestService(t, mux)
	ctx := context.Background()

	col, err := s.Jobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, col.Len())

	// Second read is served from cache.
	col, err = s.Jobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, col.Len())
	assert.Equal(t, int64(1), listCalls.Load())
}

func TestServiceOptimisticUpdateAndCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"jobs":    []map[string]any{{"id": "j1", "status": "OPEN", "unitId": "u1"}},
		})
	})
	mux.HandleFunc("/jobs/j1/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"job":     map[string]any{"id": "j1", "status": "ASSIGNED", "unitId": "u1", "updatedAt": "2026-01-02T03:04:05Z"},
		})
	})

	s := newTestService(t, mux)
	ctx := context.Background()

	_, err := s.Jobs(ctx)
	require.NoError(t, err)

	doc, err := s.UpdateJobStatus(ctx, "j1", core.JobAssigned)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "ASSIGNED", doc["status"])

	col, err := s.Jobs(ctx)
	require.NoError(t, err)
	got := col.Find("j1")
	require.NotNil(t, got)
	assert.Equal(t, "ASSIGNED", got["status"])
	// Commit replaced the optimistic doc with the server's copy.
	assert.Equal(t, "2026-01-02T03:04:05Z", got["updatedAt"])
}

func TestServiceRollbackOnServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"jobs":    []map[string]any{{"id": "j1", "status": "OPEN", "unitId": "u1"}},
		})
	})
	mux.HandleFunc("/jobs/j1/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "boom"})
	})

	s := newTestService(t, mux)
	ctx := context.Background()

	_, err := s.Jobs(ctx)
	require.NoError(t, err)

	_, err = s.UpdateJobStatus(ctx, "j1", core.JobAssigned)
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindServer, apiErr.Kind)

	col, err := s.Jobs(ctx)
	require.NoError(t, err)
	got := col.Find("j1")
	require.NotNil(t, got)
	assert.Equal(t, "OPEN", got["status"], "failed write must leave the cache untouched")
	assert.Equal(t, int64(1), s.Metrics().Rollbacks.Load())
}

func TestServiceBlocksIllegalTransition(t *testing.T) {
	var statusCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"jobs":    []map[string]any{{"id": "j1", "status": "COMPLETED", "unitId": "u1"}},
		})
	})
	mux.HandleFunc("/jobs/j1/status", func(w http.ResponseWriter, r *http.Request) {
		statusCalls.Add(1)
	})

	s := newTestService(t, mux)
	ctx := context.Background()

	_, err := s.Jobs(ctx)
	require.NoError(t, err)

	_, err = s.UpdateJobStatus(ctx, "j1", core.JobOpen)
	require.Error(t, err)

	var terr *core.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, int64(0), statusCalls.Load(), "rejected transition must not reach the network")
}

func TestServiceStaleReadTriggersRefresh(t *testing.T) {
	var listCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		n := listCalls.Add(1)
		status := "OPEN"
		if n > 1 {
			status = "ASSIGNED"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"jobs":    []map[string]any{{"id": "j1", "status": status, "unitId": "u1"}},
		})
	})

	s := newTestService(t, mux)
	ctx := context.Background()

	_, err := s.Jobs(ctx)
	require.NoError(t, err)

	// Age the entry past its fresh TTL.
	mc := s.cache.(*MemoryCache)
	wrapped, ok := mc.cache.Get(core.Keys.Jobs.List().Hash())
	require.True(t, ok)
	wrapped.freshUntil = time.Now().Add(-time.Minute).Unix()

	// Stale read serves the old value immediately.
	col, err := s.Jobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OPEN", col.Find("j1")["status"])

	// The refresh pool revalidates in the background.
	require.Eventually(t, func() bool {
		col, err := s.Jobs(ctx)
		return err == nil && col.Find("j1") != nil && col.Find("j1")["status"] == "ASSIGNED"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServiceInvalidPayloadLeavesCacheUntouched(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			calls.Add(1)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"jobs":    []map[string]any{{"id": "j1", "status": "OPEN", "unitId": "u1"}},
		})
	})

	s := newTestService(t, mux)
	ctx := context.Background()

	_, err := s.Jobs(ctx)
	require.NoError(t, err)

	// Title is required; the reject must land before any cache write.
	_, err = s.CreateJob(ctx, api.CreateJobRequest{UnitID: "u1"})
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindValidation, apiErr.Kind)
	assert.Equal(t, int64(0), calls.Load(), "invalid payload must not reach the network")

	m := s.Metrics()
	assert.Equal(t, int64(0), m.OptimisticApplies.Load(), "invalid payload must not patch the cache")
	assert.Equal(t, int64(0), m.Rollbacks.Load(), "nothing applied, nothing to roll back")

	col, err := s.Jobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, col.Len(), "cached list must be exactly as fetched")
}

func TestServiceCreateJobAppearsImmediately(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			req["status"] = "OPEN"
			json.NewEncoder(w).Encode(map[string]any{"success": true, "job": req})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "jobs": []map[string]any{}})
	})

	s := newTestService(t, mux)
	ctx := context.Background()

	_, err := s.Jobs(ctx)
	require.NoError(t, err)

	doc, err := s.CreateJob(ctx, api.CreateJobRequest{
		UnitID: "u1",
		Title:  "Leaking tap",
	})
	require.NoError(t, err)
	require.NotNil(t, doc)

	col, err := s.Jobs(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, col.Len())
	assert.Equal(t, "Leaking tap", col.Items[0]["title"])
}

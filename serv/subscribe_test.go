package serv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/buildstate/fm-sync/core"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestListenerAppliesChangeEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		conn.WriteJSON(changeEvent{Entity: "jobs", ID: "j1"})
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	mc, _ := NewMemoryCache(CachingConfig{TTL: 3600})
	defer mc.Close()
	adapter := &storeAdapter{cache: mc}

	ctx := context.Background()
	jobs := core.Keys.Jobs.List()
	tenants := core.Keys.Tenants.List()
	adapter.Set(ctx, jobs, testEntry(jobs, core.Doc{"id": "j1"}))
	adapter.Set(ctx, tenants, testEntry(tenants, core.Doc{"id": "t1"}))

	l := newInvalidationListener(wsURL(srv), "tok", adapter, zaptest.NewLogger(t).Sugar())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.run(runCtx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := adapter.Get(ctx, jobs); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := adapter.Get(ctx, jobs); ok {
		t.Error("jobs entry survived a change event for its entity")
	}
	if _, ok := adapter.Get(ctx, tenants); !ok {
		t.Error("unrelated entity was invalidated")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop on context cancel")
	}
}

func TestListenReportsDialOutcome(t *testing.T) {
	mc, _ := NewMemoryCache(CachingConfig{TTL: 3600})
	defer mc.Close()
	adapter := &storeAdapter{cache: mc}
	log := zaptest.NewLogger(t).Sugar()

	// Failed dial: backoff must keep growing.
	bad := newInvalidationListener("ws://127.0.0.1:1/feed", "", adapter, log)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	connected, err := bad.listen(ctx)
	if connected {
		t.Error("unreachable feed reported as connected")
	}
	if err == nil {
		t.Error("unreachable feed returned no error")
	}

	// Successful dial that drops: backoff must reset.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	good := newInvalidationListener(wsURL(srv), "", adapter, log)
	connected, err = good.listen(ctx)
	if !connected {
		t.Error("established session not reported as connected")
	}
	if err == nil {
		t.Error("dropped session should surface the read error")
	}
}

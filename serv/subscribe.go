package serv

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/buildstate/fm-sync/core"
)

const (
	subscribeBackoffMin = time.Second
	subscribeBackoffMax = 30 * time.Second
)

// changeEvent is one entity-change notification from the API's
// websocket feed.
type changeEvent struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

// invalidationListener keeps a websocket open to the API's change feed
// and drops cached entries for entities other clients have modified.
// The connection is re-established with capped exponential backoff; a
// missed event at worst leaves an entry to age out via its TTL.
type invalidationListener struct {
	url   string
	token string
	store core.Store
	log   *zap.SugaredLogger
}

func newInvalidationListener(url, token string, store core.Store, log *zap.SugaredLogger) *invalidationListener {
	return &invalidationListener{url: url, token: token, store: store, log: log}
}

// run blocks until ctx is cancelled, reconnecting as needed. The
// backoff grows per failed dial and resets once a connection is
// established, so one long outage does not degrade reconnect latency
// forever.
func (l *invalidationListener) run(ctx context.Context) {
	backoff := subscribeBackoffMin

	for {
		if ctx.Err() != nil {
			return
		}
		connected, err := l.listen(ctx)
		if connected {
			backoff = subscribeBackoffMin
		}
		if err != nil && ctx.Err() == nil {
			l.log.Warnw("change feed disconnected", "error", err, "retry_in", backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > subscribeBackoffMax {
			backoff = subscribeBackoffMax
		}
	}
}

// listen dials the feed and consumes events until the connection
// drops. The bool reports whether the dial succeeded.
func (l *invalidationListener) listen(ctx context.Context) (bool, error) {
	hdr := http.Header{}
	if l.token != "" {
		hdr.Set("Authorization", "Bearer "+l.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, hdr)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	l.log.Infow("change feed connected", "url", l.url)

	// Unblock ReadJSON when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev changeEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return true, err
		}
		l.apply(ctx, ev)
	}
}

// apply drops the whole entity prefix. A change to one record can move
// it between list, unit and property scoped views, so anything finer
// risks keeping a stale list.
func (l *invalidationListener) apply(ctx context.Context, ev changeEvent) {
	if ev.Entity == "" {
		return
	}
	prefix := core.NewKey(ev.Entity)
	if err := l.store.Invalidate(ctx, prefix); err != nil {
		l.log.Warnw("change feed invalidation failed", "entity", ev.Entity, "error", err)
		return
	}
	l.log.Debugw("change feed invalidated", "entity", ev.Entity, "id", ev.ID)
}

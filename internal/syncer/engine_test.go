package syncer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safegreen/waconsole/internal/activity"
	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/cache"
	"github.com/safegreen/waconsole/internal/config"
	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/state"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *cache.DB, <-chan bus.Event) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := httpapi.New(srv.URL, "tok")
	if err != nil {
		t.Fatal(err)
	}

	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Default()
	b := bus.New()
	events, unsub := b.Subscribe("thread.", 64)
	t.Cleanup(unsub)

	runtime := state.NewRuntime()
	monitor := activity.NewMonitor(b, cfg.Poll)
	e := NewEngine(client, db, b, runtime, monitor, cfg, zap.NewNop())
	return e, db, events
}

func drainKinds(events <-chan bus.Event) []string {
	var kinds []string
	for {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		default:
			return kinds
		}
	}
}

func TestOpenAppliesResponse(t *testing.T) {
	e, db, events := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[{"id":100,"direction":"inbound","content":"oi","sent_at":1700000000000}],"last_message_id":100,"contact":{"name":"Ana","phone":"+55119"}}`))
	})

	if err := e.Open(context.Background(), 42); err != nil {
		t.Fatal(err)
	}

	entry, err := db.GetThread(42)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || len(entry.Messages) != 1 || entry.LastMessageID != 100 {
		t.Fatalf("cache entry = %+v", entry)
	}
	if entry.ContactName != "Ana" {
		t.Errorf("contact = %q", entry.ContactName)
	}

	kinds := drainKinds(events)
	var sawOpened, sawUpdated bool
	for _, k := range kinds {
		switch k {
		case "thread.opened":
			sawOpened = true
		case "thread.updated":
			sawUpdated = true
		}
	}
	if !sawOpened || !sawUpdated {
		t.Errorf("events = %v, want thread.opened and thread.updated", kinds)
	}
}

func TestEmptyPollTouchesOnlyFreshness(t *testing.T) {
	var polls atomic.Int64
	e, db, events := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"messages":[{"id":100,"direction":"inbound","content":"oi","sent_at":1}],"last_message_id":100}`))
			return
		}
		if got := r.URL.Query().Get("last_message_id"); got != "100" {
			t.Errorf("last_message_id = %q, want 100", got)
		}
		_, _ = w.Write([]byte(`{"messages":[],"last_message_id":100}`))
	})

	if err := e.Open(context.Background(), 42); err != nil {
		t.Fatal(err)
	}
	drainKinds(events)

	before, _ := db.GetThread(42)
	if err := e.pollOnce(context.Background(), 42, e.generation); err != nil {
		t.Fatal(err)
	}
	after, _ := db.GetThread(42)

	if len(after.Messages) != 1 || after.LastMessageID != 100 {
		t.Errorf("entry changed: %+v", after)
	}
	if after.FetchedAt.Before(before.FetchedAt) {
		t.Error("fetched_at went backwards")
	}
	for _, k := range drainKinds(events) {
		if k == "thread.updated" {
			t.Error("empty poll must not publish thread.updated")
		}
	}
}

func TestOpenSupersedesInFlight(t *testing.T) {
	release := make(chan struct{})
	e, db, events := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("thread_id") == "1" {
			<-release
			_, _ = w.Write([]byte(`{"messages":[{"id":10,"direction":"inbound","content":"stale","sent_at":1}],"last_message_id":10}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":20,"direction":"inbound","content":"fresh","sent_at":2}],"last_message_id":20}`))
	})

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.Open(context.Background(), 1) }()

	// Wait until thread 1's request is in flight, then supersede it.
	time.Sleep(50 * time.Millisecond)
	if err := e.Open(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	close(release)
	<-firstDone

	// The superseded response must not have been applied.
	entry1, _ := db.GetThread(1)
	if entry1 != nil {
		t.Errorf("thread 1 cache = %+v, want nil (superseded)", entry1)
	}
	entry2, _ := db.GetThread(2)
	if entry2 == nil || entry2.LastMessageID != 20 {
		t.Fatalf("thread 2 cache = %+v", entry2)
	}

	for {
		select {
		case ev := <-events:
			if ev.Kind == "thread.updated" {
				if upd := ev.Payload.(ThreadUpdate); upd.ThreadID == 1 {
					t.Error("superseded response for thread 1 was applied")
				}
			}
		default:
			return
		}
	}
}

func TestTickSkipsWhileOpenPollInFlight(t *testing.T) {
	release := make(chan struct{})
	var requests atomic.Int64
	e, db, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			<-release
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":100,"direction":"inbound","content":"oi","sent_at":1}],"last_message_id":100}`))
	})

	opened := make(chan error, 1)
	go func() { opened <- e.Open(context.Background(), 42) }()

	// With Open's initial poll still in flight, a cadence tick for the same
	// generation must not issue a second request.
	time.Sleep(50 * time.Millisecond)
	e.tick(context.Background())
	if got := requests.Load(); got != 1 {
		t.Fatalf("requests while open poll in flight = %d, want 1", got)
	}

	close(release)
	if err := <-opened; err != nil {
		t.Fatal(err)
	}

	entry, err := db.GetThread(42)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.LastMessageID != 100 {
		t.Fatalf("cache entry = %+v", entry)
	}

	// Once Open's poll has settled, the next tick polls again.
	e.tick(context.Background())
	if got := requests.Load(); got != 2 {
		t.Errorf("requests after settle = %d, want 2", got)
	}
}

func TestLoadOlderStopsAtExhaustion(t *testing.T) {
	var calls atomic.Int64
	e, _, events := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has("before_id") {
			_, _ = w.Write([]byte(`{"messages":[{"id":50,"direction":"inbound","content":"m","sent_at":1}],"last_message_id":50}`))
			return
		}
		calls.Add(1)
		if q.Get("before_id") == "50" {
			_, _ = w.Write([]byte(`{"messages":[{"id":30,"direction":"inbound","content":"older","sent_at":1}],"last_message_id":50,"has_more":true,"before_id_next":30}`))
			return
		}
		_, _ = w.Write([]byte(`{"messages":[],"last_message_id":50,"has_more":false}`))
	})

	if err := e.Open(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	drainKinds(events)

	if err := e.LoadOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.LoadOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Exhausted: no further requests.
	if err := e.LoadOlder(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("history requests = %d, want 2", got)
	}

	var exhausted bool
	for _, k := range drainKinds(events) {
		if k == "thread.history_exhausted" {
			exhausted = true
		}
	}
	if !exhausted {
		t.Error("thread.history_exhausted not published")
	}
}

func TestPrefetchRespectsLimit(t *testing.T) {
	var prefetches atomic.Int64
	e, db, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("prefetch") == "1" {
			prefetches.Add(1)
		}
		_, _ = w.Write([]byte(`{"messages":[],"last_message_id":0}`))
	})

	// Thread 3 is already fresh in cache and must be skipped.
	if _, err := db.MergeThread(3, "c", "", nil, 5, 120, time.Now()); err != nil {
		t.Fatal(err)
	}

	e.Prefetch(context.Background(), []int64{1, 2, 3, 4, 5, 6, 7})
	if got := prefetches.Load(); got != 4 {
		t.Errorf("prefetch requests = %d, want 4 (limit)", got)
	}
}

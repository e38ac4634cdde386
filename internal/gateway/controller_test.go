package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/config"
	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/state"
	"github.com/safegreen/waconsole/internal/status"
	"go.uber.org/zap"
)

// fakeServer scripts the gateway endpoints for one instance.
type fakeServer struct {
	mu         sync.Mutex
	rawStatus  string
	ready      bool
	qrBody     string // empty means 204; "{}" means empty success
	resetCount atomic.Int64
	syncCount  atomic.Int64
	failReset  bool
	failSync   bool
	blockStart chan struct{} // when set, gateway-start blocks until closed
}

func (f *fakeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "gateway-status"):
			f.mu.Lock()
			resp := httpapi.GatewayStatusResponse{
				Gateway: httpapi.GatewayInfo{Status: f.rawStatus, Ready: f.ready},
			}
			f.mu.Unlock()
			_ = json.NewEncoder(w).Encode(resp)
		case strings.HasSuffix(r.URL.Path, "gateway-qr"):
			f.mu.Lock()
			body := f.qrBody
			f.mu.Unlock()
			if body == "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			_, _ = w.Write([]byte(body))
		case strings.HasSuffix(r.URL.Path, "gateway-reset"):
			f.resetCount.Add(1)
			if f.failReset {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"reset failed"}`))
				return
			}
			_, _ = w.Write([]byte(`{"message":"resetting"}`))
		case strings.HasSuffix(r.URL.Path, "gateway-start"):
			if f.blockStart != nil {
				<-f.blockStart
			}
			_, _ = w.Write([]byte(`{"message":"starting"}`))
		case strings.HasSuffix(r.URL.Path, "gateway-stop"):
			_, _ = w.Write([]byte(`{"message":"stopping"}`))
		case strings.HasSuffix(r.URL.Path, "history-sync"):
			f.syncCount.Add(1)
			if f.failSync {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"sync failed"}`))
				return
			}
			_, _ = w.Write([]byte(`{"stats":{"messages_forwarded":120,"chats_with_messages":8}}`))
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestController(t *testing.T, fake *fakeServer) (*Controller, *state.Runtime, <-chan bus.Event, *time.Time) {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	client, err := httpapi.New(srv.URL, "tok")
	if err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	events, unsub := b.Subscribe("gateway.", 128)
	t.Cleanup(unsub)

	runtime := state.NewRuntime()
	c := NewController(client, b, runtime, config.Default(), zap.NewNop(), []string{"line-1"})
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, runtime, events, &now
}

func drain(events <-chan bus.Event) []bus.Event {
	var out []bus.Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRefreshStatusClassifiesAndPublishesOnce(t *testing.T) {
	fake := &fakeServer{rawStatus: "disconnected"}
	c, runtime, events, _ := newTestController(t, fake)

	if err := c.RefreshStatus(context.Background(), "line-1"); err != nil {
		t.Fatal(err)
	}
	if got, _ := runtime.GatewayStatus("line-1"); got != StatusOffline {
		t.Errorf("fleet status = %q, want offline", got)
	}

	var changes int
	for _, ev := range drain(events) {
		if ev.Kind == "gateway.status_changed" {
			changes++
			if sc := ev.Payload.(StatusChange); sc.Status != StatusOffline {
				t.Errorf("change = %+v", sc)
			}
		}
	}
	if changes != 1 {
		t.Fatalf("status_changed events = %d, want 1", changes)
	}

	// Unchanged status publishes nothing.
	if err := c.RefreshStatus(context.Background(), "line-1"); err != nil {
		t.Fatal(err)
	}
	for _, ev := range drain(events) {
		if ev.Kind == "gateway.status_changed" {
			t.Error("unchanged status republished")
		}
	}
}

func TestActionBusyGuard(t *testing.T) {
	fake := &fakeServer{blockStart: make(chan struct{})}
	c, _, _, _ := newTestController(t, fake)

	first := make(chan error, 1)
	go func() {
		_, err := c.StartGateway(context.Background(), "line-1")
		first <- err
	}()
	time.Sleep(50 * time.Millisecond)

	if _, err := c.StopGateway(context.Background(), "line-1"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent action error = %v, want ErrBusy", err)
	}

	close(fake.blockStart)
	if err := <-first; err != nil {
		t.Fatalf("first action error = %v", err)
	}

	// The busy flag is restored once the action finishes.
	if _, err := c.StopGateway(context.Background(), "line-1"); err != nil {
		t.Errorf("follow-up action error = %v", err)
	}
}

func TestActionRestoresBusyAfterFailure(t *testing.T) {
	fake := &fakeServer{failReset: true}
	c, _, _, _ := newTestController(t, fake)

	if _, err := c.ResetGateway(context.Background(), "line-1"); err == nil {
		t.Fatal("expected reset failure")
	}
	fake.failReset = false
	if _, err := c.ResetGateway(context.Background(), "line-1"); err != nil {
		t.Errorf("action after failure = %v, want busy flag restored", err)
	}
}

func TestQRPairedHidesPanel(t *testing.T) {
	fake := &fakeServer{} // qrBody empty -> 204
	c, _, events, _ := newTestController(t, fake)
	inst := c.instance("line-1")
	inst.qrVisible = true

	done := c.fetchQR(context.Background(), "line-1", inst)
	if !done {
		t.Error("paired fetch should stop the loop")
	}
	if inst.qrVisible {
		t.Error("panel still visible after pairing")
	}

	var paired bool
	for _, ev := range drain(events) {
		if ev.Kind == "gateway.paired" {
			paired = true
		}
	}
	if !paired {
		t.Error("gateway.paired not published")
	}
}

func TestQRPayloadPublished(t *testing.T) {
	fake := &fakeServer{qrBody: `{"qr":"2@abc","generated_at":100,"expires_at":160}`}
	c, _, events, _ := newTestController(t, fake)
	inst := c.instance("line-1")

	if done := c.fetchQR(context.Background(), "line-1", inst); done {
		t.Error("QR payload should keep the loop running")
	}

	evs := drain(events)
	if len(evs) != 1 || evs[0].Kind != "gateway.qr" {
		t.Fatalf("events = %+v", evs)
	}
	upd := evs[0].Payload.(QRUpdate)
	if upd.QR != "2@abc" || upd.ExpiresAt != 160 {
		t.Errorf("update = %+v", upd)
	}
}

// The recovery budget: one manual reset per show-action plus at most two
// automatic resets separated by the cooldown, no matter how many polls
// report "no QR".
func TestAutoResetBound(t *testing.T) {
	fake := &fakeServer{qrBody: `{}`}
	c, _, events, now := newTestController(t, fake)
	inst := c.instance("line-1")

	for i := 0; i < 20; i++ {
		c.fetchQR(context.Background(), "line-1", inst)
		*now = now.Add(20 * time.Second)
	}

	if got := fake.resetCount.Load(); got != 3 {
		t.Errorf("reset calls = %d, want 3 (1 manual + 2 auto)", got)
	}

	var unavailable bool
	for _, ev := range drain(events) {
		if ev.Kind == "gateway.qr_unavailable" {
			unavailable = true
		}
	}
	if !unavailable {
		t.Error("exhausted budget should surface gateway.qr_unavailable")
	}
}

func TestShowQRResetsRecoveryBudget(t *testing.T) {
	fake := &fakeServer{qrBody: `{}`}
	c, _, _, now := newTestController(t, fake)
	inst := c.instance("line-1")

	for i := 0; i < 20; i++ {
		c.fetchQR(context.Background(), "line-1", inst)
		*now = now.Add(20 * time.Second)
	}
	if got := fake.resetCount.Load(); got != 3 {
		t.Fatalf("reset calls = %d, want 3", got)
	}

	// A new explicit show-action restores the manual and auto budget.
	c.mu.Lock()
	inst.manualReset = false
	inst.autoResets = 0
	c.mu.Unlock()

	c.fetchQR(context.Background(), "line-1", inst)
	if got := fake.resetCount.Load(); got != 4 {
		t.Errorf("reset calls after new show = %d, want 4", got)
	}
}

func TestFullHistoryImportLifecycle(t *testing.T) {
	fake := &fakeServer{rawStatus: "connected", ready: false}
	c, _, _, now := newTestController(t, fake)
	ctx := context.Background()

	if err := c.FullHistoryImport(ctx, "line-1", httpapi.HistorySyncRequest{Mode: httpapi.HistoryModeAll}); err != nil {
		t.Fatal(err)
	}
	if st, _, _ := c.ImportStatus("line-1"); st != status.AwaitingReady {
		t.Fatalf("state = %s, want AWAITING_READY", st)
	}
	if got := fake.resetCount.Load(); got != 1 {
		t.Fatalf("reset calls = %d, want 1", got)
	}

	// A poll with the bridge still down does not advance the import.
	if err := c.RefreshStatus(ctx, "line-1"); err != nil {
		t.Fatal(err)
	}
	if st, _, _ := c.ImportStatus("line-1"); st != status.AwaitingReady {
		t.Fatalf("state = %s, want AWAITING_READY", st)
	}
	if fake.syncCount.Load() != 0 {
		t.Fatal("import ran before the bridge was ready")
	}

	// The bridge comes back: the next poll triggers the import.
	fake.mu.Lock()
	fake.ready = true
	fake.mu.Unlock()
	if err := c.RefreshStatus(ctx, "line-1"); err != nil {
		t.Fatal(err)
	}
	if fake.syncCount.Load() != 1 {
		t.Fatal("import did not run after ready")
	}

	st, text, summary := c.ImportStatus("line-1")
	if st != status.Completed || text == "" {
		t.Errorf("state = %s (%q), want COMPLETED", st, text)
	}
	if summary == nil || summary.Stats.MessagesForwarded != 120 {
		t.Fatalf("summary = %+v", summary)
	}

	// The summary is retained for a bounded window, then cleared.
	*now = now.Add(25 * time.Second)
	st, _, summary = c.ImportStatus("line-1")
	if st != status.Idle || summary != nil {
		t.Errorf("after retention: state = %s, summary = %+v", st, summary)
	}
}

func TestFullHistoryImportResetFailure(t *testing.T) {
	fake := &fakeServer{failReset: true}
	c, _, _, _ := newTestController(t, fake)

	err := c.FullHistoryImport(context.Background(), "line-1", httpapi.HistorySyncRequest{Mode: httpapi.HistoryModeAll})
	if err == nil {
		t.Fatal("expected error")
	}
	if st, _, _ := c.ImportStatus("line-1"); st != status.Failed {
		t.Errorf("state = %s, want FAILED", st)
	}
}

func TestSyncHistoryStandalone(t *testing.T) {
	fake := &fakeServer{}
	c, _, _, _ := newTestController(t, fake)

	stats, err := c.SyncHistory(context.Background(), "line-1", httpapi.HistorySyncRequest{
		Mode:            httpapi.HistoryModeHours,
		LookbackMinutes: 60,
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.MessagesForwarded != 120 || stats.ChatsWithMessages != 8 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUnknownInstance(t *testing.T) {
	fake := &fakeServer{}
	c, _, _, _ := newTestController(t, fake)

	if err := c.RefreshStatus(context.Background(), "nope"); err == nil {
		t.Error("unknown instance should error")
	}
	if _, err := c.StartGateway(context.Background(), "nope"); err == nil {
		t.Error("unknown instance should error")
	}
}

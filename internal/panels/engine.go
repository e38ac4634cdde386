// Package panels keeps the queue panels synchronized and decides which
// unread changes deserve an operator notification.
package panels

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/safegreen/waconsole/internal/activity"
	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/cache"
	"github.com/safegreen/waconsole/internal/config"
	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/state"
	"go.uber.org/zap"
)

// Panels whose unread changes never notify: resolved work and group chatter.
var excludedPanels = map[string]bool{
	"completed": true,
	"groups":    true,
}

// MessageAlert is the payload of notify.message events.
type MessageAlert struct {
	ThreadID int64
	Contact  string
	Preview  string
	Unread   int
}

// Snapshot is the payload of panel.refreshed and panel.hydrated events.
type Snapshot struct {
	Panels    map[string]httpapi.Panel
	FromCache bool
}

// Engine refreshes the panel set on the activity-tier cadence and on
// demand. Concurrent refreshes follow last-caller-wins: a newer call
// cancels whatever is still in flight and its late response is discarded.
type Engine struct {
	client  *httpapi.Client
	db      *cache.DB
	bus     *bus.Bus
	runtime *state.Runtime
	monitor *activity.Monitor
	cfg     *config.Config
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	channel    string
	search     string
	primed     bool
	hydrated   bool
	lastGood   map[string]httpapi.Panel
	prevUnread map[int64]int

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewEngine creates a panel engine scoped to one channel filter.
func NewEngine(client *httpapi.Client, db *cache.DB, b *bus.Bus, runtime *state.Runtime, monitor *activity.Monitor, cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		client:     client,
		db:         db,
		bus:        b,
		runtime:    runtime,
		monitor:    monitor,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		channel:    cfg.Server.Channel,
		prevUnread: make(map[int64]int),
	}
}

// Start hydrates from the cached snapshot, issues the first refresh and
// launches the periodic loop.
func (e *Engine) Start(ctx context.Context) {
	e.hydrate()
	if err := e.Refresh(ctx); err != nil {
		e.logger.Warn("initial panel refresh failed", zap.Error(err))
	}

	ctx, e.loopCancel = context.WithCancel(ctx)
	e.loopDone = make(chan struct{})
	go e.loop(ctx)
}

// Stop terminates the loop and any refresh in flight.
func (e *Engine) Stop() {
	if e.loopCancel != nil {
		e.loopCancel()
		<-e.loopDone
	}
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.loopDone)
	timer := time.NewTimer(e.monitor.PanelInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
				// Keep the last good snapshot and retry next tick.
				e.logger.Warn("panel refresh failed", zap.Error(err))
			}
			timer.Reset(e.monitor.PanelInterval())
		}
	}
}

// hydrate publishes the cached snapshot, if fresh, so panels render before
// the first round trip. It runs at most once and also seeds the unread
// baseline so cached rows do not fire notifications.
func (e *Engine) hydrate() {
	e.mu.Lock()
	if e.hydrated {
		e.mu.Unlock()
		return
	}
	e.hydrated = true
	key := e.cacheKeyLocked()
	e.mu.Unlock()

	entry, err := e.db.GetPanel(key)
	if err != nil {
		e.logger.Warn("panel cache read failed", zap.Error(err))
		return
	}
	if entry == nil || !entry.Fresh(e.cfg.Cache.PanelTTL(), e.now()) {
		return
	}

	var panels map[string]httpapi.Panel
	if err := json.Unmarshal([]byte(entry.Payload), &panels); err != nil {
		e.logger.Warn("panel cache decode failed", zap.Error(err))
		return
	}

	e.mu.Lock()
	e.lastGood = panels
	e.prevUnread = unreadIndex(panels)
	e.primed = true
	e.mu.Unlock()

	e.bus.Emit("panel.hydrated", Snapshot{Panels: panels, FromCache: true})
}

// Refresh fetches the current panel set. When called while an earlier
// refresh is still in flight, the earlier one is cancelled and only this
// call's response is applied.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	if e.cancel != nil {
		e.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	params := httpapi.PanelRefreshParams{
		Standalone: true,
		Compact:    true,
		Channel:    e.channel,
		Thread:     e.runtime.OpenThread(),
		Search:     e.search,
	}
	key := e.cacheKeyLocked()
	e.mu.Unlock()
	defer cancel()

	resp, err := e.client.PanelRefresh(reqCtx, params)

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil // superseded, a newer refresh owns the panels now
	}
	if err != nil {
		e.mu.Unlock()
		return err
	}

	alerts := e.evaluateLocked(resp.Panels)
	e.lastGood = resp.Panels
	e.prevUnread = unreadIndex(resp.Panels)
	e.primed = true
	e.mu.Unlock()

	if raw, err := json.Marshal(resp.Panels); err == nil {
		if err := e.db.SavePanel(key, string(raw), e.now()); err != nil {
			e.logger.Warn("panel cache write failed", zap.Error(err))
		}
	}

	e.bus.Emit("panel.refreshed", Snapshot{Panels: resp.Panels})
	for _, a := range alerts {
		e.bus.Emit("notify.message", a)
	}
	return nil
}

// SetChannel changes the channel filter and refreshes immediately.
func (e *Engine) SetChannel(ctx context.Context, channel string) error {
	e.mu.Lock()
	e.channel = channel
	e.mu.Unlock()
	return e.Refresh(ctx)
}

// SetSearch changes the search filter and refreshes immediately.
func (e *Engine) SetSearch(ctx context.Context, search string) error {
	e.mu.Lock()
	e.search = search
	e.mu.Unlock()
	return e.Refresh(ctx)
}

// MarkAgentResponse records an operator reply so the notification cooldown
// starts counting for that thread.
func (e *Engine) MarkAgentResponse(threadID int64) {
	e.runtime.MarkAgentResponse(threadID, e.now())
}

// Panels returns a copy of the last applied snapshot.
func (e *Engine) Panels() map[string]httpapi.Panel {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]httpapi.Panel, len(e.lastGood))
	for k, v := range e.lastGood {
		out[k] = v
	}
	return out
}

// evaluateLocked compares the incoming snapshot against the unread baseline
// and returns the alerts to publish. The first snapshot only primes the
// baseline. Caller must hold e.mu.
func (e *Engine) evaluateLocked(panels map[string]httpapi.Panel) []MessageAlert {
	if !e.primed {
		return nil
	}

	cooldown := e.runtime.NotifyCooldown()
	openThread := e.runtime.OpenThread()
	var alerts []MessageAlert
	alerted := make(map[int64]bool)

	for key, panel := range panels {
		if excludedPanels[key] {
			continue
		}
		for _, item := range panel.Items {
			if item.Unread <= 0 || alerted[item.ThreadID] {
				continue
			}
			prev, seen := e.prevUnread[item.ThreadID]
			if seen && item.Unread <= prev {
				continue
			}
			if item.ThreadID == openThread {
				continue
			}
			if cooldown > 0 {
				if last, ok := e.runtime.LastAgentResponse(item.ThreadID); ok && e.now().Sub(last) < cooldown {
					continue
				}
			}
			alerted[item.ThreadID] = true
			alerts = append(alerts, MessageAlert{
				ThreadID: item.ThreadID,
				Contact:  item.Contact,
				Preview:  item.Preview,
				Unread:   item.Unread,
			})
		}
	}
	return alerts
}

// cacheKeyLocked derives the panel cache key from the current filters.
// Caller must hold e.mu.
func (e *Engine) cacheKeyLocked() string {
	return fmt.Sprintf("standalone:%s:%s", e.channel, e.search)
}

// unreadIndex flattens a snapshot into thread -> unread, spanning every
// panel so a thread moving between panels keeps its baseline.
func unreadIndex(panels map[string]httpapi.Panel) map[int64]int {
	idx := make(map[int64]int)
	for key, panel := range panels {
		if excludedPanels[key] {
			continue
		}
		for _, item := range panel.Items {
			if cur, ok := idx[item.ThreadID]; !ok || item.Unread > cur {
				idx[item.ThreadID] = item.Unread
			}
		}
	}
	return idx
}

// Package syncer keeps the open conversation incrementally synchronized
// with the server through the thread-poll endpoint.
package syncer

import (
	"context"
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

// ThreadUpdate is the payload of thread.updated and thread.hydrated events.
type ThreadUpdate struct {
	ThreadID      int64
	Messages      []cache.Message
	LastMessageID int64
	ContactName   string
	ContactPhone  string
	Unread        int
	FromCache     bool
}

// OlderPage is the payload of thread.older events.
type OlderPage struct {
	ThreadID int64
	Messages []cache.Message
	HasMore  bool
}

// Engine owns the open-thread poll stream. Exactly one thread is streamed
// at a time; opening a new one supersedes any in-flight request for the
// previous one.
type Engine struct {
	client  *httpapi.Client
	db      *cache.DB
	bus     *bus.Bus
	runtime *state.Runtime
	monitor *activity.Monitor
	cfg     *config.Config
	logger  *zap.Logger
	now     func() time.Time

	mu           sync.Mutex
	generation   uint64 // bumped on every Open/Close; stale responses check it
	streamCancel context.CancelFunc
	polling      bool // a poll for the open thread is in flight
	beforeCursor int64
	exhausted    bool
	loadingOlder bool

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewEngine creates a sync engine. Start must be called to begin polling.
func NewEngine(client *httpapi.Client, db *cache.DB, b *bus.Bus, runtime *state.Runtime, monitor *activity.Monitor, cfg *config.Config, logger *zap.Logger) *Engine {
	return &Engine{
		client:  client,
		db:      db,
		bus:     b,
		runtime: runtime,
		monitor: monitor,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Start launches the poll loop. The loop re-reads the cadence tier before
// every tick so interval changes take effect without a restart.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.loopCancel = context.WithCancel(ctx)
	e.loopDone = make(chan struct{})
	go e.loop(ctx)
}

// Stop terminates the poll loop and any in-flight stream request.
func (e *Engine) Stop() {
	if e.loopCancel != nil {
		e.loopCancel()
		<-e.loopDone
	}
	e.Close()
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.loopDone)
	timer := time.NewTimer(e.monitor.ThreadInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.tick(ctx)
			timer.Reset(e.monitor.ThreadInterval())
		}
	}
}

// tick polls the open thread once. If the previous poll is still in
// flight the tick is skipped rather than queued.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	threadID := e.runtime.OpenThread()
	if threadID == 0 || e.polling {
		e.mu.Unlock()
		return
	}
	gen := e.generation
	streamCtx, cancel := e.streamContextLocked(ctx)
	e.polling = true
	e.mu.Unlock()
	defer cancel()

	err := e.pollOnce(streamCtx, threadID, gen)

	e.mu.Lock()
	if gen == e.generation {
		e.polling = false
	}
	e.mu.Unlock()

	if err != nil && streamCtx.Err() == nil {
		// Transient failure: log and wait for the next tick.
		e.logger.Warn("thread poll failed", zap.Int64("thread_id", threadID), zap.Error(err))
	}
}

// Open switches the stream to threadID. Any request in flight for the
// previous thread is cancelled and its response discarded. The cached
// window, when fresh, is published immediately so the conversation renders
// before the first network round trip.
func (e *Engine) Open(ctx context.Context, threadID int64) error {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	if e.streamCancel != nil {
		e.streamCancel()
		e.streamCancel = nil
	}
	// The initial poll below counts as in flight so a cadence tick cannot
	// issue a duplicate request under the same generation.
	e.polling = true
	e.beforeCursor = 0
	e.exhausted = false
	e.loadingOlder = false
	e.runtime.SetOpenThread(threadID)
	streamCtx, cancel := e.streamContextLocked(ctx)
	e.mu.Unlock()
	defer cancel()

	e.bus.Emit("thread.opened", threadID)

	entry, err := e.db.GetThread(threadID)
	if err != nil {
		e.logger.Warn("cache read failed", zap.Int64("thread_id", threadID), zap.Error(err))
	}
	if entry != nil && entry.Fresh(e.cfg.Cache.ThreadTTL(), e.now()) {
		e.bus.Emit("thread.hydrated", ThreadUpdate{
			ThreadID:      threadID,
			Messages:      entry.Messages,
			LastMessageID: entry.LastMessageID,
			ContactName:   entry.ContactName,
			ContactPhone:  entry.ContactPhone,
			FromCache:     true,
		})
	}

	err = e.pollOnce(streamCtx, threadID, gen)

	e.mu.Lock()
	if gen == e.generation {
		e.polling = false
	}
	e.mu.Unlock()
	return err
}

// Close stops streaming the current thread.
func (e *Engine) Close() {
	e.mu.Lock()
	e.generation++
	if e.streamCancel != nil {
		e.streamCancel()
		e.streamCancel = nil
	}
	e.polling = false
	threadID := e.runtime.OpenThread()
	e.runtime.SetOpenThread(0)
	e.mu.Unlock()

	if threadID != 0 {
		e.bus.Emit("thread.closed", threadID)
	}
}

// pollOnce fetches messages newer than the cached cursor and applies the
// response unless a newer Open/Close superseded it meanwhile.
func (e *Engine) pollOnce(ctx context.Context, threadID int64, gen uint64) error {
	var lastID int64
	if entry, err := e.db.GetThread(threadID); err == nil && entry != nil {
		lastID = entry.LastMessageID
	}

	resp, err := e.client.ThreadPoll(ctx, httpapi.ThreadPollParams{
		ThreadID:      threadID,
		LastMessageID: lastID,
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil // superseded, discard silently
	}
	e.mu.Unlock()

	return e.apply(threadID, resp)
}

func (e *Engine) apply(threadID int64, resp *httpapi.ThreadPollResponse) error {
	var contactName, contactPhone string
	if resp.Contact != nil {
		contactName = resp.Contact.Name
		contactPhone = resp.Contact.Phone
	}

	fresh := toCacheMessages(resp.Messages)
	merged, err := e.db.MergeThread(threadID, contactName, contactPhone, fresh, resp.LastMessageID, e.cfg.Cache.MaxMessages, e.now())
	if err != nil {
		return fmt.Errorf("merge thread %d: %w", threadID, err)
	}

	if len(fresh) > 0 || resp.Contact != nil {
		e.bus.Emit("thread.updated", ThreadUpdate{
			ThreadID:      threadID,
			Messages:      fresh,
			LastMessageID: merged.LastMessageID,
			ContactName:   merged.ContactName,
			ContactPhone:  merged.ContactPhone,
			Unread:        resp.ThreadUnread,
		})
	}

	if err := e.db.PruneThreads(e.cfg.Cache.MaxThreads); err != nil {
		e.logger.Warn("prune threads", zap.Error(err))
	}
	return nil
}

// LoadOlder fetches one page of history above the oldest rendered message.
// Consecutive calls page backwards until the server reports no more, after
// which further calls are no-ops.
func (e *Engine) LoadOlder(ctx context.Context) error {
	e.mu.Lock()
	threadID := e.runtime.OpenThread()
	if threadID == 0 || e.exhausted || e.loadingOlder {
		e.mu.Unlock()
		return nil
	}
	gen := e.generation
	cursor := e.beforeCursor
	e.loadingOlder = true
	streamCtx, cancel := e.streamContextLocked(ctx)
	e.mu.Unlock()
	defer cancel()

	if cursor == 0 {
		if entry, err := e.db.GetThread(threadID); err == nil && entry != nil && len(entry.Messages) > 0 {
			cursor = entry.Messages[0].ID
		}
	}

	resp, err := e.client.ThreadPoll(streamCtx, httpapi.ThreadPollParams{
		ThreadID: threadID,
		BeforeID: cursor,
		Limit:    e.cfg.Poll.HistoryPageSize,
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return nil
	}
	e.loadingOlder = false
	if err != nil {
		return err
	}

	e.beforeCursor = resp.BeforeIDNext
	if !resp.HasMore {
		e.exhausted = true
	}

	page := toCacheMessages(resp.Messages)
	e.bus.Emit("thread.older", OlderPage{
		ThreadID: threadID,
		Messages: page,
		HasMore:  resp.HasMore,
	})
	if !resp.HasMore {
		e.bus.Emit("thread.history_exhausted", threadID)
	}
	return nil
}

// Prefetch warms the cache for up to the configured number of threads that
// are absent or stale. Failures are logged and skipped; prefetch never
// surfaces errors to the operator.
func (e *Engine) Prefetch(ctx context.Context, threadIDs []int64) {
	fetched := 0
	for _, id := range threadIDs {
		if fetched >= e.cfg.Poll.PrefetchLimit {
			return
		}
		if id == e.runtime.OpenThread() {
			continue
		}
		entry, err := e.db.GetThread(id)
		if err == nil && entry != nil && entry.Fresh(e.cfg.Cache.ThreadTTL(), e.now()) {
			continue
		}
		var lastID int64
		if entry != nil {
			lastID = entry.LastMessageID
		}
		resp, err := e.client.ThreadPoll(ctx, httpapi.ThreadPollParams{
			ThreadID:      id,
			LastMessageID: lastID,
			Limit:         e.cfg.Poll.HistoryPageSize,
			Prefetch:      true,
		})
		if err != nil {
			e.logger.Debug("prefetch failed", zap.Int64("thread_id", id), zap.Error(err))
			continue
		}
		var name, phone string
		if resp.Contact != nil {
			name, phone = resp.Contact.Name, resp.Contact.Phone
		}
		if _, err := e.db.MergeThread(id, name, phone, toCacheMessages(resp.Messages), resp.LastMessageID, e.cfg.Cache.MaxMessages, e.now()); err != nil {
			e.logger.Debug("prefetch merge failed", zap.Int64("thread_id", id), zap.Error(err))
			continue
		}
		fetched++
	}
}

// streamContextLocked derives a cancellable context for the current stream
// generation and stores its cancel so a later Open or Close can abort the
// request in flight. Caller must hold e.mu.
func (e *Engine) streamContextLocked(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	e.streamCancel = cancel
	return ctx, cancel
}

func toCacheMessages(in []httpapi.ThreadMessage) []cache.Message {
	out := make([]cache.Message, 0, len(in))
	for _, m := range in {
		out = append(out, cache.Message{
			ID:        m.ID,
			Direction: m.Direction,
			Content:   m.Content,
			Metadata:  m.Metadata,
			Status:    m.Status,
			SentAt:    m.SentAt,
		})
	}
	return out
}

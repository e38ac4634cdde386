// Package notify turns panel alerts and gateway outages into toasts and
// sound cues for the console UI.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/cache"
	"github.com/safegreen/waconsole/internal/config"
	"github.com/safegreen/waconsole/internal/panels"
	"github.com/safegreen/waconsole/internal/state"
	"go.uber.org/zap"
)

// Toast is one visible notification card. Sticky toasts stay until
// explicitly dismissed or recomputed away.
type Toast struct {
	ID       string
	ThreadID int64 // 0 for the aggregate gateway toast
	Title    string
	Body     string
	Sticky   bool
}

// SoundCue is the payload of notify.sound events. The UI plays either the
// custom clip or the named built-in style, falling back to a plain tone
// when the custom clip fails to play.
type SoundCue struct {
	Style      string
	CustomData string // data-URL of the operator's clip, if any
	CustomName string
}

// Notifier owns the toast registry and the sound/popup preferences.
type Notifier struct {
	bus     *bus.Bus
	db      *cache.DB
	runtime *state.Runtime
	cfg     *config.Config
	logger  *zap.Logger

	mu           sync.Mutex
	prefs        Preferences
	byThread     map[int64]string // thread -> toast id
	timers       map[string]*time.Timer
	offlineToast string
	dismissAfter time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewNotifier creates a notifier with preferences loaded from the cache.
// The loaded cooldown is published to the runtime so the panel engine
// evaluates alerts against the live operator setting.
func NewNotifier(b *bus.Bus, db *cache.DB, runtime *state.Runtime, cfg *config.Config, logger *zap.Logger) (*Notifier, error) {
	prefs, err := LoadPreferences(db, cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("load notification preferences: %w", err)
	}
	runtime.SetNotifyCooldown(prefs.Cooldown())
	return &Notifier{
		bus:          b,
		db:           db,
		runtime:      runtime,
		cfg:          cfg,
		logger:       logger,
		prefs:        prefs,
		byThread:     make(map[int64]string),
		timers:       make(map[string]*time.Timer),
		dismissAfter: cfg.Notify.ToastDismiss(),
	}, nil
}

// Start subscribes to message alerts and gateway status changes.
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	alerts, unsubAlerts := n.bus.Subscribe("notify.message", 64)
	gateways, unsubGateways := n.bus.Subscribe("gateway.status_changed", 64)

	go func() {
		defer close(n.done)
		defer unsubAlerts()
		defer unsubGateways()
		for {
			select {
			case evt := <-alerts:
				if alert, ok := evt.Payload.(panels.MessageAlert); ok {
					n.ShowMessage(alert)
				}
			case <-gateways:
				n.RecomputeGatewayToast()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the event loop and cancels pending dismiss timers.
func (n *Notifier) Stop() {
	if n.cancel != nil {
		n.cancel()
		<-n.done
	}
	n.mu.Lock()
	for id, timer := range n.timers {
		timer.Stop()
		delete(n.timers, id)
	}
	n.mu.Unlock()
}

// Preferences returns the current notification preferences.
func (n *Notifier) Preferences() Preferences {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.prefs
}

// SetPreferences validates, stores and applies new preferences. A custom
// sound that fails validation rejects the whole update.
func (n *Notifier) SetPreferences(p Preferences) error {
	if p.CustomSoundData != "" {
		if err := ValidateCustomSound(p.CustomSoundData, p.CustomSoundName); err != nil {
			return err
		}
	}
	if err := p.Save(n.db); err != nil {
		return fmt.Errorf("save notification preferences: %w", err)
	}
	n.mu.Lock()
	n.prefs = p
	n.mu.Unlock()
	n.runtime.SetNotifyCooldown(p.Cooldown())
	return nil
}

// ShowMessage raises (or refreshes) the toast for one thread. A toast
// already showing for the same thread is replaced in place and its dismiss
// timer restarted.
func (n *Notifier) ShowMessage(alert panels.MessageAlert) {
	n.mu.Lock()
	prefs := n.prefs
	id, exists := n.byThread[alert.ThreadID]
	if !exists {
		id = uuid.NewString()
		n.byThread[alert.ThreadID] = id
	}
	toast := Toast{
		ID:       id,
		ThreadID: alert.ThreadID,
		Title:    alert.Contact,
		Body:     alert.Preview,
	}
	if timer, ok := n.timers[id]; ok {
		timer.Stop()
	}
	n.timers[id] = time.AfterFunc(n.dismissAfter, func() { n.Dismiss(id) })
	n.mu.Unlock()

	if prefs.PopupEnabled {
		n.bus.Emit("notify.toast", toast)
	}
	if prefs.SoundEnabled {
		n.bus.Emit("notify.sound", SoundCue{
			Style:      prefs.SoundStyle,
			CustomData: prefs.CustomSoundData,
			CustomName: prefs.CustomSoundName,
		})
	}
}

// Dismiss removes a toast by id.
func (n *Notifier) Dismiss(id string) {
	n.mu.Lock()
	if timer, ok := n.timers[id]; ok {
		timer.Stop()
		delete(n.timers, id)
	}
	for threadID, tid := range n.byThread {
		if tid == id {
			delete(n.byThread, threadID)
		}
	}
	if n.offlineToast == id {
		n.offlineToast = ""
	}
	n.mu.Unlock()

	n.bus.Emit("notify.toast_dismissed", id)
}

// RecomputeGatewayToast rebuilds the aggregate offline toast from the
// fleet map. One sticky toast lists every offline line; it disappears when
// the fleet recovers.
func (n *Notifier) RecomputeGatewayToast() {
	offline := n.runtime.OfflineGateways()

	n.mu.Lock()
	id := n.offlineToast
	if len(offline) == 0 {
		n.offlineToast = ""
		n.mu.Unlock()
		if id != "" {
			n.bus.Emit("notify.toast_dismissed", id)
		}
		return
	}
	if id == "" {
		id = uuid.NewString()
		n.offlineToast = id
	}
	n.mu.Unlock()

	n.bus.Emit("notify.toast", Toast{
		ID:     id,
		Title:  "Lines offline",
		Body:   strings.Join(offline, ", "),
		Sticky: true,
	})
}

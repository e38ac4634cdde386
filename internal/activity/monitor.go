// Package activity tracks operator presence and derives the polling cadence
// tier every loop consults before scheduling its next tick.
package activity

import (
	"sync"
	"time"

	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/config"
)

// Tier is the cadence bucket the runtime is currently in.
type Tier int

const (
	// TierActive means the window is visible and input was seen recently.
	TierActive Tier = iota
	// TierIdle means the window is visible but input stopped.
	TierIdle
	// TierBackground means the window is not visible.
	TierBackground
)

func (t Tier) String() string {
	switch t {
	case TierActive:
		return "active"
	case TierIdle:
		return "idle"
	case TierBackground:
		return "background"
	}
	return "unknown"
}

// Monitor derives the current tier from visibility and last input time.
// It publishes an activity.changed event whenever the tier flips.
type Monitor struct {
	bus  *bus.Bus
	poll config.PollConfig
	now  func() time.Time

	mu        sync.Mutex
	visible   bool
	lastInput time.Time
	lastTier  Tier
}

// NewMonitor creates a monitor that starts visible and active.
func NewMonitor(b *bus.Bus, poll config.PollConfig) *Monitor {
	m := &Monitor{
		bus:     b,
		poll:    poll,
		now:     time.Now,
		visible: true,
	}
	m.lastInput = m.now()
	return m
}

// MarkActivity records operator input (keystroke, selection).
func (m *Monitor) MarkActivity() {
	m.mu.Lock()
	m.lastInput = m.now()
	m.refreshLocked()
	m.mu.Unlock()
}

// SetVisible records whether the console window is visible. Becoming
// visible counts as input so the runtime returns to the active cadence
// immediately.
func (m *Monitor) SetVisible(visible bool) {
	m.mu.Lock()
	m.visible = visible
	if visible {
		m.lastInput = m.now()
	}
	m.refreshLocked()
	m.mu.Unlock()
}

// Tier returns the current cadence tier, publishing a change event if the
// idle threshold has been crossed since the last observation.
func (m *Monitor) Tier() Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked()
}

// Visible reports whether the console window is visible.
func (m *Monitor) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// ThreadInterval returns the thread poll interval for the current tier.
func (m *Monitor) ThreadInterval() time.Duration {
	switch m.Tier() {
	case TierActive:
		return m.poll.ThreadActive()
	case TierIdle:
		return m.poll.ThreadIdle()
	default:
		return m.poll.ThreadBackground()
	}
}

// PanelInterval returns the panel refresh interval for the current tier.
func (m *Monitor) PanelInterval() time.Duration {
	switch m.Tier() {
	case TierActive:
		return m.poll.PanelActive()
	case TierIdle:
		return m.poll.PanelIdle()
	default:
		return m.poll.PanelBackground()
	}
}

func (m *Monitor) refreshLocked() Tier {
	tier := TierBackground
	if m.visible {
		if m.now().Sub(m.lastInput) < m.poll.IdleThreshold() {
			tier = TierActive
		} else {
			tier = TierIdle
		}
	}
	if tier != m.lastTier {
		m.lastTier = tier
		if m.bus != nil {
			m.bus.Emit("activity.changed", tier.String())
		}
	}
	return tier
}

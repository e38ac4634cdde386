// Package status tracks the phases of a full gateway history import.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/safegreen/waconsole/internal/bus"
)

// State is one phase of the history import lifecycle.
type State string

const (
	Idle          State = "IDLE"
	Resetting     State = "RESETTING"
	AwaitingReady State = "AWAITING_READY"
	Importing     State = "IMPORTING"
	Completed     State = "COMPLETED"
	Failed        State = "FAILED"
)

// validTransitions defines allowed phase transitions. An import is kicked
// off by resetting the bridge, then waits for the bridge to report ready
// before the actual import call is issued. Failure is reachable from every
// in-flight phase.
var validTransitions = map[State][]State{
	Idle:          {Resetting},
	Resetting:     {AwaitingReady, Failed},
	AwaitingReady: {Importing, Failed},
	Importing:     {Completed, Failed},
	Completed:     {Idle, Resetting},
	Failed:        {Idle, Resetting},
}

// Describe returns the operator-facing text for a phase.
func Describe(s State) string {
	switch s {
	case Idle:
		return ""
	case Resetting:
		return "Restarting the line session..."
	case AwaitingReady:
		return "Waiting for the line to reconnect..."
	case Importing:
		return "Importing conversation history..."
	case Completed:
		return "History import finished."
	case Failed:
		return "History import failed."
	}
	return string(s)
}

// Machine tracks and enforces the import phases for one gateway instance.
type Machine struct {
	mu       sync.RWMutex
	instance string
	current  State
	bus      *bus.Bus
}

// NewMachine creates a machine for one instance, starting in Idle.
func NewMachine(b *bus.Bus, instance string) *Machine {
	return &Machine{
		instance: instance,
		current:  Idle,
		bus:      b,
	}
}

// Current returns the current phase.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new phase. Returns an error if the
// transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid import transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "gateway.import_changed",
			Timestamp: time.Now(),
			Payload: ImportChange{
				Instance: m.instance,
				From:     from,
				To:       to,
			},
		})
	}
	return nil
}

// ImportChange is the payload for import phase change events.
type ImportChange struct {
	Instance string
	From     State
	To       State
}

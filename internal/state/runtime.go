// Package state holds the mutable runtime state shared between the sync,
// panel, notification and gateway components. Each field has a single
// writing component; everything else only reads.
package state

import (
	"sort"
	"sync"
	"time"
)

// Runtime is passed by reference to every component's constructor.
type Runtime struct {
	mu sync.RWMutex

	openThreadID      int64
	lastAgentResponse map[int64]time.Time
	fleet             map[string]string // instance -> normalized status
	notifyCooldown    time.Duration
}

// NewRuntime creates an empty runtime state.
func NewRuntime() *Runtime {
	return &Runtime{
		lastAgentResponse: make(map[int64]time.Time),
		fleet:             make(map[string]string),
	}
}

// SetOpenThread records which thread the operator is viewing (0 for none).
func (r *Runtime) SetOpenThread(threadID int64) {
	r.mu.Lock()
	r.openThreadID = threadID
	r.mu.Unlock()
}

// OpenThread returns the currently viewed thread id, 0 if none.
func (r *Runtime) OpenThread() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.openThreadID
}

// MarkAgentResponse records that the operator replied on a thread at t.
func (r *Runtime) MarkAgentResponse(threadID int64, t time.Time) {
	r.mu.Lock()
	r.lastAgentResponse[threadID] = t
	r.mu.Unlock()
}

// LastAgentResponse returns when the operator last replied on a thread.
func (r *Runtime) LastAgentResponse(threadID int64) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastAgentResponse[threadID]
	return t, ok
}

// SetNotifyCooldown publishes the operator's current notification cooldown.
// The notifier writes it on startup and on every preference change; the
// panel engine reads it when evaluating alerts. Zero disables the cooldown.
func (r *Runtime) SetNotifyCooldown(d time.Duration) {
	r.mu.Lock()
	r.notifyCooldown = d
	r.mu.Unlock()
}

// NotifyCooldown returns the current notification cooldown.
func (r *Runtime) NotifyCooldown() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notifyCooldown
}

// SetGatewayStatus updates one instance's normalized status in the fleet map.
func (r *Runtime) SetGatewayStatus(instance, status string) {
	r.mu.Lock()
	r.fleet[instance] = status
	r.mu.Unlock()
}

// GatewayStatus returns one instance's normalized status.
func (r *Runtime) GatewayStatus(instance string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.fleet[instance]
	return s, ok
}

// OfflineGateways returns the sorted instances currently classified offline.
// The aggregate offline toast is recomputed from this list on every status
// change.
func (r *Runtime) OfflineGateways() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for instance, status := range r.fleet {
		if status == "offline" {
			out = append(out, instance)
		}
	}
	sort.Strings(out)
	return out
}

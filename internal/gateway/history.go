package gateway

import (
	"context"
	"fmt"

	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/status"
	"go.uber.org/zap"
)

// ImportSummary is the payload of gateway.import_done events and the
// result surfaced by ImportStatus while the retention window lasts.
type ImportSummary struct {
	Instance string
	Stats    httpapi.HistoryStats
	Failed   bool
}

// FullHistoryImport resets the bridge session and arms the import to run
// as soon as a status poll sees the bridge ready again. The phases are
// tracked by the per-instance machine; progress reaches the UI through
// gateway.import_changed events.
func (c *Controller) FullHistoryImport(ctx context.Context, instance string, req httpapi.HistorySyncRequest) error {
	inst := c.instance(instance)
	if inst == nil {
		return fmt.Errorf("unknown gateway instance %q", instance)
	}

	if err := inst.imports.Transition(status.Resetting); err != nil {
		return err
	}

	c.mu.Lock()
	req.Instance = instance
	inst.pendingImport = req
	inst.summary = nil
	c.mu.Unlock()

	if _, err := c.ResetGateway(ctx, instance); err != nil {
		_ = inst.imports.Transition(status.Failed)
		c.recordSummary(inst, instance, httpapi.HistoryStats{}, true)
		return err
	}
	return inst.imports.Transition(status.AwaitingReady)
}

// runImport issues the actual history-sync call once the bridge is ready.
func (c *Controller) runImport(ctx context.Context, instance string, inst *instanceState, req httpapi.HistorySyncRequest) {
	if err := inst.imports.Transition(status.Importing); err != nil {
		return
	}

	resp, err := c.client.HistorySync(ctx, req)
	if err != nil {
		c.logger.Warn("history import failed", zap.String("instance", instance), zap.Error(err))
		_ = inst.imports.Transition(status.Failed)
		c.recordSummary(inst, instance, httpapi.HistoryStats{}, true)
		return
	}

	_ = inst.imports.Transition(status.Completed)
	c.recordSummary(inst, instance, resp.Stats, false)
}

// SyncHistory runs a standalone history sync (range or lookback modes)
// without the reset cycle.
func (c *Controller) SyncHistory(ctx context.Context, instance string, req httpapi.HistorySyncRequest) (*httpapi.HistoryStats, error) {
	inst := c.instance(instance)
	if inst == nil {
		return nil, fmt.Errorf("unknown gateway instance %q", instance)
	}

	c.mu.Lock()
	if inst.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	inst.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		inst.busy = false
		c.mu.Unlock()
	}()

	req.Instance = instance
	resp, err := c.client.HistorySync(ctx, req)
	if err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}

// ImportStatus returns the current import phase, its operator text and the
// summary while it is retained.
func (c *Controller) ImportStatus(instance string) (status.State, string, *ImportSummary) {
	inst := c.instance(instance)
	if inst == nil {
		return status.Idle, "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireSummaryLocked(inst)

	st := inst.imports.Current()
	var summary *ImportSummary
	if inst.summary != nil {
		summary = &ImportSummary{
			Instance: instance,
			Stats:    *inst.summary,
			Failed:   st == status.Failed,
		}
	}
	return st, status.Describe(st), summary
}

func (c *Controller) recordSummary(inst *instanceState, instance string, stats httpapi.HistoryStats, failed bool) {
	c.mu.Lock()
	inst.summary = &stats
	inst.summaryAt = c.now()
	c.mu.Unlock()

	c.bus.Emit("gateway.import_done", ImportSummary{
		Instance: instance,
		Stats:    stats,
		Failed:   failed,
	})
}

// expireSummaryLocked returns a finished import to idle once the summary
// retention window has passed. Caller must hold c.mu.
func (c *Controller) expireSummaryLocked(inst *instanceState) {
	st := inst.imports.Current()
	if st != status.Completed && st != status.Failed {
		return
	}
	if inst.summaryAt.IsZero() || c.now().Sub(inst.summaryAt) < c.cfg.Gateway.SummaryRetention() {
		return
	}
	inst.summary = nil
	_ = inst.imports.Transition(status.Idle)
}

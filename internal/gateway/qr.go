package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ShowQR reveals the pairing panel for an instance and starts the QR fetch
// loop. Each explicit show-action gets one manual reset attempt, and the
// automatic reset budget starts over.
func (c *Controller) ShowQR(ctx context.Context, instance string) error {
	inst := c.instance(instance)
	if inst == nil {
		return fmt.Errorf("unknown gateway instance %q", instance)
	}

	c.mu.Lock()
	if inst.qrCancel != nil {
		inst.qrCancel()
	}
	qrCtx, cancel := context.WithCancel(ctx)
	inst.qrCancel = cancel
	inst.qrVisible = true
	inst.manualReset = false
	inst.autoResets = 0
	c.mu.Unlock()

	go c.qrLoop(qrCtx, instance, inst)
	return nil
}

// HideQR hides the pairing panel and stops the fetch loop.
func (c *Controller) HideQR(instance string) {
	inst := c.instance(instance)
	if inst == nil {
		return
	}
	c.mu.Lock()
	if inst.qrCancel != nil {
		inst.qrCancel()
		inst.qrCancel = nil
	}
	inst.qrVisible = false
	c.mu.Unlock()
	c.bus.Emit("gateway.qr_hidden", instance)
}

func (c *Controller) qrLoop(ctx context.Context, instance string, inst *instanceState) {
	ticker := time.NewTicker(c.cfg.Gateway.QRPoll())
	defer ticker.Stop()

	if done := c.fetchQR(ctx, instance, inst); done {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := c.fetchQR(ctx, instance, inst); done {
				return
			}
		}
	}
}

// fetchQR performs one QR fetch. It returns true when the loop should stop
// (session paired or panel hidden).
func (c *Controller) fetchQR(ctx context.Context, instance string, inst *instanceState) bool {
	qr, paired, err := c.client.GatewayQR(ctx, instance)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("qr fetch failed", zap.String("instance", instance), zap.Error(err))
		}
		return false
	}

	if paired {
		c.HideQR(instance)
		c.bus.Emit("gateway.paired", instance)
		return true
	}

	if qr != nil && qr.QR != "" {
		c.bus.Emit("gateway.qr", QRUpdate{
			Instance:    instance,
			QR:          qr.QR,
			GeneratedAt: qr.GeneratedAt,
			ExpiresAt:   qr.ExpiresAt,
		})
		return false
	}

	// No QR available: try a reset within the recovery budget.
	c.maybeResetForQR(ctx, instance, inst)
	return false
}

// maybeResetForQR applies the pairing recovery policy: one manual reset per
// show-action, then at most the configured number of automatic resets per
// visible session, each separated by the cooldown. Past the budget the
// "no QR" state stays visible so the operator knows to intervene.
func (c *Controller) maybeResetForQR(ctx context.Context, instance string, inst *instanceState) {
	c.mu.Lock()
	now := c.now()
	var reset bool
	switch {
	case !inst.manualReset:
		inst.manualReset = true
		reset = true
	case inst.autoResets < c.cfg.Gateway.AutoResetCap &&
		now.Sub(inst.lastAutoReset) > c.cfg.Gateway.AutoResetCooldown():
		inst.autoResets++
		inst.lastAutoReset = now
		reset = true
	}
	c.mu.Unlock()

	if !reset {
		c.bus.Emit("gateway.qr_unavailable", instance)
		return
	}
	if _, err := c.ResetGateway(ctx, instance); err != nil {
		c.logger.Warn("qr recovery reset failed", zap.String("instance", instance), zap.Error(err))
	}
}

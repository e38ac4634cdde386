// Package gateway drives the auxiliary messaging bridge sessions: status
// polling, start/stop/reset actions, QR pairing and history imports.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/config"
	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/state"
	"github.com/safegreen/waconsole/internal/status"
	"go.uber.org/zap"
)

// ErrBusy is returned when a start/stop/reset is already in flight for the
// instance.
var ErrBusy = errors.New("gateway operation already in progress")

// StatusChange is the payload of gateway.status_changed events.
type StatusChange struct {
	Instance string
	Status   string
	Info     httpapi.GatewayInfo
}

// QRUpdate is the payload of gateway.qr events.
type QRUpdate struct {
	Instance    string
	QR          string
	GeneratedAt int64
	ExpiresAt   int64
}

// instanceState tracks one bridge line.
type instanceState struct {
	info       httpapi.GatewayInfo
	normalized string
	busy       bool

	qrVisible     bool
	qrCancel      context.CancelFunc
	manualReset   bool // one reset per explicit show-action
	autoResets    int  // per visible QR session
	lastAutoReset time.Time

	imports       *status.Machine
	pendingImport httpapi.HistorySyncRequest
	summary       *httpapi.HistoryStats
	summaryAt     time.Time
}

// Controller owns every configured gateway instance.
type Controller struct {
	client  *httpapi.Client
	bus     *bus.Bus
	runtime *state.Runtime
	cfg     *config.Config
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	instances map[string]*instanceState

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// NewController creates a controller for the given instance names.
func NewController(client *httpapi.Client, b *bus.Bus, runtime *state.Runtime, cfg *config.Config, logger *zap.Logger, instances []string) *Controller {
	c := &Controller{
		client:    client,
		bus:       b,
		runtime:   runtime,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		instances: make(map[string]*instanceState, len(instances)),
	}
	for _, name := range instances {
		c.instances[name] = &instanceState{
			imports: status.NewMachine(b, name),
		}
	}
	return c
}

// Start launches the periodic status poll covering every instance.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.loopCancel = context.WithCancel(ctx)
	c.loopDone = make(chan struct{})
	go c.loop(ctx)
}

// Stop terminates the status loop and any visible QR session.
func (c *Controller) Stop() {
	if c.loopCancel != nil {
		c.loopCancel()
		<-c.loopDone
	}
	c.mu.Lock()
	for _, inst := range c.instances {
		if inst.qrCancel != nil {
			inst.qrCancel()
			inst.qrCancel = nil
		}
	}
	c.mu.Unlock()
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.loopDone)
	interval := c.cfg.Gateway.StatusPoll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.refreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshAll(ctx)
		}
	}
}

func (c *Controller) refreshAll(ctx context.Context) {
	c.mu.Lock()
	names := make([]string, 0, len(c.instances))
	for name := range c.instances {
		names = append(names, name)
	}
	c.mu.Unlock()

	for _, name := range names {
		if err := c.RefreshStatus(ctx, name); err != nil && ctx.Err() == nil {
			c.logger.Warn("gateway status poll failed", zap.String("instance", name), zap.Error(err))
		}
	}
}

// RefreshStatus polls one instance, updates the fleet map and advances a
// pending history import when the bridge has come back ready.
func (c *Controller) RefreshStatus(ctx context.Context, instance string) error {
	inst := c.instance(instance)
	if inst == nil {
		return fmt.Errorf("unknown gateway instance %q", instance)
	}

	resp, err := c.client.GatewayStatus(ctx, instance)
	if err != nil {
		return err
	}

	normalized := Classify(resp.Gateway.Status, resp.Gateway.Ready)

	c.mu.Lock()
	inst.info = resp.Gateway
	changed := inst.normalized != normalized
	inst.normalized = normalized
	c.expireSummaryLocked(inst)
	startImport := inst.imports.Current() == status.AwaitingReady && resp.Gateway.Ready
	req := inst.pendingImport
	c.mu.Unlock()

	c.runtime.SetGatewayStatus(instance, normalized)
	if changed {
		c.bus.Emit("gateway.status_changed", StatusChange{
			Instance: instance,
			Status:   normalized,
			Info:     resp.Gateway,
		})
	}

	if startImport {
		c.runImport(ctx, instance, inst, req)
	}
	return nil
}

// Info returns the last polled state for an instance.
func (c *Controller) Info(instance string) (httpapi.GatewayInfo, string, bool) {
	inst := c.instance(instance)
	if inst == nil {
		return httpapi.GatewayInfo{}, "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return inst.info, inst.normalized, true
}

// StartGateway asks the server to start the bridge. Only one control
// action runs per instance at a time.
func (c *Controller) StartGateway(ctx context.Context, instance string) (string, error) {
	return c.action(ctx, instance, c.client.GatewayStart)
}

// StopGateway asks the server to stop the bridge.
func (c *Controller) StopGateway(ctx context.Context, instance string) (string, error) {
	return c.action(ctx, instance, c.client.GatewayStop)
}

// ResetGateway asks the server to reset the bridge session.
func (c *Controller) ResetGateway(ctx context.Context, instance string) (string, error) {
	return c.action(ctx, instance, c.client.GatewayReset)
}

func (c *Controller) action(ctx context.Context, instance string, call func(context.Context, string) (*httpapi.ActionResponse, error)) (string, error) {
	inst := c.instance(instance)
	if inst == nil {
		return "", fmt.Errorf("unknown gateway instance %q", instance)
	}

	c.mu.Lock()
	if inst.busy {
		c.mu.Unlock()
		return "", ErrBusy
	}
	inst.busy = true
	c.mu.Unlock()

	// The busy flag is restored on every path, success or failure.
	defer func() {
		c.mu.Lock()
		inst.busy = false
		c.mu.Unlock()
	}()

	resp, err := call(ctx, instance)
	if err != nil {
		return "", err
	}
	c.bus.Emit("gateway.action", StatusChange{Instance: instance})
	return resp.Message, nil
}

func (c *Controller) instance(name string) *instanceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instances[name]
}

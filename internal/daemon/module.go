// Package daemon composes the runtime components into the waconsoled
// process using fx.
package daemon

import (
	"context"
	"errors"
	"io/fs"

	"github.com/safegreen/waconsole/internal/activity"
	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/cache"
	"github.com/safegreen/waconsole/internal/config"
	"github.com/safegreen/waconsole/internal/gateway"
	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/lock"
	"github.com/safegreen/waconsole/internal/logging"
	"github.com/safegreen/waconsole/internal/notify"
	"github.com/safegreen/waconsole/internal/panels"
	"github.com/safegreen/waconsole/internal/profile"
	"github.com/safegreen/waconsole/internal/state"
	"github.com/safegreen/waconsole/internal/syncer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	Profile string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideCache,
			provideClient,
			provideRuntime,
			provideMonitor,
			provideSyncer,
			providePanels,
			provideNotifier,
			provideGateways,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

// provideConfig loads ~/.waconsole/config.toml. A missing file means stock
// defaults; a malformed one is a startup error.
func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no config file, using defaults", zap.String("path", profile.ConfigPath()))
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := profile.CacheDBPath(p.Profile)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(cfg *config.Config) (*httpapi.Client, error) {
	return httpapi.New(cfg.Server.BaseURL, cfg.Server.CSRFToken)
}

func provideRuntime() *state.Runtime {
	return state.NewRuntime()
}

func provideMonitor(b *bus.Bus, cfg *config.Config) *activity.Monitor {
	return activity.NewMonitor(b, cfg.Poll)
}

func provideSyncer(client *httpapi.Client, db *cache.DB, b *bus.Bus, runtime *state.Runtime, monitor *activity.Monitor, cfg *config.Config, logger *zap.Logger) *syncer.Engine {
	return syncer.NewEngine(client, db, b, runtime, monitor, cfg, logger)
}

func providePanels(client *httpapi.Client, db *cache.DB, b *bus.Bus, runtime *state.Runtime, monitor *activity.Monitor, cfg *config.Config, logger *zap.Logger) *panels.Engine {
	return panels.NewEngine(client, db, b, runtime, monitor, cfg, logger)
}

func provideNotifier(b *bus.Bus, db *cache.DB, runtime *state.Runtime, cfg *config.Config, logger *zap.Logger) (*notify.Notifier, error) {
	return notify.NewNotifier(b, db, runtime, cfg, logger)
}

func provideGateways(client *httpapi.Client, b *bus.Bus, runtime *state.Runtime, cfg *config.Config, logger *zap.Logger) *gateway.Controller {
	return gateway.NewController(client, b, runtime, cfg, logger, cfg.Gateway.Instances)
}

func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, db *cache.DB, sync *syncer.Engine, pnl *panels.Engine, notifier *notify.Notifier, gateways *gateway.Controller, b *bus.Bus, logger *zap.Logger) {
	sink := newEventLog(b, logger)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := profile.RememberSelected(p.Profile); err != nil {
				logger.Warn("could not remember selected profile", zap.Error(err))
			}
			sink.Start(context.Background())
			notifier.Start(context.Background())
			sync.Start(context.Background())
			pnl.Start(context.Background())
			gateways.Start(context.Background())
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			gateways.Stop()
			pnl.Stop()
			sync.Stop()
			notifier.Stop()
			sink.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

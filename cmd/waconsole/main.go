package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/safegreen/waconsole/internal/activity"
	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/cache"
	"github.com/safegreen/waconsole/internal/config"
	"github.com/safegreen/waconsole/internal/daemon"
	"github.com/safegreen/waconsole/internal/gateway"
	"github.com/safegreen/waconsole/internal/notify"
	"github.com/safegreen/waconsole/internal/panels"
	"github.com/safegreen/waconsole/internal/profile"
	"github.com/safegreen/waconsole/internal/state"
	"github.com/safegreen/waconsole/internal/syncer"
	"github.com/safegreen/waconsole/internal/tui"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		// The console embeds the full runtime in-process; the terminal owns
		// stdout, so fx event noise goes nowhere.
		fx.NopLogger,
		daemon.Module(daemon.Params{Profile: name}),
		fx.Provide(func(cfg *config.Config, b *bus.Bus, db *cache.DB, runtime *state.Runtime, monitor *activity.Monitor, sync *syncer.Engine, pnl *panels.Engine, notifier *notify.Notifier, gateways *gateway.Controller, logger *zap.Logger) *tui.App {
			return tui.NewApp(name, cfg, b, db, runtime, monitor, sync, pnl, notifier, gateways, logger)
		}),
		fx.Invoke(runConsole),
	)

	app.Run()
}

// runConsole ties the TUI to the fx lifecycle: the process exits when the
// operator quits the console.
func runConsole(lc fx.Lifecycle, app *tui.App, sh fx.Shutdowner, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := app.Run(); err != nil {
					logger.Error("console exited with error", zap.Error(err))
				}
				_ = sh.Shutdown()
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			app.Stop()
			return nil
		},
	})
}

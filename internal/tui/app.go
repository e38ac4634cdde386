// Package tui is the interactive console shell. It projects the runtime's
// bus events into a tview layout and feeds operator input back into the
// engines.
package tui

import (
	"context"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/rivo/tview"
	"github.com/safegreen/waconsole/internal/activity"
	"github.com/safegreen/waconsole/internal/bus"
	"github.com/safegreen/waconsole/internal/cache"
	"github.com/safegreen/waconsole/internal/config"
	"github.com/safegreen/waconsole/internal/gateway"
	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/notify"
	"github.com/safegreen/waconsole/internal/panels"
	"github.com/safegreen/waconsole/internal/state"
	"github.com/safegreen/waconsole/internal/syncer"
	"github.com/safegreen/waconsole/internal/tui/keys"
	"github.com/safegreen/waconsole/internal/tui/ui"
	"github.com/safegreen/waconsole/internal/tui/views"
	"go.uber.org/zap"
)

const flashDuration = 5 * time.Second

// App is the console application shell.
type App struct {
	app    *tview.Application
	screen tcell.Screen
	pages  *tview.Pages

	theme     *ui.Theme
	registry  *keys.Registry
	tabs      *ui.Tabs
	prompt    *ui.Prompt
	menu      *ui.Menu
	toasts    *ui.ToastStack
	toastBar  *ui.ToastBar
	statusBar *views.StatusBar

	panelTable  *views.PanelTable
	threadView  *views.ThreadView
	gatewayView *views.GatewayView

	bus      *bus.Bus
	db       *cache.DB
	cfg      *config.Config
	runtime  *state.Runtime
	monitor  *activity.Monitor
	sync     *syncer.Engine
	panels   *panels.Engine
	notifier *notify.Notifier
	gateways *gateway.Controller
	logger   *zap.Logger

	panelKeys []string
	activeKey string
	snapshot  map[string]httpapi.Panel
	channel   string
	search    string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the console shell for one profile.
func NewApp(profileName string, cfg *config.Config, b *bus.Bus, db *cache.DB, runtime *state.Runtime, monitor *activity.Monitor, sync *syncer.Engine, pnl *panels.Engine, notifier *notify.Notifier, gateways *gateway.Controller, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	toasts := ui.NewToastStack()

	a := &App{
		app:         tview.NewApplication(),
		pages:       tview.NewPages(),
		theme:       theme,
		registry:    keys.NewRegistry(),
		tabs:        ui.NewTabs(theme),
		prompt:      ui.NewPrompt(theme),
		menu:        ui.NewMenu(theme),
		toasts:      toasts,
		toastBar:    ui.NewToastBar(theme, toasts),
		statusBar:   views.NewStatusBar(),
		panelTable:  views.NewPanelTable(theme),
		threadView:  views.NewThreadView(theme),
		gatewayView: views.NewGatewayView(theme, cfg.Gateway.Instances),
		bus:         b,
		db:          db,
		cfg:         cfg,
		runtime:     runtime,
		monitor:     monitor,
		sync:        sync,
		panels:      pnl,
		notifier:    notifier,
		gateways:    gateways,
		logger:      logger,
		channel:     cfg.Server.Channel,
		ctx:         ctx,
		cancel:      cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.statusBar.SetTier(monitor.Tier().String())
	a.statusBar.SetFilters(a.channel, "")
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Label: "q", Description: "quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal("lines", &keys.Action{
		Rune: 'g', Key: tcell.KeyRune,
		Label: "g", Description: "lines", Visible: true,
		Handler: func() { a.switchPage("gateways") },
	})
	a.registry.AddGlobal("search", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Label: "/", Description: "search", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptSearch) },
	})
	a.registry.AddGlobal("channel", &keys.Action{
		Rune: 'c', Key: tcell.KeyRune,
		Label: "c", Description: "channel", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptChannel) },
	})
	a.registry.AddGlobal("sound", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Label: "m", Description: "sound on/off", Visible: true,
		Handler: func() { a.togglePref(true) },
	})
	a.registry.AddGlobal("popups", &keys.Action{
		Rune: 'n', Key: tcell.KeyRune,
		Label: "n", Description: "popups on/off", Visible: true,
		Handler: func() { a.togglePref(false) },
	})
	a.registry.AddGlobal("dismiss", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Label: "d", Description: "dismiss toasts", Visible: true,
		Handler: func() { a.dismissToasts() },
	})

	a.registry.AddView("panels", "refresh", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Label: "r", Description: "refresh", Visible: true,
		Handler: func() {
			go func() {
				if err := a.panels.Refresh(a.ctx); err != nil {
					a.flash("Refresh failed: " + err.Error())
				}
			}()
		},
	})
	a.registry.AddView("panels", "nexttab", &keys.Action{
		Key:   tcell.KeyTab,
		Label: "tab", Description: "next panel", Visible: true,
		Handler: func() { a.cycleTab(1) },
	})

	a.registry.AddView("thread", "older", &keys.Action{
		Rune: 'u', Key: tcell.KeyRune,
		Label: "u", Description: "older history", Visible: true,
		Handler: func() {
			go func() {
				if err := a.sync.LoadOlder(a.ctx); err != nil {
					a.flash("History load failed: " + err.Error())
				}
			}()
		},
	})
	a.registry.AddView("thread", "handled", &keys.Action{
		Rune: 'a', Key: tcell.KeyRune,
		Label: "a", Description: "mark answered", Visible: true,
		Handler: func() {
			if id := a.runtime.OpenThread(); id != 0 {
				a.panels.MarkAgentResponse(id)
				a.flash("Cooldown started")
			}
		},
	})

	a.addGatewayBindings()
}

func (a *App) addGatewayBindings() {
	instance := func() string { return a.gatewayView.Selected() }

	a.registry.AddView("gateways", "pair", &keys.Action{
		Rune: 'w', Key: tcell.KeyRune,
		Label: "w", Description: "pair (QR)", Visible: true,
		Handler: func() {
			name := instance()
			go func() {
				if err := a.gateways.ShowQR(a.ctx, name); err != nil {
					a.flash("Pairing failed: " + err.Error())
				}
			}()
		},
	})
	a.registry.AddView("gateways", "hideqr", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Label: "x", Description: "hide QR", Visible: true,
		Handler: func() { a.gateways.HideQR(instance()) },
	})
	a.registry.AddView("gateways", "reset", &keys.Action{
		Rune: 'R', Key: tcell.KeyRune,
		Label: "R", Description: "reset", Visible: true,
		Handler: func() { a.gatewayAction("Reset", a.gateways.ResetGateway) },
	})
	a.registry.AddView("gateways", "start", &keys.Action{
		Rune: 'S', Key: tcell.KeyRune,
		Label: "S", Description: "start", Visible: true,
		Handler: func() { a.gatewayAction("Start", a.gateways.StartGateway) },
	})
	a.registry.AddView("gateways", "stop", &keys.Action{
		Rune: 'T', Key: tcell.KeyRune,
		Label: "T", Description: "stop", Visible: true,
		Handler: func() { a.gatewayAction("Stop", a.gateways.StopGateway) },
	})
	a.registry.AddView("gateways", "import", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Label: "i", Description: "full import", Visible: true,
		Handler: func() {
			name := instance()
			go func() {
				err := a.gateways.FullHistoryImport(a.ctx, name, httpapi.HistorySyncRequest{
					Mode: httpapi.HistoryModeAll,
				})
				if err != nil {
					a.flash("Import failed: " + err.Error())
				}
			}()
		},
	})
	a.registry.AddView("gateways", "recent", &keys.Action{
		Rune: 'h', Key: tcell.KeyRune,
		Label: "h", Description: "sync last 24h", Visible: true,
		Handler: func() {
			name := instance()
			go func() {
				stats, err := a.gateways.SyncHistory(a.ctx, name, httpapi.HistorySyncRequest{
					Mode:            httpapi.HistoryModeHours,
					LookbackMinutes: 24 * 60,
				})
				if err != nil {
					a.flash("Sync failed: " + err.Error())
					return
				}
				a.flash(views.SummaryLine(*stats))
			}()
		},
	})
}

func (a *App) setupCallbacks() {
	a.panelTable.SetOnSelect(func(item httpapi.PanelItem) {
		a.openThread(item)
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptSearch:
			a.search = text
			a.statusBar.SetFilters(a.channel, a.search)
			go func() {
				if err := a.panels.SetSearch(a.ctx, text); err != nil {
					a.flash("Search failed: " + err.Error())
				}
			}()
		case ui.PromptChannel:
			a.channel = text
			a.statusBar.SetFilters(a.channel, a.search)
			go func() {
				if err := a.panels.SetChannel(a.ctx, text); err != nil {
					a.flash("Channel switch failed: " + err.Error())
				}
			}()
		}
	})
	a.prompt.SetOnCancel(func() { a.hidePrompt() })
}

func (a *App) setupLayout() {
	a.pages.AddPage("panels", a.panelTable, true, true)
	a.pages.AddPage("thread", a.threadView, true, false)
	a.pages.AddPage("gateways", a.gatewayView, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.tabs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.toastBar, 1, 0, false).
		AddItem(a.menu, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.menu.Update(a.registry.Hints("panels"))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		a.monitor.MarkActivity()
		currentPage, _ := a.pages.GetFrontPage()

		// Let the prompt consume everything while it is focused.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "thread":
				a.closeThread()
				return nil
			case "gateways":
				a.switchPage("panels")
				return nil
			}
		}

		// Number keys jump to the nth panel tab or gateway card.
		if event.Key() == tcell.KeyRune && event.Rune() >= '1' && event.Rune() <= '9' {
			n := int(event.Rune() - '1')
			switch currentPage {
			case "panels":
				a.selectTab(n)
				return nil
			case "gateways":
				a.gatewayView.Select(n)
				return nil
			}
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

// Run starts the console. It blocks until the operator quits.
func (a *App) Run() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	a.screen = screen
	a.app.SetScreen(screen)

	a.monitor.SetVisible(true)
	go a.pump()
	go a.clockLoop()

	err = a.app.Run()
	a.monitor.SetVisible(false)
	return err
}

// Stop shuts the console down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// pump translates bus events into view updates.
func (a *App) pump() {
	events, unsub := a.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-events:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "thread.hydrated", "thread.updated":
		update, ok := evt.Payload.(syncer.ThreadUpdate)
		if !ok || update.ThreadID != a.runtime.OpenThread() {
			return
		}
		window := update.Messages
		if entry, err := a.db.GetThread(update.ThreadID); err == nil && entry != nil {
			window = entry.Messages
		}
		a.app.QueueUpdateDraw(func() {
			a.threadView.SetContact(update.ContactName, update.ContactPhone)
			a.threadView.SetMessages(window)
		})

	case "thread.older":
		page, ok := evt.Payload.(syncer.OlderPage)
		if !ok || page.ThreadID != a.runtime.OpenThread() {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.threadView.PrependOlder(page.Messages, page.HasMore)
		})

	case "panel.hydrated", "panel.refreshed":
		snap, ok := evt.Payload.(panels.Snapshot)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() { a.applySnapshot(snap) })
		if !snap.FromCache {
			go a.sync.Prefetch(a.ctx, visibleThreads(snap.Panels))
		}

	case "notify.toast":
		toast, ok := evt.Payload.(notify.Toast)
		if !ok {
			return
		}
		a.toasts.Upsert(toast)
		a.app.QueueUpdateDraw(func() { a.toastBar.Update() })

	case "notify.toast_dismissed":
		id, ok := evt.Payload.(string)
		if !ok {
			return
		}
		a.toasts.Dismiss(id)
		a.app.QueueUpdateDraw(func() { a.toastBar.Update() })

	case "notify.sound":
		// Terminal bell stands in for the configured cue style.
		if a.screen != nil {
			_ = a.screen.Beep()
		}

	case "gateway.status_changed":
		change, ok := evt.Payload.(gateway.StatusChange)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.gatewayView.SetStatus(change.Instance, change.Status, change.Info)
			a.statusBar.SetOfflineCount(len(a.runtime.OfflineGateways()))
		})

	case "gateway.qr":
		qr, ok := evt.Payload.(gateway.QRUpdate)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.gatewayView.ShowQR(qr.Instance, qr.QR, qr.ExpiresAt)
		})

	case "gateway.qr_hidden":
		if name, ok := evt.Payload.(string); ok {
			a.app.QueueUpdateDraw(func() { a.gatewayView.HideQR(name) })
		}

	case "gateway.paired":
		if name, ok := evt.Payload.(string); ok {
			a.app.QueueUpdateDraw(func() { a.gatewayView.HideQR(name) })
			a.flash("Line " + name + " paired")
		}

	case "gateway.qr_unavailable":
		a.flash("QR not available, recovery attempts exhausted")

	case "gateway.import_changed", "gateway.import_done":
		a.refreshImportLines()

	case "activity.changed":
		if tier, ok := evt.Payload.(string); ok {
			a.app.QueueUpdateDraw(func() { a.statusBar.SetTier(tier) })
		}
	}
}

// applySnapshot installs a new panel set: tab row, active table and the
// unread counters. Runs on the UI goroutine.
func (a *App) applySnapshot(snap panels.Snapshot) {
	a.snapshot = snap.Panels
	a.panelKeys = a.panelKeys[:0]
	unread := make(map[string]int, len(snap.Panels))
	for key, panel := range snap.Panels {
		a.panelKeys = append(a.panelKeys, key)
		unread[key] = panel.Unread
	}
	sort.Strings(a.panelKeys)

	if a.activeKey == "" || !containsKey(a.panelKeys, a.activeKey) {
		if len(a.panelKeys) > 0 {
			a.activeKey = a.panelKeys[0]
		} else {
			a.activeKey = ""
		}
	}

	a.tabs.Update(a.panelKeys, a.activeKey, unread)
	if a.activeKey != "" {
		a.panelTable.Update(a.activeKey, a.snapshot[a.activeKey])
	}
}

func (a *App) selectTab(n int) {
	if n < 0 || n >= len(a.panelKeys) {
		return
	}
	a.activeKey = a.panelKeys[n]
	a.applySnapshot(panels.Snapshot{Panels: a.snapshot})
}

func (a *App) cycleTab(delta int) {
	if len(a.panelKeys) == 0 {
		return
	}
	cur := 0
	for i, key := range a.panelKeys {
		if key == a.activeKey {
			cur = i
			break
		}
	}
	a.selectTab((cur + delta + len(a.panelKeys)) % len(a.panelKeys))
}

func (a *App) openThread(item httpapi.PanelItem) {
	a.threadView.Reset()
	a.threadView.SetContact(item.Contact, "")
	a.switchPage("thread")
	go func() {
		if err := a.sync.Open(a.ctx, item.ThreadID); err != nil && a.ctx.Err() == nil {
			a.flash("Open failed: " + err.Error())
		}
	}()
}

func (a *App) closeThread() {
	a.sync.Close()
	a.threadView.Reset()
	a.switchPage("panels")
}

func (a *App) switchPage(name string) {
	a.pages.SwitchToPage(name)
	a.menu.Update(a.registry.Hints(name))
	switch name {
	case "panels":
		a.app.SetFocus(a.panelTable)
	case "thread":
		a.app.SetFocus(a.threadView)
	case "gateways":
		a.app.SetFocus(a.gatewayView)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.pages.AddPage("prompt", promptOverlay(a.prompt), true, true)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.pages.RemovePage("prompt")
	current, _ := a.pages.GetFrontPage()
	a.switchPage(current)
}

// promptOverlay floats the prompt over the current page.
func promptOverlay(p *ui.Prompt) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, 3, 0, true).
			AddItem(nil, 0, 2, false), 0, 2, true).
		AddItem(nil, 0, 1, false)
}

func (a *App) togglePref(sound bool) {
	prefs := a.notifier.Preferences()
	var label string
	if sound {
		prefs.SoundEnabled = !prefs.SoundEnabled
		label = onOff("Sound", prefs.SoundEnabled)
	} else {
		prefs.PopupEnabled = !prefs.PopupEnabled
		label = onOff("Popups", prefs.PopupEnabled)
	}
	if err := a.notifier.SetPreferences(prefs); err != nil {
		a.flash("Preference update failed: " + err.Error())
		return
	}
	a.flash(label)
}

func (a *App) dismissToasts() {
	for _, t := range a.toasts.Active() {
		if !t.Sticky {
			a.notifier.Dismiss(t.ID)
		}
	}
}

func (a *App) gatewayAction(label string, call func(context.Context, string) (string, error)) {
	name := a.gatewayView.Selected()
	go func() {
		msg, err := call(a.ctx, name)
		if err != nil {
			a.flash(label + " failed: " + err.Error())
			return
		}
		if msg == "" {
			msg = label + " requested"
		}
		a.flash(msg)
	}()
}

func (a *App) refreshImportLines() {
	type line struct {
		instance string
		text     string
		summary  *gateway.ImportSummary
	}
	var lines []line
	for _, name := range a.cfg.Gateway.Instances {
		_, describe, summary := a.gateways.ImportStatus(name)
		lines = append(lines, line{instance: name, text: describe, summary: summary})
	}
	a.app.QueueUpdateDraw(func() {
		for _, l := range lines {
			a.gatewayView.SetImport(l.instance, l.text, l.summary)
		}
	})
}

// flash raises a short-lived local toast for action feedback.
func (a *App) flash(text string) {
	id := uuid.NewString()
	a.toasts.Upsert(notify.Toast{ID: id, Title: text})
	a.app.QueueUpdateDraw(func() { a.toastBar.Update() })
	time.AfterFunc(flashDuration, func() {
		a.toasts.Dismiss(id)
		a.app.QueueUpdateDraw(func() { a.toastBar.Update() })
	})
}

// clockLoop keeps the status bar clock current.
func (a *App) clockLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() { a.statusBar.Refresh() })
		case <-a.ctx.Done():
			return
		}
	}
}

func visibleThreads(snap map[string]httpapi.Panel) []int64 {
	var ids []int64
	for _, panel := range snap {
		for _, item := range panel.Items {
			ids = append(ids, item.ThreadID)
		}
	}
	return ids
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func onOff(what string, enabled bool) string {
	if enabled {
		return what + " on"
	}
	return what + " off"
}

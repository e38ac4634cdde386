package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.waconsole/config.toml.
//
// Interval and TTL fields are expressed in seconds so the file stays
// hand-editable; accessor methods convert to time.Duration. Zero values are
// replaced by the defaults below on Load, so a partial file is always valid.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	Server  ServerConfig  `toml:"server"`
	Poll    PollConfig    `toml:"poll"`
	Cache   CacheConfig   `toml:"cache"`
	Gateway GatewayConfig `toml:"gateway"`
	Notify  NotifyConfig  `toml:"notify"`
}

// ServerConfig locates the console server and its anti-forgery token.
type ServerConfig struct {
	BaseURL   string `toml:"base_url"`
	CSRFToken string `toml:"csrf_token"`
	Channel   string `toml:"channel"`
}

// PollConfig holds the cadence table for the sync and panel loops.
type PollConfig struct {
	ThreadActiveSecs     int `toml:"thread_active_secs"`
	ThreadIdleSecs       int `toml:"thread_idle_secs"`
	ThreadBackgroundSecs int `toml:"thread_background_secs"`
	PanelActiveSecs      int `toml:"panel_active_secs"`
	PanelIdleSecs        int `toml:"panel_idle_secs"`
	PanelBackgroundSecs  int `toml:"panel_background_secs"`
	IdleThresholdSecs    int `toml:"idle_threshold_secs"`
	HistoryPageSize      int `toml:"history_page_size"`
	PrefetchLimit        int `toml:"prefetch_limit"`
}

// CacheConfig bounds the durable thread/panel cache.
type CacheConfig struct {
	ThreadTTLSecs int `toml:"thread_ttl_secs"`
	PanelTTLSecs  int `toml:"panel_ttl_secs"`
	MaxThreads    int `toml:"max_threads"`
	MaxMessages   int `toml:"max_messages"`
}

// GatewayConfig tunes the gateway session controller. The auto-reset cap and
// cooldown are operational constants, not architectural ones, so they stay
// configurable.
type GatewayConfig struct {
	Instances []string `toml:"instances"`

	StatusPollSecs        int `toml:"status_poll_secs"`
	QRPollSecs            int `toml:"qr_poll_secs"`
	AutoResetCap          int `toml:"auto_reset_cap"`
	AutoResetCooldownSecs int `toml:"auto_reset_cooldown_secs"`
	SummaryRetentionSecs  int `toml:"summary_retention_secs"`
}

// NotifyConfig holds notification defaults; user toggles persisted in the
// profile cache override these at runtime.
type NotifyConfig struct {
	SoundEnabled     bool    `toml:"sound_enabled"`
	PopupEnabled     bool    `toml:"popup_enabled"`
	CooldownMinutes  float64 `toml:"cooldown_minutes"`
	SoundStyle       string  `toml:"sound_style"`
	ToastDismissSecs int     `toml:"toast_dismiss_secs"`
}

// Default returns a fully populated config with the stock cadence table.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Server: ServerConfig{
			BaseURL: "http://localhost:8080",
		},
		Poll: PollConfig{
			ThreadActiveSecs:     5,
			ThreadIdleSecs:       30,
			ThreadBackgroundSecs: 30,
			PanelActiveSecs:      12,
			PanelIdleSecs:        20,
			PanelBackgroundSecs:  30,
			IdleThresholdSecs:    120,
			HistoryPageSize:      40,
			PrefetchLimit:        4,
		},
		Cache: CacheConfig{
			ThreadTTLSecs: 300,
			PanelTTLSecs:  60,
			MaxThreads:    20,
			MaxMessages:   120,
		},
		Gateway: GatewayConfig{
			Instances:             []string{"primary"},
			StatusPollSecs:        25,
			QRPollSecs:            20,
			AutoResetCap:          2,
			AutoResetCooldownSecs: 120,
			SummaryRetentionSecs:  20,
		},
		Notify: NotifyConfig{
			SoundEnabled:     true,
			PopupEnabled:     true,
			CooldownMinutes:  2,
			SoundStyle:       "voice",
			ToastDismissSecs: 9,
		},
	}
}

// Load reads config from the given path and fills unset fields with defaults.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.DefaultProfile == "" {
		c.DefaultProfile = def.DefaultProfile
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = def.Server.BaseURL
	}
	fillInt(&c.Poll.ThreadActiveSecs, def.Poll.ThreadActiveSecs)
	fillInt(&c.Poll.ThreadIdleSecs, def.Poll.ThreadIdleSecs)
	fillInt(&c.Poll.ThreadBackgroundSecs, def.Poll.ThreadBackgroundSecs)
	fillInt(&c.Poll.PanelActiveSecs, def.Poll.PanelActiveSecs)
	fillInt(&c.Poll.PanelIdleSecs, def.Poll.PanelIdleSecs)
	fillInt(&c.Poll.PanelBackgroundSecs, def.Poll.PanelBackgroundSecs)
	fillInt(&c.Poll.IdleThresholdSecs, def.Poll.IdleThresholdSecs)
	fillInt(&c.Poll.HistoryPageSize, def.Poll.HistoryPageSize)
	fillInt(&c.Poll.PrefetchLimit, def.Poll.PrefetchLimit)
	fillInt(&c.Cache.ThreadTTLSecs, def.Cache.ThreadTTLSecs)
	fillInt(&c.Cache.PanelTTLSecs, def.Cache.PanelTTLSecs)
	fillInt(&c.Cache.MaxThreads, def.Cache.MaxThreads)
	fillInt(&c.Cache.MaxMessages, def.Cache.MaxMessages)
	if len(c.Gateway.Instances) == 0 {
		c.Gateway.Instances = def.Gateway.Instances
	}
	fillInt(&c.Gateway.StatusPollSecs, def.Gateway.StatusPollSecs)
	fillInt(&c.Gateway.QRPollSecs, def.Gateway.QRPollSecs)
	fillInt(&c.Gateway.AutoResetCooldownSecs, def.Gateway.AutoResetCooldownSecs)
	fillInt(&c.Gateway.SummaryRetentionSecs, def.Gateway.SummaryRetentionSecs)
	fillInt(&c.Gateway.AutoResetCap, def.Gateway.AutoResetCap)
	fillInt(&c.Notify.ToastDismissSecs, def.Notify.ToastDismissSecs)
	if c.Notify.SoundStyle == "" {
		c.Notify.SoundStyle = def.Notify.SoundStyle
	}
}

func fillInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

// Duration accessors.

func (p PollConfig) ThreadActive() time.Duration     { return secs(p.ThreadActiveSecs) }
func (p PollConfig) ThreadIdle() time.Duration       { return secs(p.ThreadIdleSecs) }
func (p PollConfig) ThreadBackground() time.Duration { return secs(p.ThreadBackgroundSecs) }
func (p PollConfig) PanelActive() time.Duration      { return secs(p.PanelActiveSecs) }
func (p PollConfig) PanelIdle() time.Duration        { return secs(p.PanelIdleSecs) }
func (p PollConfig) PanelBackground() time.Duration  { return secs(p.PanelBackgroundSecs) }
func (p PollConfig) IdleThreshold() time.Duration    { return secs(p.IdleThresholdSecs) }

func (c CacheConfig) ThreadTTL() time.Duration { return secs(c.ThreadTTLSecs) }
func (c CacheConfig) PanelTTL() time.Duration  { return secs(c.PanelTTLSecs) }

func (g GatewayConfig) StatusPoll() time.Duration        { return secs(g.StatusPollSecs) }
func (g GatewayConfig) QRPoll() time.Duration            { return secs(g.QRPollSecs) }
func (g GatewayConfig) AutoResetCooldown() time.Duration { return secs(g.AutoResetCooldownSecs) }
func (g GatewayConfig) SummaryRetention() time.Duration  { return secs(g.SummaryRetentionSecs) }

func (n NotifyConfig) ToastDismiss() time.Duration { return secs(n.ToastDismissSecs) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

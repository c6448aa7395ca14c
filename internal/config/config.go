package config

import (
	"fmt"
	"os"
	"time"

	"github.com/oktsec/toastd/internal/toast"
	"gopkg.in/yaml.v3"
)

// maxConfigBytes caps the config file size accepted by Load.
const maxConfigBytes = 1 << 20

// Config is the top-level toastd configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Toasts    ToastConfig     `yaml:"toasts"`
	History   HistoryConfig   `yaml:"history"`
	Webhooks  []Webhook       `yaml:"webhooks,omitempty"`
	Relay     RelayConfig     `yaml:"relay,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty"`
	Tracing   TracingConfig   `yaml:"tracing,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel string `yaml:"log_level"`
}

// ToastConfig controls how toasts are shown and how long they live.
type ToastConfig struct {
	Position           string         `yaml:"position"`
	Order              string         `yaml:"order"` // newest_last, newest_first
	MaxVisible         int            `yaml:"max_visible"`
	DefaultDurationMs  int            `yaml:"default_duration_ms"`
	CriticalDurationMs int            `yaml:"critical_duration_ms"`
	DurationsMs        map[string]int `yaml:"durations_ms,omitempty"` // per kind
	ExitDelayMs        int            `yaml:"exit_delay_ms"`
	HiddenCountdown    string         `yaml:"hidden_countdown"` // hold, run
}

// HistoryConfig configures the toast history database.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Driver        string `yaml:"driver"` // sqlite, postgres
	DSN           string `yaml:"dsn"`
	RetentionDays int    `yaml:"retention_days"` // 0 = keep forever
}

// Webhook defines an outgoing notification endpoint.
type Webhook struct {
	URL      string   `yaml:"url"`
	Events   []string `yaml:"events"` // action, critical, added, removed
	Template string   `yaml:"template,omitempty"`
}

// RelayConfig connects toastd to the EDR backend over Redis pub/sub.
type RelayConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password,omitempty"`
	DB            int    `yaml:"db"`
	AlertsChannel string `yaml:"alerts_channel"`
	EventsChannel string `yaml:"events_channel,omitempty"`
}

// RateLimitConfig limits toast creation per source.
type RateLimitConfig struct {
	PerSource int `yaml:"per_source"` // 0 = unlimited
	WindowS   int `yaml:"window_s"`
}

// TracingConfig toggles OpenTelemetry tracing to stdout.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads and parses a toastd config file.
func Load(path string) (*Config, error) {
	data, err := readFile(path, maxConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	if cfg.History.Driver == "" {
		cfg.History.Driver = "sqlite"
	}
	if cfg.History.DSN == "" {
		cfg.History.DSN = "toastd.db"
	}
	if cfg.Relay.AlertsChannel == "" {
		cfg.Relay.AlertsChannel = "edr:alerts"
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Toasts: ToastConfig{
			Position:           string(toast.PositionTopRight),
			Order:              string(toast.OrderNewestLast),
			MaxVisible:         toast.DefaultMaxVisible,
			DefaultDurationMs:  int(toast.DefaultDuration / time.Millisecond),
			CriticalDurationMs: int(toast.DefaultCriticalDuration / time.Millisecond),
			ExitDelayMs:        int(toast.DefaultExitDelay / time.Millisecond),
			HiddenCountdown:    string(toast.HiddenHold),
		},
		History: HistoryConfig{
			Enabled:       true,
			Driver:        "sqlite",
			DSN:           "toastd.db",
			RetentionDays: 30,
		},
		Relay: RelayConfig{
			Addr:          "127.0.0.1:6379",
			AlertsChannel: "edr:alerts",
		},
		RateLimit: RateLimitConfig{
			WindowS: 60,
		},
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.Server.LogLevel)
	}

	t := c.Toasts
	if t.Position != "" && !toast.Position(t.Position).Valid() {
		return fmt.Errorf("invalid toasts.position %q", t.Position)
	}
	switch toast.Order(t.Order) {
	case "", toast.OrderNewestLast, toast.OrderNewestFirst:
	default:
		return fmt.Errorf("invalid toasts.order %q", t.Order)
	}
	switch toast.HiddenPolicy(t.HiddenCountdown) {
	case "", toast.HiddenHold, toast.HiddenRun:
	default:
		return fmt.Errorf("invalid toasts.hidden_countdown %q", t.HiddenCountdown)
	}
	if t.MaxVisible < 0 {
		return fmt.Errorf("toasts.max_visible must not be negative")
	}
	if t.DefaultDurationMs < 0 || t.CriticalDurationMs < 0 || t.ExitDelayMs < 0 {
		return fmt.Errorf("toast durations must not be negative")
	}
	for kind, ms := range t.DurationsMs {
		if toast.ParseKind(kind) != toast.Kind(kind) {
			return fmt.Errorf("toasts.durations_ms has unknown kind %q", kind)
		}
		if ms < 0 {
			return fmt.Errorf("toasts.durations_ms[%s] must not be negative", kind)
		}
	}

	if c.History.Enabled {
		switch c.History.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("invalid history.driver %q", c.History.Driver)
		}
	}
	if c.Relay.Enabled && c.Relay.Addr == "" {
		return fmt.Errorf("relay.addr is required when relay is enabled")
	}
	for _, wh := range c.Webhooks {
		for _, ev := range wh.Events {
			switch ev {
			case "action", "critical", "added", "removed":
			default:
				return fmt.Errorf("webhook %q has invalid event %q", wh.URL, ev)
			}
		}
	}
	return nil
}

// ToastSettings converts the toasts section into manager settings.
func (c *Config) ToastSettings() toast.Settings {
	t := c.Toasts
	s := toast.Settings{
		Position:         toast.Position(t.Position),
		Order:            toast.Order(t.Order),
		MaxVisible:       t.MaxVisible,
		DefaultDuration:  ms(t.DefaultDurationMs),
		CriticalDuration: ms(t.CriticalDurationMs),
		ExitDelay:        ms(t.ExitDelayMs),
		Hidden:           toast.HiddenPolicy(t.HiddenCountdown),
	}
	if len(t.DurationsMs) > 0 {
		s.KindDurations = make(map[toast.Kind]time.Duration, len(t.DurationsMs))
		for kind, v := range t.DurationsMs {
			s.KindDurations[toast.ParseKind(kind)] = ms(v)
		}
	}
	return s
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

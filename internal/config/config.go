// Package config loads feedguard configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"feedguard/internal/models"
)

// DefaultConfigFile is looked up in the working and home directories.
const DefaultConfigFile = ".feedguard.yaml"

// Navigation strategies.
const (
	NavPoll  = "poll"
	NavHooks = "hooks"
	NavBoth  = "both"
)

// Config is the top-level configuration.
type Config struct {
	Settings models.Settings `yaml:"settings"`
	Engine   EngineConfig    `yaml:"engine"`
	Server   ServerConfig    `yaml:"server"`
}

// EngineConfig tunes timings and bounds. Zero values take defaults.
type EngineConfig struct {
	Throttle      time.Duration `yaml:"throttle"`
	ReadyAttempts int           `yaml:"ready_attempts"`
	ReadyInterval time.Duration `yaml:"ready_interval"`

	RootRetry    time.Duration `yaml:"root_retry"`
	RootRetryMax time.Duration `yaml:"root_retry_max"`
	RootAttempts int           `yaml:"root_attempts"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	Navigation   string        `yaml:"navigation"` // poll | hooks | both
	NavPoll      time.Duration `yaml:"nav_poll"`
	HookDelay    time.Duration `yaml:"hook_delay"`

	NudgeDebounce time.Duration `yaml:"nudge_debounce"`
	VisibleDelay  time.Duration `yaml:"visible_delay"`

	SweepInterval   time.Duration `yaml:"sweep_interval"`
	DetectionLogCap int           `yaml:"detection_log_cap"`
	SuspectedCap    int           `yaml:"suspected_cap"`

	MaxDepth           int `yaml:"max_depth"`
	FallbackSpanLimit  int `yaml:"fallback_span_limit"`
	FallbackSpanMaxLen int `yaml:"fallback_span_max_len"`
}

// ServerConfig is read by cmd/server.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// Default returns a fully populated configuration.
func Default() Config {
	c := Config{Settings: models.DefaultSettings()}
	c.ApplyDefaults()
	return c
}

// Load reads path over the defaults. An empty path yields Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Find returns configPath if it exists, else the first DefaultConfigFile in
// the working or home directory, else "".
func Find(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ApplyDefaults fills every zero field with its default.
func (c *Config) ApplyDefaults() {
	e := &c.Engine
	setDur(&e.Throttle, 200*time.Millisecond)
	setInt(&e.ReadyAttempts, 15)
	setDur(&e.ReadyInterval, 300*time.Millisecond)
	setDur(&e.RootRetry, 1500*time.Millisecond)
	setDur(&e.RootRetryMax, 15*time.Second)
	setInt(&e.RootAttempts, 20)
	setDur(&e.SettleDelay, 800*time.Millisecond)
	if e.Navigation == "" {
		e.Navigation = NavBoth
	}
	setDur(&e.NavPoll, time.Second)
	setDur(&e.HookDelay, 100*time.Millisecond)
	setDur(&e.NudgeDebounce, 100*time.Millisecond)
	setDur(&e.VisibleDelay, 500*time.Millisecond)
	setDur(&e.SweepInterval, 45*time.Second)
	setInt(&e.DetectionLogCap, 100)
	setInt(&e.SuspectedCap, 50)
	setInt(&e.MaxDepth, 12)
	setInt(&e.FallbackSpanLimit, 20)
	setInt(&e.FallbackSpanMaxLen, 50)

	s := &c.Server
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	setDur(&s.ReadTimeout, 15*time.Second)
	setDur(&s.WriteTimeout, 60*time.Second)
	setDur(&s.FetchTimeout, 20*time.Second)
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = 5 << 20
	}
	if c.Settings.Verbosity == "" {
		c.Settings.Verbosity = "normal"
	}
}

func setDur(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func setInt(i *int, def int) {
	if *i == 0 {
		*i = def
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Settings.Verbosity {
	case "normal", "verbose":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidVerbosity, c.Settings.Verbosity)
	}
	for _, k := range c.Settings.BlockedKeywords {
		if strings.TrimSpace(k) == "" {
			return ErrBlankKeyword
		}
	}
	e := c.Engine
	durations := map[string]time.Duration{
		"throttle": e.Throttle, "ready_interval": e.ReadyInterval, "root_retry": e.RootRetry,
		"root_retry_max": e.RootRetryMax, "settle_delay": e.SettleDelay, "nav_poll": e.NavPoll,
		"hook_delay": e.HookDelay, "nudge_debounce": e.NudgeDebounce, "visible_delay": e.VisibleDelay,
		"sweep_interval": e.SweepInterval,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidDuration, name)
		}
	}
	for name, n := range map[string]int{"ready_attempts": e.ReadyAttempts, "root_attempts": e.RootAttempts} {
		if n < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidAttempts, name)
		}
	}
	switch e.Navigation {
	case NavPoll, NavHooks, NavBoth:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNavigation, e.Navigation)
	}
	if c.Server.MaxBodyBytes < 0 {
		return ErrInvalidBodySize
	}
	return nil
}

// Package config loads server tuning from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JLsquare/voxplace/internal/canvas"
)

type Config struct {
	Addr    string `yaml:"addr"`
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`

	// IndexMode is "linear" or "legacy".
	IndexMode string `yaml:"index_mode"`

	FlushIntervalMS    int  `yaml:"flush_interval_ms"`
	GridFlushAgeMS     int  `yaml:"grid_flush_age_ms"`
	ExportEverySeconds int  `yaml:"export_every_seconds"`
	ViewerQueueSize    int  `yaml:"viewer_queue_size"`
	DefaultCooldownSec int  `yaml:"default_cooldown_seconds"`
	MaxCanvasSide      int  `yaml:"max_canvas_side"`
	TokenTTLHours      int  `yaml:"token_ttl_hours"`
	ShutdownTimeoutSec int  `yaml:"shutdown_timeout_seconds"`
	AuditLog           bool `yaml:"audit_log"`
	CachedCooldowns    bool `yaml:"cached_cooldowns"`
}

func Defaults() Config {
	return Config{
		Addr:               ":8000",
		DataDir:            "./data",
		IndexMode:          "linear",
		FlushIntervalMS:    5000,
		GridFlushAgeMS:     5000,
		ExportEverySeconds: 60,
		ViewerQueueSize:    256,
		DefaultCooldownSec: 10,
		MaxCanvasSide:      512,
		TokenTTLHours:      24 * 30,
		ShutdownTimeoutSec: 10,
		AuditLog:           true,
		CachedCooldowns:    true,
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills derived and zero fields.
func (c *Config) Normalize() {
	d := Defaults()
	c.IndexMode = strings.ToLower(strings.TrimSpace(c.IndexMode))
	if c.IndexMode == "" {
		c.IndexMode = d.IndexMode
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.DBPath == "" {
		c.DBPath = c.DataDir + "/voxplace.sqlite"
	}
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.FlushIntervalMS == 0 {
		c.FlushIntervalMS = d.FlushIntervalMS
	}
	if c.GridFlushAgeMS == 0 {
		c.GridFlushAgeMS = d.GridFlushAgeMS
	}
	if c.ViewerQueueSize == 0 {
		c.ViewerQueueSize = d.ViewerQueueSize
	}
	if c.ShutdownTimeoutSec == 0 {
		c.ShutdownTimeoutSec = d.ShutdownTimeoutSec
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = d.TokenTTLHours
	}
}

func (c Config) Validate() error {
	if _, err := canvas.ParseIndexMode(c.IndexMode); err != nil {
		return err
	}
	if c.FlushIntervalMS < 10 {
		return fmt.Errorf("flush_interval_ms must be >= 10")
	}
	if c.GridFlushAgeMS < 0 {
		return fmt.Errorf("grid_flush_age_ms must be >= 0")
	}
	if c.ExportEverySeconds < 0 {
		return fmt.Errorf("export_every_seconds must be >= 0 (0 disables export)")
	}
	if c.ViewerQueueSize < 1 {
		return fmt.Errorf("viewer_queue_size must be > 0")
	}
	if c.DefaultCooldownSec < 0 {
		return fmt.Errorf("default_cooldown_seconds must be >= 0")
	}
	if c.MaxCanvasSide < 1 || c.MaxCanvasSide > canvas.MaxSide {
		return fmt.Errorf("max_canvas_side must be in [1, %d]", canvas.MaxSide)
	}
	if c.TokenTTLHours < 1 {
		return fmt.Errorf("token_ttl_hours must be > 0")
	}
	return nil
}

func (c Config) Mode() canvas.IndexMode {
	m, _ := canvas.ParseIndexMode(c.IndexMode)
	return m
}

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

func (c Config) GridFlushAge() time.Duration {
	return time.Duration(c.GridFlushAgeMS) * time.Millisecond
}

func (c Config) ExportEvery() time.Duration {
	return time.Duration(c.ExportEverySeconds) * time.Second
}

func (c Config) DefaultCooldown() time.Duration {
	return time.Duration(c.DefaultCooldownSec) * time.Second
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

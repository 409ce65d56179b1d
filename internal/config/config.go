// ============================================================================
// Intro Sequencer Config - 主程式配置
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Host configuration loaded from YAML, then overridden by environment
//
// Resolution order (later wins):
//   1. Default()
//   2. YAML file (default configs/default.yaml)
//   3. SEQUENCER_* environment variables
//
// Environment variables:
//   SEQUENCER_SCRIPT                     script file path, empty = built-in
//   SEQUENCER_METRICS_ENABLED            expose /metrics
//   SEQUENCER_METRICS_PORT               metrics HTTP port
//   SEQUENCER_RENDER_FPS                 TUI redraw rate
//   SEQUENCER_LOG_LEVEL                  debug | info | warn | error
//   SEQUENCER_LOG_FILE                   log destination while the TUI owns the terminal
//   SEQUENCER_SKIP_TYPEWRITER            clear | reveal
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ChuLiYu/intro-sequencer/internal/sequencer"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPath config file used when --config is not given
const DefaultPath = "configs/default.yaml"

// EnvPrefix every environment override starts with this
const EnvPrefix = "SEQUENCER_"

var (
	ErrInvalidPort     = errors.New("invalid metrics port")
	ErrInvalidFPS      = errors.New("invalid render fps")
	ErrInvalidLogLevel = errors.New("invalid log level")
	ErrInvalidSkip     = errors.New("invalid skip policy")
)

// Config represents the complete host configuration
// Maps config file fields through YAML tags, env overrides through env tags
type Config struct {
	Script    string          `yaml:"script" env:"SCRIPT"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Render    RenderConfig    `yaml:"render" envPrefix:"RENDER_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Sequencer SequencerConfig `yaml:"sequencer"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	Port    int  `yaml:"port" env:"PORT"`
}

type RenderConfig struct {
	FPS int `yaml:"fps" env:"FPS"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file" env:"FILE"`
}

type SequencerConfig struct {
	SkipTypewriter string `yaml:"skip_typewriter" env:"SKIP_TYPEWRITER"`
}

// Default built-in configuration
func Default() *Config {
	return &Config{
		Metrics:   MetricsConfig{Enabled: false, Port: 9090},
		Render:    RenderConfig{FPS: 30},
		Log:       LogConfig{Level: "info"},
		Sequencer: SequencerConfig{SkipTypewriter: string(sequencer.SkipClear)},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return finish(cfg)
}

// Resolve is Load, except that a missing file at DefaultPath falls back to
// the built-in defaults. An explicitly named file must exist.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == DefaultPath && errors.Is(err, os.ErrNotExist) {
		slog.Debug("Config file not found, using defaults", "path", path)
		return finish(Default())
	}
	return nil, err
}

func finish(cfg *Config) (*Config, error) {
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseEnv overlays SEQUENCER_* environment variables onto target.
// Unset variables leave the existing value untouched.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Metrics.Port))
	}
	if c.Render.FPS <= 0 || c.Render.FPS > 240 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidFPS, c.Render.FPS))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SkipPolicy(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// LogLevel parses log.level ("" means info).
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	return level, nil
}

func (c *Config) SkipPolicy() (sequencer.SkipPolicy, error) {
	p, err := sequencer.ParseSkipPolicy(c.Sequencer.SkipTypewriter)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSkip, err)
	}
	return p, nil
}

// FrameInterval redraw period derived from render.fps
func (c *Config) FrameInterval() time.Duration {
	if c.Render.FPS <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.Render.FPS)
}

// Package config loads loxr settings from YAML.
//
// Settings are resolved in layers: built-in defaults, then the YAML file,
// then environment variables. Command-line flags are applied last by the
// caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "loxr.yaml"

// Environment variables that override file settings.
const (
	EnvConfig    = "LOXR_CONFIG"
	EnvRedisAddr = "LOXR_REDIS_ADDR"
)

// REPLConfig controls the interactive prompt.
type REPLConfig struct {
	Prompt       string        `yaml:"prompt"`
	HistoryLimit int           `yaml:"history_limit"`
	Plain        bool          `yaml:"plain"`
	Timeout      time.Duration `yaml:"timeout"` // per entered chunk, 0 = no limit
}

// StoreConfig locates the SQLite run history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig describes the job queue shared by workers and submitters.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	JobsQueue     string `yaml:"jobs_queue"`
	ResultsPrefix string `yaml:"results_prefix"`
}

// ServerConfig configures the HTTP/WebSocket playground.
type ServerConfig struct {
	Addr       string        `yaml:"addr"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// Config is the full loxr configuration.
type Config struct {
	Color  string       `yaml:"color"` // "auto", "always", or "never"
	REPL   REPLConfig   `yaml:"repl"`
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`
	Server ServerConfig `yaml:"server"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Color: "auto",
		REPL: REPLConfig{
			Prompt:       "Lox > ",
			HistoryLimit: 500,
			Timeout:      5 * time.Second,
		},
		Store: StoreConfig{Path: "loxr.db"},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			JobsQueue:     "loxr:jobs",
			ResultsPrefix: "loxr:result:",
		},
		Server: ServerConfig{
			Addr:       ":8080",
			RunTimeout: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path over the defaults. Keys absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve finds and loads the configuration. An explicit path wins, then
// $LOXR_CONFIG, then DefaultPath. Only the implicit DefaultPath may be
// missing, in which case the defaults are used. Environment overrides are
// applied before validation.
func Resolve(path string) (*Config, error) {
	implicit := false
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = DefaultPath
		implicit = true
	}

	cfg, err := Load(path)
	if err != nil {
		if !implicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		c.Redis.Addr = addr
	}
}

// Validate checks that settings are usable.
func (c *Config) Validate() error {
	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("config: color must be auto, always, or never, got %q", c.Color)
	}
	if c.REPL.HistoryLimit < 0 {
		return fmt.Errorf("config: repl.history_limit must not be negative, got %d", c.REPL.HistoryLimit)
	}
	if c.REPL.Timeout < 0 {
		return fmt.Errorf("config: repl.timeout must not be negative, got %s", c.REPL.Timeout)
	}
	if c.Server.RunTimeout < 0 {
		return fmt.Errorf("config: server.run_timeout must not be negative, got %s", c.Server.RunTimeout)
	}
	if c.Redis.JobsQueue == "" {
		return errors.New("config: redis.jobs_queue is required")
	}
	return nil
}

// UseColor reports whether diagnostics should be colored, given whether the
// destination is a terminal.
func (c *Config) UseColor(isTerminal bool) bool {
	switch c.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal
	}
}

// Package config handles tool configuration.
//
// Config is stored at $XDG_CONFIG_HOME/updock/config.yaml (defaults to
// ~/.config/updock/config.yaml). A missing file yields the defaults, not
// an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Drift policies: what to do when a managed container's running image has
// diverged from its declaration and no explicit override was given.
const (
	// DriftSkip refuses to clobber the out-of-band change.
	DriftSkip = "skip"
	// DriftUpdate proceeds as if an override had been given.
	DriftUpdate = "update"
)

// Config holds tool-level settings.
type Config struct {
	// Ledger is the action history file. Empty means the default under
	// $XDG_STATE_HOME.
	Ledger string `yaml:"ledger,omitempty"`
	// Drift selects the drift policy: "skip" (default) or "update".
	Drift string `yaml:"drift,omitempty"`
	// Prune disables the post-run dangling image prune when false.
	Prune *bool `yaml:"prune,omitempty"`
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/updock/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "updock", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "updock", "config.yaml")
}

// DefaultLedgerPath returns the history file location used when the config
// does not name one. It respects XDG_STATE_HOME, falling back to
// ~/.local/state/updock/history.log.
func DefaultLedgerPath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "state", "updock", "history.log")
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "updock", "history.log")
}

// Load reads the config file. A missing file returns the defaults.
func Load() (*Config, error) {
	return loadFrom(Path())
}

func loadFrom(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg.withDefaults(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Drift != "" && cfg.Drift != DriftSkip && cfg.Drift != DriftUpdate {
		return nil, fmt.Errorf("invalid drift policy %q (want %q or %q)", cfg.Drift, DriftSkip, DriftUpdate)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() *Config {
	if c.Ledger == "" {
		c.Ledger = DefaultLedgerPath()
	}
	if c.Drift == "" {
		c.Drift = DriftSkip
	}
	if c.Prune == nil {
		t := true
		c.Prune = &t
	}
	return &c
}

// PruneEnabled reports whether post-run image pruning is on.
func (c *Config) PruneEnabled() bool {
	return c.Prune == nil || *c.Prune
}

// ForceOnDrift reports whether the drift policy counts as an explicit
// override.
func (c *Config) ForceOnDrift() bool {
	return c.Drift == DriftUpdate
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := loadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Drift != DriftSkip {
			t.Errorf("drift = %q, want %q", cfg.Drift, DriftSkip)
		}
		if cfg.Ledger == "" {
			t.Error("default ledger path is empty")
		}
		if !cfg.PruneEnabled() {
			t.Error("prune should default to on")
		}
		if cfg.ForceOnDrift() {
			t.Error("drift should not force by default")
		}
	})

	t.Run("explicit values", func(t *testing.T) {
		path := writeConfig(t, "ledger: /var/lib/updock/history.log\ndrift: update\nprune: false\n")
		cfg, err := loadFrom(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Ledger != "/var/lib/updock/history.log" {
			t.Errorf("ledger = %q", cfg.Ledger)
		}
		if !cfg.ForceOnDrift() {
			t.Error("drift: update should count as an override")
		}
		if cfg.PruneEnabled() {
			t.Error("prune: false should disable pruning")
		}
	})

	t.Run("invalid drift policy", func(t *testing.T) {
		path := writeConfig(t, "drift: yolo\n")
		if _, err := loadFrom(path); err == nil || !strings.Contains(err.Error(), "drift") {
			t.Fatalf("err = %v, want a drift policy error", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "drift: [unterminated\n")
		if _, err := loadFrom(path); err == nil {
			t.Fatal("want a parse error")
		}
	})
}

func TestDefaultLedgerPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg-state")
	if got := DefaultLedgerPath(); got != "/tmp/xdg-state/updock/history.log" {
		t.Errorf("path = %q", got)
	}
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	if got := Path(); got != "/tmp/xdg-config/updock/config.yaml" {
		t.Errorf("path = %q", got)
	}
}

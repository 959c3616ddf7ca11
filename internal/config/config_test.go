package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Store.SchemaVersion != 1 {
		t.Errorf("expected schema version 1, got %d", cfg.Store.SchemaVersion)
	}
	if cfg.Cache.Collection != "herd_modules" {
		t.Errorf("expected default collection herd_modules, got %q", cfg.Cache.Collection)
	}
	if cfg.Cache.DefaultTTL != 24*time.Hour {
		t.Errorf("expected default TTL 24h, got %v", cfg.Cache.DefaultTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /tmp/scout/cache.db
  schema_version: 3
cache:
  collection: herd_modules
  default_ttl: 1h
  dependents:
    - herd_providers
logging:
  level: debug
  format: console
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Store.Path != "/tmp/scout/cache.db" {
		t.Errorf("unexpected store path %q", cfg.Store.Path)
	}
	if cfg.Store.SchemaVersion != 3 {
		t.Errorf("unexpected schema version %d", cfg.Store.SchemaVersion)
	}
	if cfg.Cache.DefaultTTL != time.Hour {
		t.Errorf("unexpected TTL %v", cfg.Cache.DefaultTTL)
	}
	if len(cfg.Cache.Dependents) != 1 || cfg.Cache.Dependents[0] != "herd_providers" {
		t.Errorf("unexpected dependents %v", cfg.Cache.Dependents)
	}
	// Unspecified sections fall back to defaults.
	if cfg.Server.Port != 8790 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"negative schema version", "store:\n  schema_version: -1\n"},
		{"bad port", "server:\n  port: 99999\n"},
		{"malformed yaml", "store: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

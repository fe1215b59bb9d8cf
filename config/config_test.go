package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "http://127.0.0.1:8000" {
		t.Errorf("url = %q", cfg.Database.URL)
	}
	if cfg.Database.Timeout != 30*time.Second {
		t.Errorf("timeout = %s", cfg.Database.Timeout)
	}
	if cfg.Migrations.Folder != "./migrations" || cfg.Migrations.Digits != 3 {
		t.Errorf("migrations = %+v", cfg.Migrations)
	}
	if cfg.Metrics.File != "" {
		t.Errorf("metrics file should default to empty, got %q", cfg.Metrics.File)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/surrealmigrate.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  url: ws://db.internal:8000
  namespace: app
  database: prod
  timeout: 5s
migrations:
  folder: ./db/migrations
  digits: 4
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "ws://db.internal:8000" {
		t.Errorf("url = %q", cfg.Database.URL)
	}
	if cfg.Database.User != "root" {
		t.Errorf("unset keys should keep defaults, user = %q", cfg.Database.User)
	}
	if cfg.Database.Timeout != 5*time.Second {
		t.Errorf("timeout = %s", cfg.Database.Timeout)
	}
	if cfg.Migrations.Digits != 4 || cfg.Migrations.Folder != "./db/migrations" {
		t.Errorf("migrations = %+v", cfg.Migrations)
	}
	if level, _ := cfg.LogLevel(); level != slog.LevelDebug {
		t.Errorf("level = %v", level)
	}
}

func TestLoad_YAMLUnknownKey(t *testing.T) {
	path := writeConfig(t, "config.yml", "database:\n  nmespace: typo\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown YAML key")
	}
}

func TestLoad_EmptyYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "")
	if _, err := Load(path); err != nil {
		t.Fatalf("empty file should load defaults: %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[database]
url = "https://db.example.com"
max_retries = 5
timeout = "1m"

[metrics]
file = "/var/lib/node_exporter/surrealmigrate.prom"

[unknown]
key = 1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "https://db.example.com" || cfg.Database.MaxRetries != 5 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Database.Timeout != time.Minute {
		t.Errorf("timeout = %s", cfg.Database.Timeout)
	}
	if cfg.Metrics.File == "" {
		t.Errorf("metrics file not read")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `[[[invalid toml`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  url: http://from-file:8000
  namespace: file-ns
migrations:
  digits: 4
`)
	t.Setenv("SURREAL_URL", "http://from-env:8000")
	t.Setenv("SURREAL_MIGRATIONS_DIGITS", "6")
	t.Setenv("SURREAL_TIMEOUT", "2s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "http://from-env:8000" {
		t.Errorf("url = %q, want env value", cfg.Database.URL)
	}
	if cfg.Database.Namespace != "file-ns" {
		t.Errorf("namespace = %q, want file value", cfg.Database.Namespace)
	}
	if cfg.Migrations.Digits != 6 {
		t.Errorf("digits = %d, want 6", cfg.Migrations.Digits)
	}
	if cfg.Database.Timeout != 2*time.Second {
		t.Errorf("timeout = %s", cfg.Database.Timeout)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("SURREAL_MAX_RETRIES", "many")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric SURREAL_MAX_RETRIES")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Database.URL = " " }},
		{"empty namespace", func(c *Config) { c.Database.Namespace = "" }},
		{"zero timeout", func(c *Config) { c.Database.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.Database.MaxRetries = -1 }},
		{"zero digits", func(c *Config) { c.Migrations.Digits = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

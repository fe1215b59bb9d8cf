package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Migrations MigrationsConfig `yaml:"migrations" toml:"migrations"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

type DatabaseConfig struct {
	URL        string        `yaml:"url" toml:"url"`
	User       string        `yaml:"user" toml:"user"`
	Pass       string        `yaml:"pass" toml:"pass"`
	Namespace  string        `yaml:"namespace" toml:"namespace"`
	Database   string        `yaml:"database" toml:"database"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
	MaxRetries int           `yaml:"max_retries" toml:"max_retries"`
}

type MigrationsConfig struct {
	Folder string `yaml:"folder" toml:"folder"`
	Digits int    `yaml:"digits" toml:"digits"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

type MetricsConfig struct {
	// File is a node-exporter textfile collector path. Empty disables metrics output.
	File string `yaml:"file" toml:"file"`
}

// Default returns the configuration used when neither a file nor the
// environment sets a value.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:        "http://127.0.0.1:8000",
			User:       "root",
			Pass:       "root",
			Namespace:  "test",
			Database:   "test",
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Migrations: MigrationsConfig{
			Folder: "./migrations",
			Digits: 3,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides.
// Environment variables win over the file, the file wins over defaults.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			err = decodeTOML(data, cfg)
		case ".yaml", ".yml", "":
			err = decodeYAML(data, cfg)
		default:
			return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
		}
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}

	// Warn about unknown keys (likely typos).
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slog.Warn("unknown keys in config file (check for typos)", "keys", strings.Join(keys, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	strEnv(&cfg.Database.URL, "SURREAL_URL")
	strEnv(&cfg.Database.User, "SURREAL_USER")
	strEnv(&cfg.Database.Pass, "SURREAL_PASS")
	strEnv(&cfg.Database.Namespace, "SURREAL_NAMESPACE")
	strEnv(&cfg.Database.Database, "SURREAL_DATABASE")
	strEnv(&cfg.Migrations.Folder, "SURREAL_MIGRATIONS_FOLDER")
	strEnv(&cfg.Log.Level, "SURREAL_LOG_LEVEL")
	strEnv(&cfg.Metrics.File, "SURREAL_METRICS_FILE")

	if err := intEnv(&cfg.Database.MaxRetries, "SURREAL_MAX_RETRIES"); err != nil {
		return err
	}
	if err := intEnv(&cfg.Migrations.Digits, "SURREAL_MIGRATIONS_DIGITS"); err != nil {
		return err
	}
	if v := os.Getenv("SURREAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SURREAL_TIMEOUT: %w", err)
		}
		cfg.Database.Timeout = d
	}
	return nil
}

// strEnv overwrites *dst when envKey is set and non-empty.
func strEnv(dst *string, envKey string) {
	if v := os.Getenv(envKey); v != "" {
		*dst = v
	}
}

func intEnv(dst *int, envKey string) error {
	v := os.Getenv(envKey)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", envKey, err)
	}
	*dst = n
	return nil
}

// Validate reports values the CLI cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("database.url must not be empty")
	}
	if c.Database.Namespace == "" || c.Database.Database == "" {
		return errors.New("database.namespace and database.database must not be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database.timeout must be positive, got %s", c.Database.Timeout)
	}
	if c.Database.MaxRetries < 0 {
		return fmt.Errorf("database.max_retries must be non-negative, got %d", c.Database.MaxRetries)
	}
	if c.Migrations.Digits < 1 {
		return fmt.Errorf("migrations.digits must be at least 1, got %d", c.Migrations.Digits)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses log.level into a slog.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Package config loads the planwise YAML configuration and watches it for changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"

	"github.com/fentz26/planwise/internal/logging"
	"github.com/fentz26/planwise/internal/notify"
	"github.com/fentz26/planwise/internal/scheduler"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Database  DatabaseConfig   `yaml:"database"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Notifier  NotifierConfig   `yaml:"notifier"`
	Logging   logging.Config   `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type NotifierConfig struct {
	notify.Config `yaml:",inline"`
	Kafka         KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultPath returns ~/.planwise/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".planwise", "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	dbPath := "planwise.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".planwise", "planwise.db")
	}
	return &Config{
		Database:  DatabaseConfig{Driver: DriverSQLite, Path: dbPath},
		Scheduler: *scheduler.DefaultConfig(),
		Notifier: NotifierConfig{
			Config: notify.Config{Enabled: true, QueueSize: 256, RatePerSec: 5},
			Kafka:  KafkaConfig{Topic: "planwise.events"},
		},
		Logging: logging.Config{Level: "info", Console: true},
	}
}

// Load reads the file at path from fsys over the defaults. A missing file yields
// the defaults. Unknown keys are rejected.
func Load(fsys afero.Fs, path string) (*Config, error) {
	cfg := Default()
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields Load cannot check by type.
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", DriverSQLite:
		c.Database.Driver = DriverSQLite
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Scheduler.LockTimeout < 0 {
		return fmt.Errorf("scheduler.lock_timeout must not be negative")
	}
	if c.Notifier.QueueSize < 0 || c.Notifier.RatePerSec < 0 {
		return fmt.Errorf("notifier.queue_size and notifier.rate_per_sec must not be negative")
	}
	if len(c.Notifier.Kafka.Brokers) > 0 && c.Notifier.Kafka.Topic == "" {
		return fmt.Errorf("notifier.kafka.topic is required when brokers are set")
	}
	return nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(fsys afero.Fs, path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg, err := Load(fs, "/etc/planwise/config.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Expected sqlite driver, got %s", cfg.Database.Driver)
	}
	if cfg.Scheduler.LockTimeout != 5*time.Second {
		t.Errorf("Expected 5s lock timeout, got %v", cfg.Scheduler.LockTimeout)
	}
	if cfg.Scheduler.Periodic != "@every 15m" {
		t.Errorf("Expected default periodic spec, got %q", cfg.Scheduler.Periodic)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := `
database:
  driver: postgres
  dsn: postgres://planwise@localhost/planwise
scheduler:
  lock_timeout: 2s
  deadline_weight: 3
  priority_weight: 1
  default_timezone: Europe/Berlin
  notify_threshold: 5m
notifier:
  enabled: false
  queue_size: 16
  kafka:
    brokers: [localhost:9092]
    topic: planwise.test
logging:
  level: debug
metrics:
  addr: ":9090"
`
	afero.WriteFile(fs, "/cfg.yaml", []byte(data), 0o600)

	cfg, err := Load(fs, "/cfg.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.DSN == "" {
		t.Errorf("Unexpected database config: %+v", cfg.Database)
	}
	if cfg.Scheduler.LockTimeout != 2*time.Second || cfg.Scheduler.NotifyThreshold != 5*time.Minute {
		t.Errorf("Durations not parsed: %+v", cfg.Scheduler)
	}
	if w := cfg.Scheduler.Weights(); w.Deadline != 0.75 || w.Priority != 0.25 {
		t.Errorf("Expected 0.75/0.25 weights, got %+v", w)
	}
	if cfg.Scheduler.Periodic != "@every 15m" {
		t.Errorf("Expected untouched default periodic spec, got %q", cfg.Scheduler.Periodic)
	}
	if cfg.Notifier.Enabled || cfg.Notifier.QueueSize != 16 || cfg.Notifier.RatePerSec != 5 {
		t.Errorf("Unexpected notifier config: %+v", cfg.Notifier.Config)
	}
	if len(cfg.Notifier.Kafka.Brokers) != 1 || cfg.Notifier.Kafka.Topic != "planwise.test" {
		t.Errorf("Unexpected kafka config: %+v", cfg.Notifier.Kafka)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Expected metrics addr, got %q", cfg.Metrics.Addr)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "unknown key", data: "scheduler:\n  lock_timout: 2s\n", want: "lock_timout"},
		{name: "bad duration", data: "scheduler:\n  lock_timeout: soon\n", want: "parsing config file"},
		{name: "unknown driver", data: "database:\n  driver: mysql\n", want: "unknown database driver"},
		{name: "postgres without dsn", data: "database:\n  driver: postgres\n", want: "dsn is required"},
		{name: "kafka without topic", data: "notifier:\n  kafka:\n    brokers: [a:1]\n    topic: \"\"\n", want: "topic is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			afero.WriteFile(fs, "/cfg.yaml", []byte(tt.data), 0o600)
			_, err := Load(fs, "/cfg.yaml")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := Default()
	cfg.Scheduler.LockTimeout = 3 * time.Second
	cfg.Metrics.Addr = ":9100"

	if err := Save(fs, "/home/u/.planwise/config.yaml", cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(fs, "/home/u/.planwise/config.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Scheduler.LockTimeout != 3*time.Second || got.Metrics.Addr != ":9100" {
		t.Errorf("Round trip lost values: %+v", got)
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("scheduler:\n  deadline_weight: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, afero.NewOsFs(), path, zerolog.Nop(), func(c *Config) { changes <- c })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte("scheduler:\n  deadline_weight: 1\n  priority_weight: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.Scheduler.PriorityWeight != 3 {
			t.Errorf("Expected reloaded priority weight 3, got %v", cfg.Scheduler.PriorityWeight)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned error: %v", err)
	}
}

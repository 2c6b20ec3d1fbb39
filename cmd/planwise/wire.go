package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fentz26/planwise/internal/audit"
	"github.com/fentz26/planwise/internal/config"
	"github.com/fentz26/planwise/internal/controlplane"
	"github.com/fentz26/planwise/internal/metrics"
	"github.com/fentz26/planwise/internal/notify"
	"github.com/fentz26/planwise/internal/scheduler"
	"github.com/fentz26/planwise/internal/store"
	"github.com/fentz26/planwise/internal/store/postgres"
)

// app holds the wired components shared by every command.
type app struct {
	repo       store.Repository
	sched      *scheduler.Scheduler
	service    *controlplane.Service
	dispatcher *notify.Dispatcher
	registry   *prometheus.Registry
	kafka      *kgo.Client
}

func openRepository(ctx context.Context, c config.DatabaseConfig) (store.Repository, error) {
	if c.Driver == config.DriverPostgres {
		repo, err := postgres.Open(ctx, c.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.New(c.Path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// buildApp wires the store, scheduler, notifier and control plane from cfg.
// The caller must call close.
func buildApp(ctx context.Context) (*app, error) {
	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{repo: repo, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewPromMetrics(a.registry)

	sinks := []notify.Sink{notify.LogSink{Log: logger}}
	if len(cfg.Notifier.Kafka.Brokers) > 0 {
		client, err := notify.NewKafkaClient(cfg.Notifier.Kafka.Brokers, cfg.Notifier.Kafka.Topic)
		if err != nil {
			repo.Close()
			return nil, err
		}
		a.kafka = client
		sinks = append(sinks, notify.NewKafkaSink(client, cfg.Notifier.Kafka.Topic))
	}
	a.dispatcher = notify.NewDispatcher(cfg.Notifier.Config, logger, m, sinks...)
	a.dispatcher.Start(ctx)

	pdr := audit.NewPDRWriter(repo)
	a.sched = scheduler.New(repo, &cfg.Scheduler,
		scheduler.WithNotifier(a.dispatcher),
		scheduler.WithRecorder(pdr),
		scheduler.WithMetrics(m),
		scheduler.WithLogger(logger),
	)
	a.service = controlplane.NewService(repo, a.sched, pdr,
		controlplane.WithNotifier(a.dispatcher),
		controlplane.WithLogger(logger),
	)
	return a, nil
}

// close drains pending notifications and releases connections.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.dispatcher.Stop(ctx)
	if a.kafka != nil {
		a.kafka.Close()
	}
	if err := a.repo.Close(); err != nil {
		logger.Warn().Err(err).Msg("close store")
	}
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fentz26/planwise/internal/config"
	"github.com/fentz26/planwise/internal/controlplane"
	"github.com/fentz26/planwise/internal/scheduler"
)

var listenAddr string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the planwise daemon",
	Long: `Starts the periodic schedule sweep over every owner, watches the config
file for weight changes, and serves /health and /metrics.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7466", "Listen address when metrics.addr is unset")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("driver", cfg.Database.Driver).Msg("starting planwise daemon")

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	periodic, err := scheduler.NewPeriodic(a.sched, a.repo, cfg.Scheduler.Periodic, logger)
	if err != nil {
		return err
	}
	if err := periodic.Start(ctx); err != nil {
		return err
	}
	defer periodic.Stop()

	addr := cfg.Metrics.Addr
	if addr == "" {
		addr = listenAddr
	}
	server := controlplane.NewServer(a.service, a.repo, a.registry, addr, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down http listener")
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := config.Watch(gctx, fsys, configPath, logger, func(next *config.Config) {
			a.sched.UpdateWeights(next.Scheduler.DeadlineWeight, next.Scheduler.PriorityWeight)
		})
		if err != nil {
			logger.Warn().Err(err).Msg("config reload disabled")
		}
		return nil
	})

	// Place everything once before reporting ready.
	sweep := periodic.RunOnce(ctx)
	logger.Info().Int("owners", sweep.Owners).Int("busy", sweep.Busy).Int("failed", sweep.Failed).Msg("initial sweep done")

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn().Err(err).Msg("sd_notify ready failed")
	} else if ok {
		logger.Debug().Msg("notified service manager")
	}

	err = g.Wait()
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"HodlFarm/internal/farm"
	"HodlFarm/internal/metrics"
	"HodlFarm/internal/notifier"
	"HodlFarm/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cobra.Command {
	var reportOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the farm with scheduled snapshots, alerts and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context(), reportOnStart)
		},
	}
	cmd.Flags().BoolVar(&reportOnStart, "report-on-start", false, "send the pool report once at startup")
	return cmd
}

func serveRun(parent context.Context, reportOnStart bool) error {
	logger.Info().Msg("HodlFarm starting...")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	rec := openRecorder(cfg, logger)
	defer rec.Close()

	f, err := openFarm(cfg, logger, rec, farm.WithMetrics(m))
	if err != nil {
		return err
	}
	defer f.Close()
	m.SetPoolStats(f.Stats())

	var n notifier.Notifier
	if cfg.NotifierEnabled() {
		n = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
	} else {
		logger.Info().Msg("telegram not configured, notifications disabled")
		n = notifier.NewNoopNotifier(logger)
	}

	sched := scheduler.NewScheduler(ctx, f, n, rec, m, logger)
	sched.LowPoolThreshold = cfg.Alerts.LowPoolThreshold
	if err := sched.RegisterAll(cfg.Schedule.SnapshotCron, cfg.Schedule.PoolCheckCron, cfg.Schedule.ReportCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	if reportOnStart {
		go sched.RunReportNow()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              cfg.Metrics.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n.StartPolling(gctx, sched.HandleCommand)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received, stopping...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	logger.Info().Msg("HodlFarm is running. Press Ctrl+C to stop.")

	err = g.Wait()
	sched.Stop()
	sched.RunSnapshotNow()
	logger.Info().Msg("HodlFarm stopped")
	return err
}

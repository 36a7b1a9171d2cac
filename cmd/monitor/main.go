// Standalone watchdog. Runs against the same database as traderd but from
// a separate process (usually a separate host), so pipeline outages and
// monitor outages stay independent failures.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lmartin/tradepipe/internal/config"
	"github.com/lmartin/tradepipe/internal/database"
	"github.com/lmartin/tradepipe/internal/lifecycle"
	"github.com/lmartin/tradepipe/internal/monitor"
	"github.com/lmartin/tradepipe/internal/notify"
	"github.com/lmartin/tradepipe/internal/store"
	"github.com/lmartin/tradepipe/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/traderd.local.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Instance.ID+"-monitor", cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger)
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	ticks := store.NewTickStore(pool, logger)
	signalStore := store.NewSignalStore(pool, logger)
	orderStore := store.NewOrderStore(pool, logger)

	predictionScale := time.Duration(cfg.Monitor.PredictionCycles)

	watchdog := monitor.New(cfg.Monitor, notifier, logger)
	watchdog.Watch(monitor.Subservice{
		Name:  "feed",
		Probe: monitor.SourceProbe(ticks),
		Detail: func(ctx context.Context) (string, error) {
			n, err := ticks.Count(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d ticks stored", n), nil
		},
	})
	watchdog.Watch(monitor.Subservice{
		Name:                  "signals",
		Probe:                 monitor.SourceProbe(signalStore),
		UnresponsiveThreshold: cfg.Monitor.UnresponsiveThreshold * predictionScale,
		AbandonThreshold:      cfg.Monitor.AbandonThreshold * predictionScale,
		Detail: func(ctx context.Context) (string, error) {
			age, err := signalStore.OldestQueuedAge(ctx)
			if err != nil {
				return "", err
			}
			if age == 0 {
				return "no signals waiting", nil
			}
			return fmt.Sprintf("oldest queued signal waiting %s", age.Round(time.Second)), nil
		},
	})
	watchdog.Watch(monitor.Subservice{
		Name:                  "orders",
		Probe:                 monitor.SourceProbe(orderStore),
		UnresponsiveThreshold: cfg.Monitor.UnresponsiveThreshold * predictionScale,
		AbandonThreshold:      cfg.Monitor.AbandonThreshold * predictionScale,
		IgnoreInactivity:      true, // no orders is normal in a flat market
	})

	svc := lifecycle.New("monitor", logger, notifier)
	svc.Go("watchdog", watchdog.Run)
	if err := svc.Run(ctx); err != nil {
		logger.Error("failed to start service", "error", err)
		os.Exit(1)
	}

	if err := notifier.SendStatus(ctx, fmt.Sprintf("monitor %s started", version.Version)); err != nil {
		logger.Warn("startup status failed", "error", err)
	}

	select {
	case <-ctx.Done():
	case <-svc.Done():
	}

	logger.Info("shutting down...")
	svc.Stop()
	if err := svc.Join(10 * time.Second); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}

	logger.Info("monitor stopped")
}

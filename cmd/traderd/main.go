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
	"github.com/lmartin/tradepipe/internal/dispatch"
	"github.com/lmartin/tradepipe/internal/engine"
	"github.com/lmartin/tradepipe/internal/exchange"
	"github.com/lmartin/tradepipe/internal/feed"
	"github.com/lmartin/tradepipe/internal/lifecycle"
	"github.com/lmartin/tradepipe/internal/metrics"
	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/monitor"
	"github.com/lmartin/tradepipe/internal/notify"
	"github.com/lmartin/tradepipe/internal/queue"
	"github.com/lmartin/tradepipe/internal/store"
	"github.com/lmartin/tradepipe/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/traderd.local.yaml", "path to config file")
	flag.Parse()

	// Local development keeps credentials in .env; absence is fine.
	_ = godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting traderd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"symbol", cfg.Trading.Symbol,
		"sink", cfg.Feed.Sink,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Notifications
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Instance.ID, cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger)
	}

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Connect to the exchange
	client, err := exchange.DialWS(ctx, exchange.WSConfig{
		URL:          cfg.Exchange.WSURL,
		APIKey:       cfg.Exchange.APIKey,
		APISecret:    cfg.Exchange.APISecret,
		ReadTimeout:  cfg.Exchange.ReadTimeout,
		WriteTimeout: cfg.Exchange.WriteTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to exchange", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	logger.Info("exchange connected", "url", cfg.Exchange.WSURL)

	// Stores and queues
	ticks := store.NewTickStore(pool, logger)
	signalStore := store.NewSignalStore(pool, logger)
	orderStore := store.NewOrderStore(pool, logger)
	signals := queue.New[model.Signal]("signals", signalStore, logger)
	orders := queue.New[model.Order]("orders", orderStore, logger)

	// Feed sink
	sink, cleanup, err := buildSink(cfg.Feed, ticks)
	if err != nil {
		logger.Error("failed to build feed sink", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Pipeline components
	marketFeed := feed.New(cfg.Feed, client, sink, notifier, logger)
	dispatcher := dispatch.New(orders, client, dispatch.Callbacks{
		OnSubmit: func(o model.Order) {
			logger.Debug("dispatching order", "id", o.UUID)
		},
	}, cfg.Trading.DispatchBuffer, logger)
	exec := engine.New(cfg.Trading, signals, orders, client, ticks, orderStore, dispatcher, notifier, logger)

	// Cross-service watchdog
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
		Name:                  "engine",
		Probe:                 monitor.SourceProbe(orderStore),
		UnresponsiveThreshold: cfg.Monitor.UnresponsiveThreshold * time.Duration(cfg.Monitor.PredictionCycles),
		AbandonThreshold:      cfg.Monitor.AbandonThreshold * time.Duration(cfg.Monitor.PredictionCycles),
		IgnoreInactivity:      true, // no orders is normal in a flat market
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

	// Metrics endpoint
	metricsServer := metrics.Serve(cfg.Metrics.Port, cfg.Metrics.Path)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics server started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)

	// Service lifecycle
	svc := lifecycle.New("traderd", logger, notifier)
	svc.Go("feed", marketFeed.Run)
	svc.Go("dispatch", dispatcher.Run)
	svc.Go("engine", exec.Run)
	svc.Go("monitor", watchdog.Run)

	if err := svc.Run(ctx); err != nil {
		logger.Error("failed to start service", "error", err)
		os.Exit(1)
	}

	if err := notifier.SendStatus(ctx, fmt.Sprintf("traderd %s started (%s)", version.Version, cfg.Trading.Symbol)); err != nil {
		logger.Warn("startup status failed", "error", err)
	}

	logger.Info("traderd running",
		"instance_id", cfg.Instance.ID,
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
	)

	// Wait for shutdown or a fatal worker error.
	select {
	case <-ctx.Done():
	case <-svc.Done():
	}

	logger.Info("shutting down...")
	svc.Stop()
	if err := svc.Join(30 * time.Second); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}

	logger.Info("traderd stopped")
}

// buildSink selects the tick destination from configuration.
func buildSink(cfg config.FeedConfig, ticks *store.TickStore) (feed.Sink, func(), error) {
	switch cfg.Sink {
	case "csv":
		sink, err := feed.NewCSVSink(cfg.CSVPath)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { sink.Close() }, nil
	default:
		return feed.NewPostgresSink(ticks), func() {}, nil
	}
}

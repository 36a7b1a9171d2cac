// Package feed runs the market-data ingestion loop: one tick subscription
// per connection generation, interval-based dedup in front of the sink, and
// an independent watchdog that forces a reconnect when the sink goes stale.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lmartin/tradepipe/internal/config"
	"github.com/lmartin/tradepipe/internal/exchange"
	"github.com/lmartin/tradepipe/internal/metrics"
	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/notify"
)

// watchdogPoll is how often the staleness check runs, independent of the
// tick interval being monitored.
const watchdogPoll = 5 * time.Second

// Feed owns the tick subscription lifecycle. Each (re)connect bumps the
// generation counter; a receive loop from a superseded generation drains
// out without touching the sink markers of its successor.
type Feed struct {
	cfg      config.FeedConfig
	client   exchange.Client
	sink     Sink
	notifier notify.Notifier
	logger   *slog.Logger

	generation atomic.Int64
	lastTick   atomic.Int64 // dedup marker: timestamp of last persisted tick
	lastWrite  atomic.Int64 // wall clock (unix seconds) of last persisted write

	mu     sync.Mutex
	stream exchange.TickStream
}

// New creates a feed. The sink decides where ticks land; the feed only
// decides which ticks get there.
func New(cfg config.FeedConfig, client exchange.Client, sink Sink, notifier notify.Notifier, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Feed{
		cfg:      cfg,
		client:   client,
		sink:     sink,
		notifier: notifier,
		logger:   logger.With("component", "feed", "symbol", cfg.Symbol),
	}
}

// Run drives the feed until ctx is cancelled or the restart budget is
// exhausted. Exhaustion alerts the operator and returns an error so the
// service lifecycle can tear the process down.
func (f *Feed) Run(ctx context.Context) error {
	last, err := f.sink.LastTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("recover dedup marker: %w", err)
	}
	f.lastTick.Store(last)
	f.lastWrite.Store(time.Now().Unix())

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.watchdogLoop(watchCtx)
	}()
	defer wg.Wait()

	restarts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		gen := f.generation.Add(1)
		if gen > 1 {
			metrics.FeedReconnects.Inc()
		}

		stream, err := f.client.SubscribeTicks(ctx, f.cfg.Symbol)
		if err != nil {
			restarts++
			f.logger.Error("subscribe failed", "generation", gen, "restarts", restarts, "error", err)
			if restarts >= f.cfg.MaxRestartAttempts {
				return f.abort(ctx, restarts, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.cfg.Interval):
			}
			continue
		}

		f.setStream(stream)
		f.logger.Info("feed connected", "generation", gen)

		healthy := f.receiveLoop(ctx, gen, stream)

		f.setStream(nil)
		stream.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if healthy {
			restarts = 0
		} else {
			restarts++
			if restarts >= f.cfg.MaxRestartAttempts {
				return f.abort(ctx, restarts, fmt.Errorf("no data received"))
			}
		}
		f.logger.Warn("feed reconnecting", "generation", gen, "restarts", restarts)
	}
}

// receiveLoop reads ticks for one generation. It returns when the
// generation is superseded, the context ends, or consecutive receive
// failures reach the attempt threshold. The return value reports whether
// any tick arrived, which resets the restart budget.
func (f *Feed) receiveLoop(ctx context.Context, gen int64, stream exchange.TickStream) bool {
	failures := 0
	received := false

	for {
		if f.generation.Load() != gen {
			f.logger.Debug("generation superseded", "generation", gen)
			return received
		}

		tick, err := stream.Recv(ctx)
		if ctx.Err() != nil {
			return received
		}
		if err != nil {
			failures++
			f.logger.Warn("receive failed", "generation", gen, "failures", failures, "error", err)
			if failures >= f.cfg.AttemptThreshold {
				f.alert(ctx, fmt.Sprintf("feed %s: %d consecutive receive failures, reconnecting", f.cfg.Symbol, failures))
				return received
			}
			continue
		}

		// A tick read after the generation was superseded belongs to the
		// old socket's buffer; it must not reach the sink.
		if f.generation.Load() != gen {
			return received
		}

		failures = 0
		received = true
		metrics.TicksReceived.WithLabelValues(f.cfg.Symbol).Inc()

		if !f.shouldPersist(tick) {
			continue
		}

		if err := f.sink.Write(ctx, tick); err != nil {
			// The sink already retried internally; keep the marker so the
			// watchdog notices a persistent outage.
			f.logger.Error("sink write failed", "error", err)
			continue
		}

		f.lastTick.Store(tick.Timestamp)
		f.lastWrite.Store(time.Now().Unix())
		metrics.TicksPersisted.WithLabelValues(f.cfg.Symbol).Inc()
	}
}

// shouldPersist applies the interval dedup rule against the last persisted
// tick's exchange timestamp.
func (f *Feed) shouldPersist(tick model.Tick) bool {
	interval := int64(f.cfg.Interval / time.Second)
	return tick.Timestamp-f.lastTick.Load() >= interval
}

// watchdogLoop forces a reconnect when nothing has been persisted for
// interval * timeout_multiplier. It runs on its own cadence so a receive
// loop blocked inside Recv cannot starve it.
func (f *Feed) watchdogLoop(ctx context.Context) {
	cutoff := f.cfg.Interval * time.Duration(f.cfg.TimeoutMultiplier)
	ticker := time.NewTicker(watchdogPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale := time.Since(time.Unix(f.lastWrite.Load(), 0))
			if stale <= cutoff {
				continue
			}
			f.logger.Warn("sink stale, forcing reconnect", "stale", stale, "cutoff", cutoff)
			metrics.WatchdogAlerts.WithLabelValues("feed", "stale").Inc()
			f.alert(ctx, fmt.Sprintf("feed %s: no tick persisted for %s, forcing reconnect", f.cfg.Symbol, stale.Round(time.Second)))
			f.forceReconnect()
			// Restart the staleness clock so one outage triggers one
			// reconnect per cutoff window.
			f.lastWrite.Store(time.Now().Unix())
		}
	}
}

// forceReconnect supersedes the current generation and unblocks its Recv.
func (f *Feed) forceReconnect() {
	f.generation.Add(1)
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	if stream != nil {
		stream.Close()
	}
}

func (f *Feed) setStream(stream exchange.TickStream) {
	f.mu.Lock()
	f.stream = stream
	f.mu.Unlock()
}

func (f *Feed) abort(ctx context.Context, restarts int, cause error) error {
	err := fmt.Errorf("feed aborted after %d restarts: %w", restarts, cause)
	f.logger.Error("feed aborting", "restarts", restarts, "error", cause)
	f.alert(ctx, err.Error())
	return err
}

func (f *Feed) alert(ctx context.Context, text string) {
	if err := f.notifier.SendAlert(ctx, text); err != nil {
		f.logger.Error("alert delivery failed", "error", err)
	}
}

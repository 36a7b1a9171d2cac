// Package monitor watches the pipeline's subservices through their
// persistence footprints. Each subservice is probed for its most recent
// activity; prolonged silence escalates through unresponsive to presumed
// down, and recovery announces a revival. Every transition alerts exactly
// once.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lmartin/tradepipe/internal/config"
	"github.com/lmartin/tradepipe/internal/metrics"
	"github.com/lmartin/tradepipe/internal/notify"
)

// Probe reports a subservice's last activity time. A zero time means the
// subservice has produced nothing yet.
type Probe func(ctx context.Context) (time.Time, error)

// ActivitySource is anything exposing a newest-row timestamp. Both the
// tick and order stores satisfy it.
type ActivitySource interface {
	LatestTimestamp(ctx context.Context) (int64, error)
}

// SourceProbe adapts an ActivitySource into a Probe.
func SourceProbe(src ActivitySource) Probe {
	return func(ctx context.Context) (time.Time, error) {
		ts, err := src.LatestTimestamp(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if ts == 0 {
			return time.Time{}, nil
		}
		return time.Unix(ts, 0), nil
	}
}

// Subservice describes one watched component. Zero thresholds inherit the
// watchdog's configured defaults.
type Subservice struct {
	Name                  string
	Probe                 Probe
	UnresponsiveThreshold time.Duration
	AbandonThreshold      time.Duration

	// Detail, when set, contributes extra text to the periodic status
	// summary (row counts, queue backlog). Never consulted for alerting.
	Detail func(ctx context.Context) (string, error)

	// IgnoreInactivity suppresses alerts for components whose silence is
	// expected (e.g. a feed that only writes during market hours). State
	// is still tracked for status summaries.
	IgnoreInactivity bool
}

type health int

const (
	healthUnknown health = iota
	healthOK
	healthUnresponsive
	healthDown
)

func (h health) String() string {
	switch h {
	case healthOK:
		return "healthy"
	case healthUnresponsive:
		return "unresponsive"
	case healthDown:
		return "presumed down"
	}
	return "unknown"
}

type tracked struct {
	sub   Subservice
	state health
	last  time.Time // last observed activity
}

// Watchdog polls subservice probes and alerts on state transitions.
type Watchdog struct {
	cfg      config.MonitorConfig
	notifier notify.Notifier
	logger   *slog.Logger
	started  time.Time

	mu   sync.Mutex
	subs []*tracked
}

// New creates a watchdog with no subservices registered.
func New(cfg config.MonitorConfig, notifier notify.Notifier, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Watchdog{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger.With("component", "monitor"),
	}
}

// Watch registers a subservice. Must be called before Run.
func (w *Watchdog) Watch(sub Subservice) {
	if sub.UnresponsiveThreshold == 0 {
		sub.UnresponsiveThreshold = w.cfg.UnresponsiveThreshold
	}
	if sub.AbandonThreshold == 0 {
		sub.AbandonThreshold = w.cfg.AbandonThreshold
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, &tracked{sub: sub, state: healthUnknown})
}

// Run polls at half the monitored cadence so a single missed tick cannot
// slip between checks, and emits a status summary on the configured
// interval.
func (w *Watchdog) Run(ctx context.Context) error {
	w.started = time.Now()

	poll := w.cfg.TickerInterval / 2
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	status := time.NewTicker(w.cfg.StatusInterval)
	defer status.Stop()

	w.logger.Info("watchdog started", "poll", poll, "subservices", len(w.subs))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollOnce(ctx)
		case <-status.C:
			w.sendStatus(ctx)
		}
	}
}

// pollOnce probes every subservice and applies state transitions.
func (w *Watchdog) pollOnce(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	subs := make([]*tracked, len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	for _, t := range subs {
		last, err := t.sub.Probe(ctx)
		if err != nil {
			w.logger.Error("probe failed", "subservice", t.sub.Name, "error", err)
			continue
		}
		w.evaluate(ctx, t, last, now)
	}
}

// evaluate moves one subservice through the health state machine. Each
// transition fires its alert exactly once.
func (w *Watchdog) evaluate(ctx context.Context, t *tracked, last, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if last.IsZero() {
		// Nothing produced yet; silence is measured from watchdog start
		// so a component that never comes up still escalates.
		last = w.started
	}
	t.last = last
	silence := now.Sub(last)

	prev := t.state
	switch {
	case silence > t.sub.AbandonThreshold:
		t.state = healthDown
	case silence > t.sub.UnresponsiveThreshold:
		t.state = healthUnresponsive
	default:
		t.state = healthOK
	}

	if t.state == prev || prev == healthUnknown && t.state == healthOK {
		if prev == healthUnknown {
			t.state = healthOK
		}
		return
	}

	switch {
	case t.state == healthDown && prev != healthDown:
		w.announce(ctx, t, "presumed_down",
			fmt.Sprintf("%s presumed down: no activity for %s", t.sub.Name, silence.Round(time.Second)))
	case t.state == healthUnresponsive && prev != healthUnresponsive && prev != healthDown:
		w.announce(ctx, t, "unresponsive",
			fmt.Sprintf("%s unresponsive: no activity for %s", t.sub.Name, silence.Round(time.Second)))
	case t.state == healthOK && (prev == healthUnresponsive || prev == healthDown):
		w.announce(ctx, t, "revived",
			fmt.Sprintf("%s revived after %s state", t.sub.Name, prev))
	}
}

// announce delivers one transition alert, honoring IgnoreInactivity for
// silence-driven kinds. Revivals always announce.
func (w *Watchdog) announce(ctx context.Context, t *tracked, kind, text string) {
	w.logger.Warn("subservice transition", "subservice", t.sub.Name, "kind", kind)
	metrics.WatchdogAlerts.WithLabelValues(t.sub.Name, kind).Inc()

	if t.sub.IgnoreInactivity && kind != "revived" {
		return
	}
	if err := w.notifier.SendAlert(ctx, text); err != nil {
		w.logger.Error("alert delivery failed", "subservice", t.sub.Name, "error", err)
	}
}

// sendStatus emits a one-line-per-subservice summary with watchdog uptime
// and whatever detail each subservice contributes.
func (w *Watchdog) sendStatus(ctx context.Context) {
	w.mu.Lock()
	subs := make([]*tracked, len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	lines := make([]string, 0, len(subs))
	for _, t := range subs {
		w.mu.Lock()
		state, last := t.state, t.last
		w.mu.Unlock()

		age := "never"
		if !last.IsZero() {
			age = time.Since(last).Round(time.Second).String()
		}
		line := fmt.Sprintf("%s: %s (last activity %s ago)", t.sub.Name, state, age)
		if t.sub.Detail != nil {
			detail, err := t.sub.Detail(ctx)
			if err != nil {
				w.logger.Error("status detail failed", "subservice", t.sub.Name, "error", err)
			} else if detail != "" {
				line += ", " + detail
			}
		}
		lines = append(lines, line)
	}

	sort.Strings(lines)
	uptime := time.Since(w.started).Round(time.Second)
	text := fmt.Sprintf("watchdog status (up %s)\n%s", uptime, strings.Join(lines, "\n"))
	if err := w.notifier.SendStatus(ctx, text); err != nil {
		w.logger.Error("status delivery failed", "error", err)
	}
}

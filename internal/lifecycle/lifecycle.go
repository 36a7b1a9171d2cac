// Package lifecycle implements the shared contract for every long-running
// service: an owned set of worker goroutines, a single cancellation signal,
// bounded shutdown, and an error-to-alert bridge so operational failures are
// never silently swallowed.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lmartin/tradepipe/internal/notify"
)

// ErrJoinTimeout is returned by Join when workers are still alive after the
// shutdown deadline.
var ErrJoinTimeout = errors.New("workers still running at join deadline")

// Service owns the worker goroutines of one long-running component.
//
// Workers registered with Go before Run are started together by Run; workers
// added afterwards start immediately. A worker returning a non-nil error is
// alerted and cancels the service's context, stopping its siblings while
// leaving other services untouched.
type Service struct {
	name     string
	logger   *slog.Logger
	notifier notify.Notifier

	mu      sync.Mutex
	pending []worker
	active  map[string]struct{}
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

type worker struct {
	name string
	fn   func(context.Context) error
}

// New creates a service lifecycle with the given name for logs and alerts.
func New(name string, logger *slog.Logger, notifier notify.Notifier) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		name:     name,
		logger:   logger.With("service", name),
		notifier: notifier,
		active:   make(map[string]struct{}),
	}
}

// Go registers a worker loop. Before Run it is queued; after Run it starts
// immediately.
func (s *Service) Go(name string, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.pending = append(s.pending, worker{name: name, fn: fn})
		return
	}
	s.spawnLocked(worker{name: name, fn: fn})
}

// Run starts all registered workers under a context derived from ctx.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%s: already running", s.name)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.group, s.ctx = errgroup.WithContext(s.ctx)
	s.running = true

	for _, w := range s.pending {
		s.spawnLocked(w)
	}
	s.pending = nil

	s.logger.Info("service started", "workers", len(s.active))
	return nil
}

// spawnLocked starts a worker; callers must hold s.mu.
func (s *Service) spawnLocked(w worker) {
	s.active[w.name] = struct{}{}

	s.group.Go(func() error {
		defer func() {
			s.mu.Lock()
			delete(s.active, w.name)
			s.mu.Unlock()
		}()

		err := w.fn(s.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.AlertWithError(fmt.Sprintf("worker %q failed", w.name), err)
			return fmt.Errorf("%s/%s: %w", s.name, w.name, err)
		}
		return nil
	})
}

// Stop flips the abort signal. It does not wait; follow with Join.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Join waits up to timeout for all workers to exit, reporting any still
// alive.
func (s *Service) Join(timeout time.Duration) error {
	s.mu.Lock()
	group := s.group
	s.mu.Unlock()

	if group == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		s.logger.Info("service stopped")
		return err
	case <-time.After(timeout):
		stuck := s.activeWorkers()
		s.logger.Warn("shutdown timeout", "alive", stuck)
		return fmt.Errorf("%w: %v", ErrJoinTimeout, stuck)
	}
}

// Done exposes the service's cancellation signal for loops that block
// outside select statements.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.ctx.Done()
}

// AlertWithError logs the error and pushes an alert through the notifier.
func (s *Service) AlertWithError(msg string, err error) {
	s.logger.Error(msg, "error", err)

	// Detached context: the service's own context is usually cancelled by
	// the time a fatal error is reported.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := fmt.Sprintf("[%s] %s: %v", s.name, msg, err)
	if nerr := s.notifier.SendAlert(ctx, text); nerr != nil {
		s.logger.Error("alert delivery failed", "error", nerr)
	}
}

func (s *Service) activeWorkers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.active))
	for name := range s.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

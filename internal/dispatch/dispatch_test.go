package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lmartin/tradepipe/internal/exchange"
	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memOrderStore is an in-memory queue.Store for orders.
type memOrderStore struct {
	mu    sync.Mutex
	items []model.Order
	state map[uuid.UUID]model.Status
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{state: make(map[uuid.UUID]model.Status)}
}

func (m *memOrderStore) Append(_ context.Context, o model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, o)
	m.state[o.UUID] = model.StatusQueued
	return nil
}

func (m *memOrderStore) TakeOldest(_ context.Context) (model.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.items {
		if m.state[o.UUID] == model.StatusQueued {
			m.state[o.UUID] = model.StatusProcessing
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (m *memOrderStore) Resolve(_ context.Context, id uuid.UUID, status model.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.state[id]
	if !ok {
		return queue.ErrNotFound
	}
	if !cur.CanTransition(status) {
		return queue.ErrInvalidStatusTransition
	}
	m.state[id] = status
	return nil
}

func (m *memOrderStore) PendingCount(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.state {
		if s == model.StatusQueued {
			n++
		}
	}
	return n, nil
}

func (m *memOrderStore) statusOf(id uuid.UUID) model.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[id]
}

// stubExchange records submissions and fails ids listed in rejects.
type stubExchange struct {
	mu        sync.Mutex
	submitted []model.Order
	rejects   map[uuid.UUID]error
	block     chan struct{} // when set, SubmitOrder waits on it
}

func (s *stubExchange) SubmitOrder(_ context.Context, o model.Order) (model.Order, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.rejects[o.UUID]; ok {
		return model.Order{}, err
	}
	s.submitted = append(s.submitted, o)
	return o, nil
}

func (s *stubExchange) submittedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func (s *stubExchange) GetBalances(context.Context, []string) ([]model.Balance, error) {
	return nil, nil
}

func (s *stubExchange) CancelOrder(context.Context, uuid.UUID) error { return nil }

func (s *stubExchange) SubscribeTicks(context.Context, string) (exchange.TickStream, error) {
	return nil, errors.New("not implemented")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDispatcherSubmitsAndResolves(t *testing.T) {
	ctx := context.Background()
	store := newMemOrderStore()
	orders := queue.New[model.Order]("orders", store, testLogger())
	ex := &stubExchange{}

	var mu sync.Mutex
	var submits, completes []uuid.UUID
	cb := Callbacks{
		OnSubmit: func(o model.Order) {
			mu.Lock()
			submits = append(submits, o.UUID)
			mu.Unlock()
		},
		OnComplete: func(o model.Order, err error) {
			mu.Lock()
			completes = append(completes, o.UUID)
			mu.Unlock()
		},
	}

	d := New(orders, ex, cb, 10, testLogger())

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		o := model.NewOrder(uuid.New(), "BTCUSD", model.SideBuy, 1)
		ids = append(ids, o.UUID)
		orders.Put(ctx, o)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()
	d.Nudge()

	waitFor(t, func() bool { return ex.submittedCount() == 3 }, "orders never submitted")
	cancel()
	<-done

	for _, id := range ids {
		if store.statusOf(id) != model.StatusComplete {
			t.Errorf("order %s status = %s, want COMPLETE", id, store.statusOf(id))
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(submits) != 3 || len(completes) != 3 {
		t.Errorf("callbacks: submits=%d completes=%d, want 3 each", len(submits), len(completes))
	}
	for i, id := range ids {
		if submits[i] != id {
			t.Errorf("submit order mismatch at %d: got %s, want %s", i, submits[i], id)
		}
	}
}

func TestDispatcherMarksRejectedOrderFailed(t *testing.T) {
	ctx := context.Background()
	store := newMemOrderStore()
	orders := queue.New[model.Order]("orders", store, testLogger())

	good := model.NewOrder(uuid.New(), "BTCUSD", model.SideBuy, 1)
	bad := model.NewOrder(uuid.New(), "BTCUSD", model.SideSell, 2)
	orders.Put(ctx, bad)
	orders.Put(ctx, good)

	ex := &stubExchange{rejects: map[uuid.UUID]error{bad.UUID: errors.New("insufficient funds")}}
	d := New(orders, ex, Callbacks{}, 10, testLogger())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()
	d.Nudge()

	waitFor(t, func() bool { return store.statusOf(good.UUID) == model.StatusComplete }, "good order never completed")
	cancel()
	<-done

	if store.statusOf(bad.UUID) != model.StatusFailed {
		t.Errorf("rejected order status = %s, want FAILED", store.statusOf(bad.UUID))
	}
}

func TestDispatcherNilCallbacksAreSafe(t *testing.T) {
	ctx := context.Background()
	store := newMemOrderStore()
	orders := queue.New[model.Order]("orders", store, testLogger())
	orders.Put(ctx, model.NewOrder(uuid.New(), "BTCUSD", model.SideBuy, 1))

	ex := &stubExchange{}
	d := New(orders, ex, Callbacks{}, 10, testLogger())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()
	d.Nudge()

	waitFor(t, func() bool { return ex.submittedCount() == 1 }, "order never submitted")
	cancel()
	<-done
}

func TestDispatcherFinishesInFlightOnCancel(t *testing.T) {
	ctx := context.Background()
	store := newMemOrderStore()
	orders := queue.New[model.Order]("orders", store, testLogger())

	o := model.NewOrder(uuid.New(), "BTCUSD", model.SideBuy, 1)
	orders.Put(ctx, o)

	block := make(chan struct{})
	ex := &stubExchange{block: block}
	d := New(orders, ex, Callbacks{}, 10, testLogger())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx) }()
	d.Nudge()

	// Wait until the order is in flight, then cancel mid-submission.
	waitFor(t, func() bool { return store.statusOf(o.UUID) == model.StatusProcessing }, "order never taken")
	cancel()
	close(block)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if ex.submittedCount() != 1 {
		t.Error("in-flight submission was dropped on cancel")
	}
	if store.statusOf(o.UUID) != model.StatusComplete {
		t.Errorf("order status = %s, want COMPLETE despite cancel", store.statusOf(o.UUID))
	}
}

func TestNudgeNeverBlocks(t *testing.T) {
	orders := queue.New[model.Order]("orders", newMemOrderStore(), testLogger())
	d := New(orders, &stubExchange{}, Callbacks{}, 1, testLogger())

	for i := 0; i < 100; i++ {
		d.Nudge() // no consumer running
	}
}

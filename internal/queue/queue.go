// Package queue implements the durable FIFO hand-off between the signal
// producer and the execution engine. Items live in Postgres so a crash on
// either side never loses work; the queue itself is a thin typed façade
// over a row store.
package queue

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lmartin/tradepipe/internal/model"
)

var (
	// ErrInvalidPayload rejects items without a usable identity.
	ErrInvalidPayload = errors.New("queue: invalid payload")

	// ErrInvalidStatusTransition rejects closing an item that is not in
	// PROCESSING (already terminal, or never dequeued).
	ErrInvalidStatusTransition = errors.New("queue: invalid status transition")

	// ErrNotFound reports an unknown item id.
	ErrNotFound = errors.New("queue: item not found")
)

// Item is anything the queue can carry.
type Item interface {
	Key() uuid.UUID
}

// Store is the persistence contract the queue runs on. TakeOldest must
// atomically move the oldest QUEUED row to PROCESSING so concurrent
// consumers never receive the same item.
type Store[T Item] interface {
	Append(ctx context.Context, item T) error
	TakeOldest(ctx context.Context) (T, bool, error)
	Resolve(ctx context.Context, id uuid.UUID, status model.Status) error
	PendingCount(ctx context.Context) (int64, error)
}

// DurableQueue is a FIFO queue with explicit completion. Every Get must be
// followed by a Close reporting success or failure; un-closed items stay
// PROCESSING and are visible to the watchdog.
type DurableQueue[T Item] struct {
	name   string
	store  Store[T]
	logger *slog.Logger
}

// New creates a queue over the given store. The name only labels logs.
func New[T Item](name string, store Store[T], logger *slog.Logger) *DurableQueue[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &DurableQueue[T]{
		name:   name,
		store:  store,
		logger: logger.With("queue", name),
	}
}

// Put appends an item. Items must carry a non-zero id.
func (q *DurableQueue[T]) Put(ctx context.Context, item T) error {
	if item.Key() == uuid.Nil {
		return ErrInvalidPayload
	}
	if err := q.store.Append(ctx, item); err != nil {
		return err
	}
	q.logger.Debug("item queued", "id", item.Key())
	return nil
}

// Get removes the oldest queued item, marking it PROCESSING. The second
// return is false when the queue is empty.
func (q *DurableQueue[T]) Get(ctx context.Context) (T, bool, error) {
	item, ok, err := q.store.TakeOldest(ctx)
	if err != nil || !ok {
		return item, ok, err
	}
	q.logger.Debug("item dequeued", "id", item.Key())
	return item, true, nil
}

// Close resolves a PROCESSING item to COMPLETE or FAILED.
func (q *DurableQueue[T]) Close(ctx context.Context, id uuid.UUID, ok bool) error {
	status := model.StatusComplete
	if !ok {
		status = model.StatusFailed
	}
	if err := q.store.Resolve(ctx, id, status); err != nil {
		return err
	}
	q.logger.Debug("item closed", "id", id, "status", status)
	return nil
}

// Size returns the number of QUEUED items.
func (q *DurableQueue[T]) Size(ctx context.Context) (int64, error) {
	return q.store.PendingCount(ctx)
}

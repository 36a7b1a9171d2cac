// Package exchange abstracts the trading venue behind a small client
// interface so the real websocket implementation and test fakes are
// interchangeable at construction time.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lmartin/tradepipe/internal/model"
)

// Client is the exchange capability consumed by the pipeline.
type Client interface {
	// GetBalances returns available balances, filtered to the given
	// currency codes when non-empty.
	GetBalances(ctx context.Context, currencies []string) ([]model.Balance, error)

	// SubmitOrder places an order and returns the exchange's view of it.
	SubmitOrder(ctx context.Context, order model.Order) (model.Order, error)

	// CancelOrder cancels an active order by client order id.
	CancelOrder(ctx context.Context, id uuid.UUID) error

	// SubscribeTicks opens a tick subscription for one symbol. Each call
	// establishes a fresh stream; the caller owns its lifetime.
	SubscribeTicks(ctx context.Context, symbol string) (TickStream, error)
}

// TickStream delivers parsed ticks from one subscription.
type TickStream interface {
	// Recv blocks until the next tick, a read timeout, or stream failure.
	Recv(ctx context.Context) (model.Tick, error)

	// Close tears down the underlying socket.
	Close() error
}

// ConnectionError wraps transient networking failures. Callers recover from
// it by reconnecting; it never indicates a domain problem.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("exchange connection: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is (or wraps) a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

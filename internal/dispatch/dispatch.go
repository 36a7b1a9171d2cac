// Package dispatch drains the durable order queue into the exchange. A
// single consumer serializes submissions so order effects land in queue
// order; callbacks around each submission let callers observe the flow
// without touching the hot path.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/lmartin/tradepipe/internal/exchange"
	"github.com/lmartin/tradepipe/internal/metrics"
	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/queue"
)

// submitTimeout bounds one exchange submission after the dispatcher's
// context is cancelled, so shutdown never abandons an in-flight order.
const submitTimeout = 30 * time.Second

// defaultPoll is the queue poll cadence when no nudge arrives.
const defaultPoll = time.Second

// Callbacks observe the submission flow. Either field may be nil.
type Callbacks struct {
	// OnSubmit runs just before the order is handed to the exchange.
	OnSubmit func(order model.Order)

	// OnComplete runs after the queue item is resolved. err is nil when
	// the exchange accepted the order.
	OnComplete func(order model.Order, err error)
}

// Dispatcher is the single consumer of the order queue.
type Dispatcher struct {
	orders *queue.DurableQueue[model.Order]
	client exchange.Client
	cb     Callbacks
	nudge  chan struct{}
	poll   time.Duration
	logger *slog.Logger
}

// New creates a dispatcher. buffer sizes the nudge channel; producers that
// outrun the consumer coalesce into pending polls rather than blocking.
func New(orders *queue.DurableQueue[model.Order], client exchange.Client, cb Callbacks, buffer int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		orders: orders,
		client: client,
		cb:     cb,
		nudge:  make(chan struct{}, buffer),
		poll:   defaultPoll,
		logger: logger.With("component", "dispatch"),
	}
}

// Nudge wakes the consumer without waiting for the next poll. Never blocks.
func (d *Dispatcher) Nudge() {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

// Run consumes orders until ctx is cancelled. An order already handed to
// the exchange is allowed to finish before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		// Drain everything queued before going back to sleep.
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ok, err := d.processOne(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
		}

		if depth, err := d.orders.Size(ctx); err == nil {
			metrics.QueueDepth.WithLabelValues("orders").Set(float64(depth))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-d.nudge:
		}
	}
}

// processOne takes and submits a single order. Returns ok=false when the
// queue is empty. Only queue infrastructure failures propagate as errors;
// a rejected order resolves its item FAILED and the loop moves on.
func (d *Dispatcher) processOne(ctx context.Context) (bool, error) {
	order, ok, err := d.orders.Get(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if d.cb.OnSubmit != nil {
		d.cb.OnSubmit(order)
	}

	// Detach from cancellation so shutdown cannot orphan the submission
	// between the exchange and the queue resolution.
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
	defer cancel()

	_, submitErr := d.client.SubmitOrder(submitCtx, order)
	if submitErr != nil {
		d.logger.Error("order submission failed",
			"id", order.UUID,
			"side", order.Side,
			"quantity", order.Quantity,
			"error", submitErr,
		)
	} else {
		d.logger.Info("order submitted",
			"id", order.UUID,
			"side", order.Side,
			"quantity", order.Quantity,
		)
		metrics.OrdersSubmitted.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	}

	if err := d.orders.Close(submitCtx, order.UUID, submitErr == nil); err != nil {
		return false, err
	}

	if d.cb.OnComplete != nil {
		d.cb.OnComplete(order, submitErr)
	}
	return true, nil
}

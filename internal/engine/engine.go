// Package engine turns queued signals into sized orders. Sizing is
// balance-aware: a signal's weight scales the tradable fraction of the
// account, buys are sized against the signal's reference price, and the
// funds check uses the live market price so a rallying market cannot
// overdraw the fiat balance.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/lmartin/tradepipe/internal/config"
	"github.com/lmartin/tradepipe/internal/metrics"
	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/notify"
	"github.com/lmartin/tradepipe/internal/queue"
	"github.com/lmartin/tradepipe/internal/retry"
)

// stackDepth bounds how far back the engine looks when stacking
// consecutive same-side positions.
const stackDepth = 10

// defaultPoll is the signal queue poll cadence.
const defaultPoll = time.Second

// BalanceSource provides account balances. Satisfied by exchange.Client.
type BalanceSource interface {
	GetBalances(ctx context.Context, currencies []string) ([]model.Balance, error)
}

// PriceSource provides the live market price for the funds check.
// Satisfied by store.TickStore.
type PriceSource interface {
	LastPrice(ctx context.Context) (float64, error)
}

// OrderHistory provides recent orders for stacking. Satisfied by
// store.OrderStore.
type OrderHistory interface {
	Recent(ctx context.Context, limit int) ([]model.Order, error)
}

// Waker nudges the order consumer after an enqueue. Satisfied by
// dispatch.Dispatcher.
type Waker interface {
	Nudge()
}

// Engine is the signal-to-order pipeline stage.
type Engine struct {
	cfg      config.TradingConfig
	signals  *queue.DurableQueue[model.Signal]
	orders   *queue.DurableQueue[model.Order]
	balances BalanceSource
	prices   PriceSource
	history  OrderHistory
	waker    Waker
	notifier notify.Notifier
	retry    retry.Config
	poll     time.Duration
	logger   *slog.Logger
}

// New creates an engine. waker may be nil when no dispatcher runs in
// process.
func New(
	cfg config.TradingConfig,
	signals *queue.DurableQueue[model.Signal],
	orders *queue.DurableQueue[model.Order],
	balances BalanceSource,
	prices PriceSource,
	history OrderHistory,
	waker Waker,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		cfg:      cfg,
		signals:  signals,
		orders:   orders,
		balances: balances,
		prices:   prices,
		history:  history,
		waker:    waker,
		notifier: notifier,
		retry:    retry.DefaultConfig(),
		poll:     defaultPoll,
		logger:   logger.With("component", "engine"),
	}
}

// Run consumes signals until ctx is cancelled. Per-signal failures resolve
// the signal FAILED and keep the loop alive; only queue infrastructure
// failures propagate.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sig, ok, err := e.signals.Get(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if err := e.process(ctx, sig); err != nil {
				return err
			}
		}

		if depth, err := e.signals.Size(ctx); err == nil {
			metrics.QueueDepth.WithLabelValues("signals").Set(float64(depth))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// process sizes and enqueues the order for one signal, then resolves the
// signal. The returned error is reserved for queue failures.
func (e *Engine) process(ctx context.Context, sig model.Signal) error {
	order, reject := e.buildOrder(ctx, sig)
	if reject != nil {
		metrics.OrdersRejected.WithLabelValues(string(reject.reason)).Inc()
		e.logger.Warn("signal rejected",
			"id", sig.UUID,
			"weight", sig.Weight,
			"reason", reject.reason,
			"detail", reject.detail,
		)
		return e.signals.Close(ctx, sig.UUID, false)
	}

	if err := e.orders.Put(ctx, order); err != nil {
		return fmt.Errorf("enqueue order: %w", err)
	}
	if e.waker != nil {
		e.waker.Nudge()
	}

	e.logger.Info("order queued",
		"id", order.UUID,
		"side", order.Side,
		"quantity", order.Quantity,
		"price", order.Price,
	)
	return e.signals.Close(ctx, sig.UUID, true)
}

type rejectReason string

const (
	rejectNoop              rejectReason = "noop"
	rejectBalanceFetch      rejectReason = "balance_fetch"
	rejectPriceFetch        rejectReason = "price_fetch"
	rejectNoReferencePrice  rejectReason = "no_reference_price"
	rejectZeroQuantity      rejectReason = "zero_quantity"
	rejectInsufficientFunds rejectReason = "insufficient_funds"
)

type rejection struct {
	reason rejectReason
	detail string
}

// buildOrder sizes one order. A nil rejection means the order is good to
// queue.
func (e *Engine) buildOrder(ctx context.Context, sig model.Signal) (model.Order, *rejection) {
	if sig.Weight == 0 {
		return model.Order{}, &rejection{reason: rejectNoop}
	}

	side := model.SideBuy
	if sig.Weight < 0 {
		side = model.SideSell
	}

	sheet, err := e.fetchBalances(ctx)
	if err != nil {
		return model.Order{}, &rejection{reason: rejectBalanceFetch, detail: err.Error()}
	}

	price, err := e.prices.LastPrice(ctx)
	if err != nil {
		return model.Order{}, &rejection{reason: rejectPriceFetch, detail: err.Error()}
	}

	percentage := e.cfg.MaxTradePercentage * math.Abs(sig.Weight)

	var quantity float64
	switch side {
	case model.SideSell:
		quantity = percentage * sheet.Crypto
	case model.SideBuy:
		ref := sig.ReferencePrice()
		if ref <= 0 {
			return model.Order{}, &rejection{reason: rejectNoReferencePrice}
		}
		quantity = percentage * sheet.Fiat / ref
	}

	quantity += e.stackBonus(ctx, side)
	if quantity <= 0 {
		return model.Order{}, &rejection{reason: rejectZeroQuantity}
	}

	switch side {
	case model.SideBuy:
		if price*quantity > sheet.Fiat {
			return model.Order{}, &rejection{
				reason: rejectInsufficientFunds,
				detail: fmt.Sprintf("cost %.2f exceeds fiat %.2f", price*quantity, sheet.Fiat),
			}
		}
	case model.SideSell:
		if quantity > sheet.Crypto {
			return model.Order{}, &rejection{
				reason: rejectInsufficientFunds,
				detail: fmt.Sprintf("quantity %.8f exceeds crypto %.8f", quantity, sheet.Crypto),
			}
		}
	}

	order := model.NewOrder(sig.UUID, e.cfg.Symbol, side, quantity)
	order.FiatBalance = sheet.Fiat
	order.CryptoBalance = sheet.Crypto
	order.Price = price
	return order, nil
}

// balanceSheet is the engine's view of the account.
type balanceSheet struct {
	Fiat   float64
	Crypto float64
}

func (e *Engine) fetchBalances(ctx context.Context) (balanceSheet, error) {
	var sheet balanceSheet
	currencies := []string{e.cfg.FiatCurrency, e.cfg.CryptoCurrency}

	err := retry.Do(ctx, e.retry, e.logger, "fetch balances", func(ctx context.Context) error {
		balances, err := e.balances.GetBalances(ctx, currencies)
		if err != nil {
			return err
		}
		sheet = balanceSheet{}
		for _, b := range balances {
			switch b.Currency {
			case e.cfg.FiatCurrency:
				sheet.Fiat = b.Available
			case e.cfg.CryptoCurrency:
				sheet.Crypto = b.Available
			}
		}
		return nil
	})
	return sheet, err
}

// stackBonus looks at the most recent orders and, when the new order
// reverses direction against a stack of two or more same-side orders,
// returns the stacked quantity beyond the first so the reversal unwinds
// the whole position. History read failures forfeit the bonus rather than
// blocking the trade.
func (e *Engine) stackBonus(ctx context.Context, side model.Side) float64 {
	recent, err := e.history.Recent(ctx, stackDepth)
	if err != nil {
		e.logger.Warn("order history unavailable, skipping stack", "error", err)
		return 0
	}
	if len(recent) == 0 {
		return 0
	}

	head := recent[0].Side
	if head == side {
		return 0
	}

	var run []model.Order
	for _, o := range recent {
		if o.Side != head {
			break
		}
		run = append(run, o)
	}
	if len(run) < 2 {
		return 0
	}

	var bonus float64
	for _, o := range run[1:] {
		bonus += o.Quantity
	}
	return bonus
}

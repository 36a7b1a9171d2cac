package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/retry"
)

// OrderStore backs the order queue with the order_feed table. Rows carry a
// balance snapshot taken when the order was sized, for post-hoc audit.
type OrderStore struct {
	db     *pgxpool.Pool
	retry  retry.Config
	logger *slog.Logger
}

// NewOrderStore creates an order store over the given pool.
func NewOrderStore(db *pgxpool.Pool, logger *slog.Logger) *OrderStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderStore{
		db:     db,
		retry:  retry.DefaultConfig(),
		logger: logger,
	}
}

// Append inserts an order in QUEUED state.
func (s *OrderStore) Append(ctx context.Context, o model.Order) error {
	return retry.Do(ctx, s.retry, s.logger, "append order", func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
			INSERT INTO order_feed (timestamp, quantity, side, status, uuid, usd_balance, btc_balance, current_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, o.CreatedAt, o.Quantity, string(o.Side), string(o.Status), o.UUID, o.FiatBalance, o.CryptoBalance, o.Price)
		return err
	})
}

// TakeOldest atomically moves the oldest QUEUED order to PROCESSING and
// returns it. Returns ok=false when nothing is queued.
func (s *OrderStore) TakeOldest(ctx context.Context) (model.Order, bool, error) {
	var (
		o    model.Order
		side string
	)
	err := s.db.QueryRow(ctx, `
		UPDATE order_feed SET status = $1
		WHERE uuid = (
			SELECT uuid FROM order_feed
			WHERE status = $2
			ORDER BY timestamp, uuid
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING uuid, timestamp, quantity, side, usd_balance, btc_balance, current_price
	`, string(model.StatusProcessing), string(model.StatusQueued)).Scan(
		&o.UUID, &o.CreatedAt, &o.Quantity, &side, &o.FiatBalance, &o.CryptoBalance, &o.Price,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, fmt.Errorf("take oldest order: %w", err)
	}

	o.Side, err = model.ParseSide(side)
	if err != nil {
		return model.Order{}, false, fmt.Errorf("take oldest order: %w", err)
	}
	o.Status = model.StatusProcessing
	return o, true, nil
}

// Resolve moves a PROCESSING order to a terminal status.
func (s *OrderStore) Resolve(ctx context.Context, id uuid.UUID, status model.Status) error {
	return resolveRow(ctx, s.db, "order_feed", id, status)
}

// PendingCount returns the number of QUEUED orders.
func (s *OrderStore) PendingCount(ctx context.Context) (int64, error) {
	return pendingCount(ctx, s.db, "order_feed")
}

// Recent returns up to limit orders, newest first, regardless of status.
// The engine reads these to stack consecutive same-side positions.
func (s *OrderStore) Recent(ctx context.Context, limit int) ([]model.Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT uuid, timestamp, quantity, side, status, usd_balance, btc_balance, current_price
		FROM order_feed
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o            model.Order
			side, status string
		)
		if err := rows.Scan(&o.UUID, &o.CreatedAt, &o.Quantity, &side, &status, &o.FiatBalance, &o.CryptoBalance, &o.Price); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.Side, err = model.ParseSide(side); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.Status, err = model.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// LatestTimestamp returns the newest order row timestamp, or 0 when the
// table is empty. The monitor probes this for engine liveness.
func (s *OrderStore) LatestTimestamp(ctx context.Context) (int64, error) {
	var ts int64
	err := s.db.QueryRow(ctx, `SELECT timestamp FROM order_feed ORDER BY timestamp DESC LIMIT 1`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest order timestamp: %w", err)
	}
	return ts, nil
}

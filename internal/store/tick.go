package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/retry"
)

// TickStore persists market-data snapshots to the ticker_feed table.
type TickStore struct {
	db     *pgxpool.Pool
	retry  retry.Config
	logger *slog.Logger
}

// NewTickStore creates a tick store over the given pool.
func NewTickStore(db *pgxpool.Pool, logger *slog.Logger) *TickStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TickStore{
		db:     db,
		retry:  retry.DefaultConfig(),
		logger: logger,
	}
}

// Insert appends one tick row. Transient failures are retried per the
// persistence policy.
func (s *TickStore) Insert(ctx context.Context, tick model.Tick) error {
	return retry.Do(ctx, s.retry, s.logger, "insert tick", func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
			INSERT INTO ticker_feed (timestamp, ask, bid, last, low, high, open, volume, volume_quote)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, tick.Timestamp, tick.Ask, tick.Bid, tick.Last, tick.Low, tick.High, tick.Open, tick.Volume, tick.VolumeQuote)
		return err
	})
}

// LatestTimestamp returns the newest persisted tick timestamp, or 0 when
// the table is empty. The feed watchdog and the cross-service monitor both
// probe this.
func (s *TickStore) LatestTimestamp(ctx context.Context) (int64, error) {
	var ts int64
	err := s.db.QueryRow(ctx, `SELECT timestamp FROM ticker_feed ORDER BY timestamp DESC LIMIT 1`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest tick timestamp: %w", err)
	}
	return ts, nil
}

// LastPrice returns the last-trade price of the newest tick, or 0 when the
// table is empty.
func (s *TickStore) LastPrice(ctx context.Context) (float64, error) {
	var last float64
	err := s.db.QueryRow(ctx, `SELECT last FROM ticker_feed ORDER BY timestamp DESC LIMIT 1`).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last price: %w", err)
	}
	return last, nil
}

// Count returns the total number of persisted ticks.
func (s *TickStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM ticker_feed`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return n, nil
}

// Recent returns up to limit ticks, newest first.
func (s *TickStore) Recent(ctx context.Context, limit int) ([]model.Tick, error) {
	rows, err := s.db.Query(ctx, `
		SELECT timestamp, ask, bid, last, low, high, open, volume, volume_quote
		FROM ticker_feed
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		if err := rows.Scan(&t.Timestamp, &t.Ask, &t.Bid, &t.Last, &t.Low, &t.High, &t.Open, &t.Volume, &t.VolumeQuote); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

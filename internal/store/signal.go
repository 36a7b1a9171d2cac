package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/retry"
)

// SignalStore backs the signal queue with the prediction_feed table. The
// single-statement TakeOldest relies on FOR UPDATE SKIP LOCKED so multiple
// engine instances never process the same signal.
type SignalStore struct {
	db     *pgxpool.Pool
	retry  retry.Config
	logger *slog.Logger
}

// NewSignalStore creates a signal store over the given pool.
func NewSignalStore(db *pgxpool.Pool, logger *slog.Logger) *SignalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalStore{
		db:     db,
		retry:  retry.DefaultConfig(),
		logger: logger,
	}
}

// Append inserts a signal in QUEUED state.
func (s *SignalStore) Append(ctx context.Context, sig model.Signal) error {
	return retry.Do(ctx, s.retry, s.logger, "append signal", func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, `
			INSERT INTO prediction_feed (timestamp, prediction_timestamp, weight, prediction_history, status, uuid, percent)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, time.Now().Unix(), sig.Timestamp, sig.Weight, sig.Predictions, string(model.StatusQueued), sig.UUID, sig.Percent)
		return err
	})
}

// TakeOldest atomically moves the oldest QUEUED signal to PROCESSING and
// returns it. Returns ok=false when nothing is queued.
func (s *SignalStore) TakeOldest(ctx context.Context) (model.Signal, bool, error) {
	var sig model.Signal
	err := s.db.QueryRow(ctx, `
		UPDATE prediction_feed SET status = $1
		WHERE uuid = (
			SELECT uuid FROM prediction_feed
			WHERE status = $2
			ORDER BY timestamp, uuid
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING uuid, weight, prediction_history, prediction_timestamp, percent
	`, string(model.StatusProcessing), string(model.StatusQueued)).Scan(
		&sig.UUID, &sig.Weight, &sig.Predictions, &sig.Timestamp, &sig.Percent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Signal{}, false, nil
	}
	if err != nil {
		return model.Signal{}, false, fmt.Errorf("take oldest signal: %w", err)
	}
	return sig, true, nil
}

// Resolve moves a PROCESSING signal to a terminal status.
func (s *SignalStore) Resolve(ctx context.Context, id uuid.UUID, status model.Status) error {
	return resolveRow(ctx, s.db, "prediction_feed", id, status)
}

// PendingCount returns the number of QUEUED signals.
func (s *SignalStore) PendingCount(ctx context.Context) (int64, error) {
	return pendingCount(ctx, s.db, "prediction_feed")
}

// LatestTimestamp returns the newest signal row timestamp, or 0 when the
// table is empty. The monitor probes this for producer liveness.
func (s *SignalStore) LatestTimestamp(ctx context.Context) (int64, error) {
	var ts int64
	err := s.db.QueryRow(ctx, `SELECT timestamp FROM prediction_feed ORDER BY timestamp DESC LIMIT 1`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest signal timestamp: %w", err)
	}
	return ts, nil
}

// OldestQueuedAge returns how long the oldest QUEUED signal has been
// waiting, or 0 when nothing is queued. The monitor uses this to spot a
// stalled engine.
func (s *SignalStore) OldestQueuedAge(ctx context.Context) (time.Duration, error) {
	var ts int64
	err := s.db.QueryRow(ctx, `
		SELECT timestamp FROM prediction_feed
		WHERE status = $1
		ORDER BY timestamp
		LIMIT 1
	`, string(model.StatusQueued)).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("oldest queued signal: %w", err)
	}
	return time.Since(time.Unix(ts, 0)), nil
}

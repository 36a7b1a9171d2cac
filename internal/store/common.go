package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/queue"
)

// resolveRow implements the shared terminal-status update for both queue
// tables. The WHERE clause only matches PROCESSING rows, so a zero row
// count means either a missing item or an illegal transition; a follow-up
// read distinguishes the two.
func resolveRow(ctx context.Context, db *pgxpool.Pool, table string, id uuid.UUID, status model.Status) error {
	if !model.StatusProcessing.CanTransition(status) {
		return queue.ErrInvalidStatusTransition
	}

	tag, err := db.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1 WHERE uuid = $2 AND status = $3`, table),
		string(status), id, string(model.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("resolve %s row: %w", table, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = db.QueryRow(ctx,
		fmt.Sprintf(`SELECT status FROM %s WHERE uuid = $1`, table), id,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return queue.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s status: %w", table, err)
	}
	return fmt.Errorf("%w: %s -> %s", queue.ErrInvalidStatusTransition, current, status)
}

func pendingCount(ctx context.Context, db *pgxpool.Pool, table string) (int64, error) {
	var n int64
	err := db.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE status = $1`, table),
		string(model.StatusQueued),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s pending: %w", table, err)
	}
	return n, nil
}

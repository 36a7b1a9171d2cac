package feed

import (
	"context"

	"github.com/lmartin/tradepipe/internal/model"
	"github.com/lmartin/tradepipe/internal/store"
)

// Sink receives deduplicated ticks. LastTimestamp lets the feed rebuild
// its dedup marker after a restart, from whatever the sink last persisted.
type Sink interface {
	Write(ctx context.Context, tick model.Tick) error
	LastTimestamp(ctx context.Context) (int64, error)
}

// PostgresSink writes ticks to the ticker_feed table.
type PostgresSink struct {
	ticks *store.TickStore
}

// NewPostgresSink wraps a tick store as a feed sink.
func NewPostgresSink(ticks *store.TickStore) *PostgresSink {
	return &PostgresSink{ticks: ticks}
}

func (s *PostgresSink) Write(ctx context.Context, tick model.Tick) error {
	return s.ticks.Insert(ctx, tick)
}

func (s *PostgresSink) LastTimestamp(ctx context.Context) (int64, error) {
	return s.ticks.LatestTimestamp(ctx)
}

package replay

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"weight-ledger/internal/storage"
)

// Runner loads events from an event store and replays them in sequence
// order through a Rebuilder.
type Runner struct {
	events storage.EventStore
	logger *zap.Logger
}

// NewRunner creates a new replay runner.
func NewRunner(events storage.EventStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{events: events, logger: logger}
}

// Run replays all events with timestamps in [from, to] and returns the
// number applied.
func (r *Runner) Run(ctx context.Context, from, to int64, rb *Rebuilder) (int, error) {
	events, err := r.events.GetByTimeRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("load events: %w", err)
	}

	for _, e := range events {
		if err := rb.Apply(ctx, e); err != nil {
			return rb.Applied(), err
		}
	}

	r.logger.Info("replay complete",
		zap.Int("events", len(events)),
		zap.Int("applied", rb.Applied()))
	return rb.Applied(), nil
}

// RunAll replays the entire event log.
func (r *Runner) RunAll(ctx context.Context, rb *Rebuilder) (int, error) {
	return r.Run(ctx, 0, math.MaxInt64, rb)
}

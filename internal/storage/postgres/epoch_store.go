package postgres

import (
	"context"
	"fmt"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// EpochStore implements storage.EpochStore using PostgreSQL.
// A single row with id = 1 holds the checkpointer state.
type EpochStore struct {
	pool *Pool
}

// NewEpochStore creates a new EpochStore.
func NewEpochStore(pool *Pool) *EpochStore {
	return &EpochStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EpochStore = (*EpochStore)(nil)

// Get returns the persisted state. Returns ErrNotFound if never saved.
func (s *EpochStore) Get(ctx context.Context) (*domain.EpochState, error) {
	query := `
		SELECT last_checkpoint, emission_rate, next_rate_epoch, killed, updated_at
		FROM epoch_state
		WHERE id = 1
	`

	var (
		state domain.EpochState
		rate  int64
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&state.LastCheckpoint,
		&rate,
		&state.NextRateEpoch,
		&state.Killed,
		&state.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get epoch state: %w", err)
	}

	state.EmissionRate = uint64(rate)
	return &state, nil
}

// Put overwrites the persisted state.
// Uses upsert to handle initial insert and subsequent updates.
func (s *EpochStore) Put(ctx context.Context, state *domain.EpochState) error {
	if state == nil {
		return storage.ErrInvalidInput
	}
	rate, err := toBigint(state.EmissionRate)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO epoch_state (id, last_checkpoint, emission_rate, next_rate_epoch, killed, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET last_checkpoint = EXCLUDED.last_checkpoint,
		    emission_rate = EXCLUDED.emission_rate,
		    next_rate_epoch = EXCLUDED.next_rate_epoch,
		    killed = EXCLUDED.killed,
		    updated_at = EXCLUDED.updated_at
	`,
		state.LastCheckpoint,
		rate,
		state.NextRateEpoch,
		state.Killed,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put epoch state: %w", err)
	}

	return nil
}

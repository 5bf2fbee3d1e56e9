package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using PostgreSQL.
// Each snapshot is one row; the series key is (scope, position, participant).
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new CheckpointStore.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// SetCurrent applies a batch of checkpoint writes atomically in one
// transaction. A write at the tail timestamp overwrites the tail row via
// upsert; an older timestamp rolls the whole batch back.
func (s *CheckpointStore) SetCurrent(ctx context.Context, writes []*domain.CheckpointWrite) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tailQuery := `
		SELECT ts FROM checkpoints
		WHERE scope = $1 AND position = $2 AND participant = $3
		ORDER BY ts DESC
		LIMIT 1
	`
	upsertQuery := `
		INSERT INTO checkpoints (scope, position, participant, ts, value)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, position, participant, ts) DO UPDATE
		SET value = EXCLUDED.value
	`

	for _, w := range writes {
		if w == nil || !w.Key.Scope.IsValid() {
			return storage.ErrInvalidInput
		}
		value, err := toBigint(w.Value)
		if err != nil {
			return err
		}

		var tail int64
		err = tx.QueryRow(ctx, tailQuery,
			string(w.Key.Scope), w.Key.Position, w.Key.Participant,
		).Scan(&tail)
		switch {
		case isNotFoundError(err):
			// first snapshot of this series
		case err != nil:
			return fmt.Errorf("read series tail: %w", err)
		case w.Timestamp < tail:
			return storage.ErrInvalidInput
		}

		_, err = tx.Exec(ctx, upsertQuery,
			string(w.Key.Scope), w.Key.Position, w.Key.Participant, w.Timestamp, value,
		)
		if err != nil {
			return fmt.Errorf("write checkpoint: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Latest returns the most recent value of a series, 0 when it has none.
func (s *CheckpointStore) Latest(ctx context.Context, key domain.SeriesKey) (uint64, error) {
	query := `
		SELECT value FROM checkpoints
		WHERE scope = $1 AND position = $2 AND participant = $3
		ORDER BY ts DESC
		LIMIT 1
	`

	var value int64
	err := s.pool.QueryRow(ctx, query,
		string(key.Scope), key.Position, key.Participant,
	).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get latest checkpoint: %w", err)
	}

	return uint64(value), nil
}

// ValueAt returns the series value in effect at time t.
func (s *CheckpointStore) ValueAt(ctx context.Context, key domain.SeriesKey, t int64) (uint64, error) {
	query := `
		SELECT value FROM checkpoints
		WHERE scope = $1 AND position = $2 AND participant = $3 AND ts <= $4
		ORDER BY ts DESC
		LIMIT 1
	`

	var value int64
	err := s.pool.QueryRow(ctx, query,
		string(key.Scope), key.Position, key.Participant, t,
	).Scan(&value)
	if err != nil {
		if isNotFoundError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("get checkpoint at time: %w", err)
	}

	return uint64(value), nil
}

// History retrieves all snapshots of a series, ordered by timestamp ASC.
func (s *CheckpointStore) History(ctx context.Context, key domain.SeriesKey) ([]*domain.CheckpointWrite, error) {
	query := `
		SELECT ts, value FROM checkpoints
		WHERE scope = $1 AND position = $2 AND participant = $3
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query,
		string(key.Scope), key.Position, key.Participant,
	)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint history: %w", err)
	}
	defer rows.Close()

	return scanCheckpoints(rows, key)
}

// ListKeys returns every series key that has at least one snapshot.
func (s *CheckpointStore) ListKeys(ctx context.Context) ([]domain.SeriesKey, error) {
	query := `
		SELECT DISTINCT scope, position, participant FROM checkpoints
		ORDER BY scope, position, participant
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list checkpoint keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.SeriesKey
	for rows.Next() {
		var scope, position, participant string
		if err := rows.Scan(&scope, &position, &participant); err != nil {
			return nil, fmt.Errorf("scan series key: %w", err)
		}
		keys = append(keys, domain.SeriesKey{
			Scope:       domain.SeriesScope(scope),
			Position:    position,
			Participant: participant,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series keys: %w", err)
	}

	return keys, nil
}

// scanCheckpoints scans snapshot rows into CheckpointWrite records for key.
func scanCheckpoints(rows pgx.Rows, key domain.SeriesKey) ([]*domain.CheckpointWrite, error) {
	var writes []*domain.CheckpointWrite

	for rows.Next() {
		var (
			ts    int64
			value int64
		)
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		writes = append(writes, &domain.CheckpointWrite{
			Key:       key,
			Timestamp: ts,
			Value:     uint64(value),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoint rows: %w", err)
	}

	return writes, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if the id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (
			id, owner, vault, dividend_ratio_bps, wrapped_at, unwrapped_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		p.ID,
		p.Owner,
		p.Vault,
		p.DividendRatioBps,
		p.WrappedAt,
		p.UnwrappedAt,
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Get retrieves a position by its id. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, id string) (*domain.Position, error) {
	query := `
		SELECT id, owner, vault, dividend_ratio_bps, wrapped_at, unwrapped_at, created_at
		FROM positions
		WHERE id = $1
	`

	var p domain.Position
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Owner,
		&p.Vault,
		&p.DividendRatioBps,
		&p.WrappedAt,
		&p.UnwrappedAt,
		&p.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}

	return &p, nil
}

// Update rewrites an existing position. Returns ErrNotFound if not exists.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE positions
		SET owner = $2, vault = $3, dividend_ratio_bps = $4,
		    wrapped_at = $5, unwrapped_at = $6, created_at = $7
		WHERE id = $1
	`

	ct, err := s.pool.Exec(ctx, query,
		p.ID,
		p.Owner,
		p.Vault,
		p.DividendRatioBps,
		p.WrappedAt,
		p.UnwrappedAt,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all positions, ordered by created_at ASC.
func (s *PositionStore) List(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT id, owner, vault, dividend_ratio_bps, wrapped_at, unwrapped_at, created_at
		FROM positions
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		var p domain.Position

		err := rows.Scan(
			&p.ID,
			&p.Owner,
			&p.Vault,
			&p.DividendRatioBps,
			&p.WrappedAt,
			&p.UnwrappedAt,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}

		positions = append(positions, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// ClaimStore implements storage.ClaimStore using PostgreSQL.
type ClaimStore struct {
	pool *Pool
}

// NewClaimStore creates a new ClaimStore.
func NewClaimStore(pool *Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClaimStore = (*ClaimStore)(nil)

// InsertBulk records multiple claims atomically. Fails entire batch on any
// duplicate; the (currency, idx, claimant) primary key also catches
// duplicates within the batch.
func (s *ClaimStore) InsertBulk(ctx context.Context, claims []*domain.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO claims (currency, idx, claimant, amount, claimed_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, c := range claims {
		if c == nil || c.Currency == "" || c.Claimant == "" {
			return storage.ErrInvalidInput
		}
		idx, err := toBigint(c.Index)
		if err != nil {
			return err
		}
		amount, err := toBigint(c.Amount)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, query, c.Currency, idx, c.Claimant, amount, c.ClaimedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert claim in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// IsClaimed reports whether the claimant has claimed the payout.
func (s *ClaimStore) IsClaimed(ctx context.Context, currency string, index uint64, claimant string) (bool, error) {
	idx, err := toBigint(index)
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM claims WHERE currency = $1 AND idx = $2 AND claimant = $3
		)
	`, currency, idx, claimant).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check claim: %w", err)
	}

	return exists, nil
}

// ListByClaimant retrieves a claimant's claims for a currency, ordered by
// index ASC.
func (s *ClaimStore) ListByClaimant(ctx context.Context, currency, claimant string) ([]*domain.Claim, error) {
	query := `
		SELECT currency, idx, claimant, amount, claimed_at
		FROM claims
		WHERE currency = $1 AND claimant = $2
		ORDER BY idx ASC
	`

	rows, err := s.pool.Query(ctx, query, currency, claimant)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	return scanClaims(rows)
}

// scanClaims scans multiple rows into a slice of Claim.
func scanClaims(rows pgx.Rows) ([]*domain.Claim, error) {
	var claims []*domain.Claim

	for rows.Next() {
		var (
			c      domain.Claim
			idx    int64
			amount int64
		)

		err := rows.Scan(
			&c.Currency,
			&idx,
			&c.Claimant,
			&amount,
			&c.ClaimedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan claim row: %w", err)
		}

		c.Index = uint64(idx)
		c.Amount = uint64(amount)
		claims = append(claims, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim rows: %w", err)
	}

	return claims, nil
}

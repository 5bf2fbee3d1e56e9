package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// PayoutStore implements storage.PayoutStore using PostgreSQL.
// AmountPerUnit is stored as a decimal string so the 1e18-scaled value is
// kept exact; BIGINT would overflow it.
type PayoutStore struct {
	pool *Pool
}

// NewPayoutStore creates a new PayoutStore.
func NewPayoutStore(pool *Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PayoutStore = (*PayoutStore)(nil)

// Append adds a new payout. Returns ErrDuplicateKey if (currency, index)
// exists and ErrInvalidInput if the index would leave a gap.
func (s *PayoutStore) Append(ctx context.Context, p *domain.Payout) error {
	if p == nil || p.Currency == "" || p.AmountPerUnit == nil || !p.Source.IsValid() {
		return storage.ErrInvalidInput
	}
	amount, err := toBigint(p.Amount)
	if err != nil {
		return err
	}
	index, err := toBigint(p.Index)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(idx) + 1, 0) FROM payouts WHERE currency = $1
	`, p.Currency).Scan(&next)
	if err != nil {
		return fmt.Errorf("read next payout index: %w", err)
	}
	if index < next {
		return storage.ErrDuplicateKey
	}
	if index > next {
		return storage.ErrInvalidInput
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payouts (
			currency, idx, position, issued_at, amount_per_unit, amount, source, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		p.Currency,
		index,
		p.Position,
		p.IssuedAt,
		p.AmountPerUnit.String(),
		amount,
		string(p.Source),
		p.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert payout: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Get retrieves a payout by currency and index. Returns ErrNotFound if not
// exists.
func (s *PayoutStore) Get(ctx context.Context, currency string, index uint64) (*domain.Payout, error) {
	idx, err := toBigint(index)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT currency, idx, position, issued_at, amount_per_unit, amount, source, created_at
		FROM payouts
		WHERE currency = $1 AND idx = $2
	`

	row := s.pool.QueryRow(ctx, query, currency, idx)
	p, err := scanPayout(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}

	return p, nil
}

// Count returns the number of payouts issued for a currency.
func (s *PayoutStore) Count(ctx context.Context, currency string) (uint64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM payouts WHERE currency = $1
	`, currency).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count payouts: %w", err)
	}
	return uint64(count), nil
}

// ListByCurrency retrieves all payouts for a currency, ordered by index ASC.
func (s *PayoutStore) ListByCurrency(ctx context.Context, currency string) ([]*domain.Payout, error) {
	query := `
		SELECT currency, idx, position, issued_at, amount_per_unit, amount, source, created_at
		FROM payouts
		WHERE currency = $1
		ORDER BY idx ASC
	`

	rows, err := s.pool.Query(ctx, query, currency)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout row: %w", err)
		}
		payouts = append(payouts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout rows: %w", err)
	}

	return payouts, nil
}

// scanPayout scans one payout row, parsing amount_per_unit back into big.Int.
func scanPayout(row pgx.Row) (*domain.Payout, error) {
	var (
		p             domain.Payout
		idx           int64
		amountPerUnit string
		amount        int64
		source        string
	)

	err := row.Scan(
		&p.Currency,
		&idx,
		&p.Position,
		&p.IssuedAt,
		&amountPerUnit,
		&amount,
		&source,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	apu, ok := new(big.Int).SetString(amountPerUnit, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount_per_unit %q", amountPerUnit)
	}

	p.Index = uint64(idx)
	p.AmountPerUnit = apu
	p.Amount = uint64(amount)
	p.Source = domain.PayoutSource(source)
	return &p, nil
}

package storage

import (
	"context"

	"weight-ledger/internal/domain"
)

// CheckpointStore provides access to checkpointed weight series.
type CheckpointStore interface {
	// SetCurrent applies a batch of checkpoint writes atomically. A write to a
	// series whose latest snapshot has the same timestamp overwrites that
	// snapshot in place; otherwise it appends. Timestamps per series must not
	// decrease; a regressing write returns ErrInvalidInput and no write from
	// the batch is applied.
	SetCurrent(ctx context.Context, writes []*domain.CheckpointWrite) error

	// Latest returns the most recent value of a series. Returns 0 for a
	// series with no snapshots.
	Latest(ctx context.Context, key domain.SeriesKey) (uint64, error)

	// ValueAt returns the series value in effect at time t: the value of the
	// latest snapshot with timestamp <= t, or 0 if none exists.
	ValueAt(ctx context.Context, key domain.SeriesKey, t int64) (uint64, error)

	// History retrieves all snapshots of a series, ordered by timestamp ASC.
	History(ctx context.Context, key domain.SeriesKey) ([]*domain.CheckpointWrite, error)

	// ListKeys returns every series key that has at least one snapshot.
	ListKeys(ctx context.Context) ([]domain.SeriesKey, error)
}

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, p *domain.Position) error

	// Get retrieves a position by its id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.Position, error)

	// Update rewrites an existing position. Returns ErrNotFound if not exists.
	Update(ctx context.Context, p *domain.Position) error

	// List retrieves all positions, ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.Position, error)
}

// PayoutStore provides access to payouts storage. Payouts are append-only.
type PayoutStore interface {
	// Append adds a new payout. Returns ErrDuplicateKey if (currency, index)
	// exists.
	Append(ctx context.Context, p *domain.Payout) error

	// Get retrieves a payout by currency and index. Returns ErrNotFound if
	// not exists.
	Get(ctx context.Context, currency string, index uint64) (*domain.Payout, error)

	// Count returns the number of payouts issued for a currency. Indices are
	// dense, so the next index to issue equals the count.
	Count(ctx context.Context, currency string) (uint64, error)

	// ListByCurrency retrieves all payouts for a currency, ordered by index ASC.
	ListByCurrency(ctx context.Context, currency string) ([]*domain.Payout, error)
}

// ClaimStore provides access to claims storage. Claims are append-only.
type ClaimStore interface {
	// InsertBulk records multiple claims atomically. Fails the entire batch
	// with ErrDuplicateKey if any (currency, index, claimant) already exists,
	// including duplicates within the batch itself.
	InsertBulk(ctx context.Context, claims []*domain.Claim) error

	// IsClaimed reports whether the claimant has claimed the payout.
	IsClaimed(ctx context.Context, currency string, index uint64, claimant string) (bool, error)

	// ListByClaimant retrieves a claimant's claims for a currency, ordered by
	// index ASC.
	ListByClaimant(ctx context.Context, currency, claimant string) ([]*domain.Claim, error)
}

// EpochStore persists the checkpointer's resumable state. There is a single
// state record per ledger instance.
type EpochStore interface {
	// Get returns the persisted state. Returns ErrNotFound if never saved.
	Get(ctx context.Context) (*domain.EpochState, error)

	// Put overwrites the persisted state.
	Put(ctx context.Context, s *domain.EpochState) error
}

// EventStore provides access to the audit event log. Events are append-only.
type EventStore interface {
	// Insert adds one event. Returns ErrDuplicateKey if seq exists.
	Insert(ctx context.Context, e *domain.Event) error

	// GetByTimeRange retrieves events within [start, end] (inclusive),
	// ordered by seq ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Event, error)

	// GetByPosition retrieves all events for a position, ordered by seq ASC.
	GetByPosition(ctx context.Context, position string) ([]*domain.Event, error)

	// LastSeq returns the highest stored sequence number, 0 when empty.
	LastSeq(ctx context.Context) (uint64, error)
}

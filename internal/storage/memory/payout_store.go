package memory

import (
	"context"
	"sync"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// PayoutStore is an in-memory implementation of storage.PayoutStore.
// Payouts per currency live in a dense slice, so slice position equals the
// payout index.
type PayoutStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.Payout // keyed by currency
}

// NewPayoutStore creates a new in-memory payout store.
func NewPayoutStore() *PayoutStore {
	return &PayoutStore{
		data: make(map[string][]*domain.Payout),
	}
}

// Append adds a new payout. Returns ErrDuplicateKey if (currency, index)
// exists and ErrInvalidInput if the index would leave a gap.
func (s *PayoutStore) Append(_ context.Context, p *domain.Payout) error {
	if p == nil || p.Currency == "" || p.AmountPerUnit == nil || !p.Source.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := uint64(len(s.data[p.Currency]))
	if p.Index < next {
		return storage.ErrDuplicateKey
	}
	if p.Index > next {
		return storage.ErrInvalidInput
	}

	s.data[p.Currency] = append(s.data[p.Currency], p.Clone())
	return nil
}

// Get retrieves a payout by currency and index. Returns ErrNotFound if not
// exists.
func (s *PayoutStore) Get(_ context.Context, currency string, index uint64) (*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payouts := s.data[currency]
	if index >= uint64(len(payouts)) {
		return nil, storage.ErrNotFound
	}

	return payouts[index].Clone(), nil
}

// Count returns the number of payouts issued for a currency.
func (s *PayoutStore) Count(_ context.Context, currency string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.data[currency])), nil
}

// ListByCurrency retrieves all payouts for a currency, ordered by index ASC.
func (s *PayoutStore) ListByCurrency(_ context.Context, currency string) ([]*domain.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payouts := s.data[currency]
	result := make([]*domain.Payout, 0, len(payouts))
	for _, p := range payouts {
		result = append(result, p.Clone())
	}

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PayoutStore = (*PayoutStore)(nil)

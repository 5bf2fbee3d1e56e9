package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// ClaimStore is an in-memory implementation of storage.ClaimStore.
type ClaimStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Claim // keyed by composite key
}

// NewClaimStore creates a new in-memory claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		data: make(map[string]*domain.Claim),
	}
}

// claimKey generates a unique key for a claim.
func claimKey(currency string, index uint64, claimant string) string {
	return fmt.Sprintf("%s|%d|%s", currency, index, claimant)
}

// InsertBulk records multiple claims atomically. Fails entire batch on any
// duplicate, including duplicates within the batch itself.
func (s *ClaimStore) InsertBulk(_ context.Context, claims []*domain.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batchKeys := make(map[string]struct{}, len(claims))
	for _, c := range claims {
		if c == nil || c.Currency == "" || c.Claimant == "" {
			return storage.ErrInvalidInput
		}
		key := claimKey(c.Currency, c.Index, c.Claimant)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, c := range claims {
		claimCopy := *c
		s.data[claimKey(c.Currency, c.Index, c.Claimant)] = &claimCopy
	}

	return nil
}

// IsClaimed reports whether the claimant has claimed the payout.
func (s *ClaimStore) IsClaimed(_ context.Context, currency string, index uint64, claimant string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[claimKey(currency, index, claimant)]
	return exists, nil
}

// ListByClaimant retrieves a claimant's claims for a currency, ordered by
// index ASC.
func (s *ClaimStore) ListByClaimant(_ context.Context, currency, claimant string) ([]*domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Claim
	for _, c := range s.data {
		if c.Currency == currency && c.Claimant == claimant {
			claimCopy := *c
			result = append(result, &claimCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ClaimStore = (*ClaimStore)(nil)

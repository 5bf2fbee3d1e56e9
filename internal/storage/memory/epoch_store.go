package memory

import (
	"context"
	"sync"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// EpochStore is an in-memory implementation of storage.EpochStore.
type EpochStore struct {
	mu    sync.RWMutex
	state *domain.EpochState
}

// NewEpochStore creates a new in-memory epoch store.
func NewEpochStore() *EpochStore {
	return &EpochStore{}
}

// Get returns the persisted state. Returns ErrNotFound if never saved.
func (s *EpochStore) Get(_ context.Context) (*domain.EpochState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, storage.ErrNotFound
	}

	stateCopy := *s.state
	return &stateCopy, nil
}

// Put overwrites the persisted state.
func (s *EpochStore) Put(_ context.Context, state *domain.EpochState) error {
	if state == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stateCopy := *state
	s.state = &stateCopy
	return nil
}

// Verify interface compliance at compile time.
var _ storage.EpochStore = (*EpochStore)(nil)

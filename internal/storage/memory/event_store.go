package memory

import (
	"context"
	"sort"
	"sync"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu      sync.RWMutex
	data    map[uint64]*domain.Event // keyed by seq
	lastSeq uint64
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[uint64]*domain.Event),
	}
}

// Insert adds one event. Returns ErrDuplicateKey if seq exists.
func (s *EventStore) Insert(_ context.Context, e *domain.Event) error {
	if e == nil || e.Seq == 0 || e.Type == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.Seq]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[e.Seq] = e.Clone()
	if e.Seq > s.lastSeq {
		s.lastSeq = e.Seq
	}
	return nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by
// seq ASC.
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.Timestamp >= start && e.Timestamp <= end {
			result = append(result, e.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	return result, nil
}

// GetByPosition retrieves all events for a position, ordered by seq ASC.
func (s *EventStore) GetByPosition(_ context.Context, position string) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.Position == position {
			result = append(result, e.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	return result, nil
}

// LastSeq returns the highest stored sequence number, 0 when empty.
func (s *EventStore) LastSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastSeq, nil
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)

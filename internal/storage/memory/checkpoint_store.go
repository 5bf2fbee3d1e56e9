package memory

import (
	"context"
	"sort"
	"sync"

	"weight-ledger/internal/checkpoint"
	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
// Each series is held as an append-only snapshot slice with binary-search
// point-in-time reads.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[domain.SeriesKey]*checkpoint.Series
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[domain.SeriesKey]*checkpoint.Series),
	}
}

// SetCurrent applies a batch of checkpoint writes atomically.
func (s *CheckpointStore) SetCurrent(_ context.Context, writes []*domain.CheckpointWrite) error {
	if len(writes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate every write so a rejected batch applies nothing.
	// Tracks the pending tail per key for batches touching a key twice.
	pendingTail := make(map[domain.SeriesKey]int64, len(writes))
	for _, w := range writes {
		if w == nil || !w.Key.Scope.IsValid() {
			return storage.ErrInvalidInput
		}
		tail, tracked := pendingTail[w.Key]
		if !tracked {
			if series, exists := s.data[w.Key]; exists {
				if snap, ok := series.LatestSnapshot(); ok {
					tail, tracked = snap.Timestamp, true
				}
			}
		}
		if tracked && w.Timestamp < tail {
			return storage.ErrInvalidInput
		}
		pendingTail[w.Key] = w.Timestamp
	}

	// Second pass: apply all.
	for _, w := range writes {
		series, exists := s.data[w.Key]
		if !exists {
			series = &checkpoint.Series{}
			s.data[w.Key] = series
		}
		series.SetCurrent(w.Timestamp, w.Value)
	}

	return nil
}

// Latest returns the most recent value of a series, 0 when it has none.
func (s *CheckpointStore) Latest(_ context.Context, key domain.SeriesKey) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, exists := s.data[key]
	if !exists {
		return 0, nil
	}
	return series.Latest(), nil
}

// ValueAt returns the series value in effect at time t.
func (s *CheckpointStore) ValueAt(_ context.Context, key domain.SeriesKey, t int64) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, exists := s.data[key]
	if !exists {
		return 0, nil
	}
	return series.ValueAt(t), nil
}

// History retrieves all snapshots of a series, ordered by timestamp ASC.
func (s *CheckpointStore) History(_ context.Context, key domain.SeriesKey) ([]*domain.CheckpointWrite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, exists := s.data[key]
	if !exists {
		return nil, nil
	}

	result := make([]*domain.CheckpointWrite, 0, series.Len())
	for _, snap := range series.Snapshots() {
		result = append(result, &domain.CheckpointWrite{
			Key:       key,
			Timestamp: snap.Timestamp,
			Value:     snap.Value,
		})
	}
	return result, nil
}

// ListKeys returns every series key that has at least one snapshot.
func (s *CheckpointStore) ListKeys(_ context.Context) ([]domain.SeriesKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SeriesKey, 0, len(s.data))
	for key, series := range s.data {
		if series.Len() > 0 {
			result = append(result, key)
		}
	}

	// Deterministic order for callers that iterate.
	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

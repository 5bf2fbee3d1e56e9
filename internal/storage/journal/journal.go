// Package journal persists the audit event stream in a write-ahead log so
// ledger state can be rebuilt after a crash or store loss. The WAL index of
// an entry is the event's sequence number.
package journal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vadiminshakov/gowal"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

const (
	// DefaultDir is where the event WAL lives unless configured otherwise.
	DefaultDir = "./wal/events"

	segmentThreshold = 10000
	maxSegments      = 1000
)

// Journal is a WAL-backed append-only event log.
type Journal struct {
	mu  sync.Mutex
	wal *gowal.Wal
}

// New opens (or creates) the event journal in dir.
func New(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "event_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, fmt.Errorf("init event journal: %w", err)
	}

	return &Journal{wal: wal}, nil
}

// Append writes one event. Sequence numbers must increase; a stale or reused
// seq returns ErrDuplicateKey.
func (j *Journal) Append(e *domain.Event) error {
	if e == nil || e.Seq == 0 || e.Type == "" {
		return storage.ErrInvalidInput
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if e.Seq <= j.wal.CurrentIndex() {
		return storage.ErrDuplicateKey
	}

	if err := j.wal.Write(e.Seq, string(e.Type), payload); err != nil {
		return fmt.Errorf("write event %d: %w", e.Seq, err)
	}
	return nil
}

// Replay invokes fn for every journaled event in sequence order. Indices
// dropped by segment rotation are skipped. A non-nil error from fn stops the
// replay and is returned.
func (j *Journal) Replay(fn func(*domain.Event) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	current := j.wal.CurrentIndex()
	for idx := uint64(1); idx <= current; idx++ {
		_, payload, err := j.wal.Get(idx)
		if err != nil {
			// rotated away or never written
			continue
		}

		var e domain.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return fmt.Errorf("decode event %d: %w", idx, err)
		}

		if err := fn(&e); err != nil {
			return err
		}
	}

	return nil
}

// CurrentSeq returns the sequence number of the newest journaled event, 0
// when the journal is empty.
func (j *Journal) CurrentSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}

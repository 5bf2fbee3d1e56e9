// Package audit assigns sequence numbers to ledger events and fans them
// out to the event store, the WAL journal, logs, metrics and live sinks.
package audit

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/observability"
	"weight-ledger/internal/storage"
)

// Sink receives every emitted event after it is durably recorded.
// Publish must not block; slow consumers drop rather than stall emits.
type Sink interface {
	Publish(e *domain.Event)
}

// Journal persists events in a write-ahead log keyed by sequence.
type Journal interface {
	Append(e *domain.Event) error
	CurrentSeq() uint64
}

// Emitter is the single writer of the audit event stream. Sequence
// numbers start after the highest already durable in the store or the
// journal, so restarts never reuse a sequence.
type Emitter struct {
	mu      sync.Mutex
	nextSeq uint64

	events  storage.EventStore
	journal Journal
	logger  *zap.Logger
	sinks   []Sink
}

// NewEmitter creates an emitter resuming after the highest recorded
// sequence. Both the event store and the journal are optional.
func NewEmitter(ctx context.Context, events storage.EventStore, jnl Journal, logger *zap.Logger, sinks ...Sink) (*Emitter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var last uint64
	if events != nil {
		seq, err := events.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("load last event seq: %w", err)
		}
		last = seq
	}
	if jnl != nil {
		if seq := jnl.CurrentSeq(); seq > last {
			last = seq
		}
	}

	return &Emitter{
		nextSeq: last + 1,
		events:  events,
		journal: jnl,
		logger:  logger,
		sinks:   sinks,
	}, nil
}

// Emit stamps e with the next sequence, persists it and fans it out.
// The sequence is consumed even when persistence fails, so a failed emit
// leaves a gap, never a reused sequence. The first persistence error is
// returned; sink delivery is fire-and-forget.
func (em *Emitter) Emit(ctx context.Context, e *domain.Event) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	e.Seq = em.nextSeq
	em.nextSeq++

	var firstErr error
	if em.events != nil {
		if err := em.events.Insert(ctx, e); err != nil {
			firstErr = fmt.Errorf("store event %d: %w", e.Seq, err)
		}
	}
	if em.journal != nil {
		if err := em.journal.Append(e); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("journal event %d: %w", e.Seq, err)
		}
	}
	if firstErr != nil {
		em.logger.Warn("event persistence failed",
			zap.Uint64("seq", e.Seq),
			zap.String("type", string(e.Type)),
			zap.Error(firstErr))
		return firstErr
	}

	observability.RecordEventEmitted(string(e.Type))
	em.logger.Info("event",
		zap.Uint64("seq", e.Seq),
		zap.String("type", string(e.Type)),
		zap.Int64("ts", e.Timestamp),
		zap.String("position", e.Position),
		zap.String("account", e.Account))

	for _, s := range em.sinks {
		s.Publish(e)
	}
	return nil
}

// NextSeq returns the sequence the next emitted event will receive.
func (em *Emitter) NextSeq() uint64 {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.nextSeq
}

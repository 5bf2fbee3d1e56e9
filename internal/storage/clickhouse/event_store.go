package clickhouse

import (
	"context"
	"fmt"

	"weight-ledger/internal/domain"
	"weight-ledger/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// MergeTree does not enforce uniqueness, so seq duplicates are rejected with
// an explicit existence check before insert.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Insert adds one event. Returns ErrDuplicateKey if seq exists.
func (s *EventStore) Insert(ctx context.Context, e *domain.Event) error {
	if e == nil || e.Seq == 0 || e.Type == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, e.Seq)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			seq, type, ts, position, account, currency, payout_index, issued_at,
			indices, amount, weight, ratio_bps, periods, killed, amount_per_unit
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	indices := e.Indices
	if indices == nil {
		indices = []uint64{}
	}
	var killed uint8
	if e.Killed {
		killed = 1
	}

	err = batch.Append(
		e.Seq, string(e.Type), e.Timestamp, e.Position, e.Account, e.Currency,
		e.PayoutIndex, e.IssuedAt, indices, e.Amount, e.Weight, e.RatioBps,
		e.Periods, killed, e.AmountPerUnit,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by
// seq ASC.
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Event, error) {
	query := `
		SELECT seq, type, ts, position, account, currency, payout_index, issued_at,
		       indices, amount, weight, ratio_bps, periods, killed, amount_per_unit
		FROM ledger_events
		WHERE ts >= ? AND ts <= ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByPosition retrieves all events for a position, ordered by seq ASC.
func (s *EventStore) GetByPosition(ctx context.Context, position string) ([]*domain.Event, error) {
	query := `
		SELECT seq, type, ts, position, account, currency, payout_index, issued_at,
		       indices, amount, weight, ratio_bps, periods, killed, amount_per_unit
		FROM ledger_events
		WHERE position = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, position)
	if err != nil {
		return nil, fmt.Errorf("query by position: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LastSeq returns the highest stored sequence number, 0 when empty.
func (s *EventStore) LastSeq(ctx context.Context) (uint64, error) {
	var last uint64
	err := s.conn.QueryRow(ctx, `
		SELECT max(seq) FROM ledger_events
	`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return last, nil
}

// exists checks if an event with the given seq exists.
func (s *EventStore) exists(ctx context.Context, seq uint64) (bool, error) {
	query := `
		SELECT count(*) FROM ledger_events
		WHERE seq = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, seq).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanEvents scans multiple rows into a slice of Event.
func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var (
			e         domain.Event
			eventType string
			killed    uint8
		)

		err := rows.Scan(
			&e.Seq, &eventType, &e.Timestamp, &e.Position, &e.Account,
			&e.Currency, &e.PayoutIndex, &e.IssuedAt, &e.Indices, &e.Amount,
			&e.Weight, &e.RatioBps, &e.Periods, &killed, &e.AmountPerUnit,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Type = domain.EventType(eventType)
		e.Killed = killed != 0
		if len(e.Indices) == 0 {
			e.Indices = nil
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

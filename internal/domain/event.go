package domain

// EventType identifies one kind of ledger state transition.
type EventType string

const (
	EventPositionWrapped     EventType = "position_wrapped"
	EventPositionUnwrapped   EventType = "position_unwrapped"
	EventVoteCast            EventType = "vote_cast"
	EventDividendDistributed EventType = "dividend_distributed"
	EventDividendsClaimed    EventType = "dividends_claimed"
	EventEpochCheckpointed   EventType = "epoch_checkpointed"
	EventKillSwitchSet       EventType = "kill_switch_set"
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}

// Event is one audit-log entry. Exactly one event is recorded per state
// transition; together the sequence is sufficient to rebuild ledger state by
// replay. Fields not used by a given type stay at their zero values;
// PayoutIndex is -1 when not applicable. Corresponds to ledger_events table
// in ClickHouse; the same JSON form is appended to the WAL journal.
type Event struct {
	Seq           uint64    `json:"seq"`      // monotonically increasing per ledger instance
	Type          EventType `json:"type"`     // state transition kind
	Timestamp     int64     `json:"ts"`       // Unix timestamp in seconds
	Position      string    `json:"position,omitempty"`
	Account       string    `json:"account,omitempty"` // voter, owner, claimant or controller
	Currency      string    `json:"currency,omitempty"`
	PayoutIndex   int64     `json:"payout_index"`
	IssuedAt      int64     `json:"issued_at,omitempty"` // payout boundary fixing the weight snapshot
	Indices       []uint64  `json:"indices,omitempty"`   // claimed payout indices
	Amount        uint64    `json:"amount,omitempty"`
	Weight        uint64    `json:"weight,omitempty"`
	RatioBps      uint32    `json:"ratio_bps,omitempty"`
	Periods       uint32    `json:"periods,omitempty"` // intervals advanced by a checkpoint
	Killed        bool      `json:"killed,omitempty"`
	AmountPerUnit string    `json:"amount_per_unit,omitempty"` // 1e18-scaled decimal string
}

// Clone returns a deep copy with its own Indices slice.
func (e *Event) Clone() *Event {
	cp := *e
	if e.Indices != nil {
		cp.Indices = append([]uint64(nil), e.Indices...)
	}
	return &cp
}

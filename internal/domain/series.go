package domain

import "fmt"

// SeriesScope identifies which kind of checkpoint series a key addresses.
type SeriesScope string

const (
	// ScopeParticipant is one participant's weight within one position.
	ScopeParticipant SeriesScope = "participant"
	// ScopePosition is a position's weight sum over all its participants.
	ScopePosition SeriesScope = "position"
	// ScopeGlobal is the single series summing all position weight sums.
	ScopeGlobal SeriesScope = "global"
)

// IsValid checks if the scope is a valid value.
func (s SeriesScope) IsValid() bool {
	return s == ScopeParticipant || s == ScopePosition || s == ScopeGlobal
}

// SeriesKey addresses one checkpoint series. Position is empty for the
// global scope; Participant is set only for the participant scope.
type SeriesKey struct {
	Scope       SeriesScope
	Position    string // position id, empty for global
	Participant string // participant account, participant scope only
}

// String returns a stable textual form, used for map keys and logs.
func (k SeriesKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Scope, k.Position, k.Participant)
}

// ParticipantSeries returns the key of a participant's weight series.
func ParticipantSeries(position, participant string) SeriesKey {
	return SeriesKey{Scope: ScopeParticipant, Position: position, Participant: participant}
}

// PositionSeries returns the key of a position's weight-sum series.
func PositionSeries(position string) SeriesKey {
	return SeriesKey{Scope: ScopePosition, Position: position}
}

// GlobalSeries returns the key of the global weight-sum series.
func GlobalSeries() SeriesKey {
	return SeriesKey{Scope: ScopeGlobal}
}

// CheckpointWrite is one series write within a logical update. Writes grouped
// in a batch are applied atomically by the checkpoint store.
type CheckpointWrite struct {
	Key       SeriesKey
	Timestamp int64  // Unix timestamp in seconds
	Value     uint64 // new current value for the series
}

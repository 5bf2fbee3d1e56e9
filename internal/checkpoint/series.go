// Package checkpoint implements an append-only, time-ordered value history
// with point-in-time lookup. A series holds at most one snapshot per distinct
// timestamp: writing at the tail timestamp overwrites the tail value in place,
// writing at a later timestamp appends. This bounds growth to one entry per
// distinct update time rather than one per call.
package checkpoint

import "sort"

// Snapshot is one entry of a series: a value and the time it took effect.
type Snapshot struct {
	Timestamp int64  // Unix timestamp in seconds
	Value     uint64 // value in effect from Timestamp onward
}

// Series is a checkpointed value history for a single key.
// Timestamps are strictly increasing across entries; callers are expected to
// supply non-decreasing timestamps (a monotonic clock).
//
// The zero value is an empty series ready for use.
type Series struct {
	snaps []Snapshot
}

// SetCurrent records value v as of time ts. If the series is empty or its
// tail is strictly older than ts, a new snapshot is appended; otherwise the
// tail value is overwritten in place.
func (s *Series) SetCurrent(ts int64, v uint64) {
	n := len(s.snaps)
	if n == 0 || s.snaps[n-1].Timestamp < ts {
		s.snaps = append(s.snaps, Snapshot{Timestamp: ts, Value: v})
		return
	}
	s.snaps[n-1].Value = v
}

// Latest returns the tail value, or 0 if the series is empty.
func (s *Series) Latest() uint64 {
	if len(s.snaps) == 0 {
		return 0
	}
	return s.snaps[len(s.snaps)-1].Value
}

// LatestSnapshot returns the tail snapshot and true, or a zero snapshot and
// false if the series is empty.
func (s *Series) LatestSnapshot() (Snapshot, bool) {
	if len(s.snaps) == 0 {
		return Snapshot{}, false
	}
	return s.snaps[len(s.snaps)-1], true
}

// ValueAt returns the value in effect at time t: the value of the snapshot
// with the greatest timestamp <= t. Returns 0 if the series is empty or t
// precedes the first snapshot. Reads at or after the tail timestamp return
// the tail value without searching.
func (s *Series) ValueAt(t int64) uint64 {
	n := len(s.snaps)
	if n == 0 || t < s.snaps[0].Timestamp {
		return 0
	}
	if t >= s.snaps[n-1].Timestamp {
		return s.snaps[n-1].Value
	}
	// First index whose timestamp exceeds t; the predecessor is the answer.
	i := sort.Search(n, func(i int) bool {
		return s.snaps[i].Timestamp > t
	})
	return s.snaps[i-1].Value
}

// Len returns the number of snapshots in the series.
func (s *Series) Len() int {
	return len(s.snaps)
}

// Snapshots returns a copy of all snapshots in timestamp order.
func (s *Series) Snapshots() []Snapshot {
	if len(s.snaps) == 0 {
		return nil
	}
	return append([]Snapshot(nil), s.snaps...)
}

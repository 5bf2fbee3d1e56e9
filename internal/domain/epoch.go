package domain

// EpochState is the resumable state of the period checkpointer. Stored as a
// single row; every successful checkpoint call persists the advanced state.
type EpochState struct {
	LastCheckpoint int64  // latest fully processed interval boundary, Unix seconds
	EmissionRate   uint64 // cached emission rate, units per second
	NextRateEpoch  int64  // boundary after which the cached rate must be refreshed
	Killed         bool   // true once the kill switch forced the rate to zero
	UpdatedAt      int64  // Unix timestamp of the last state write
}

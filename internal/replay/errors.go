package replay

import "errors"

var (
	// ErrOutOfOrder is returned when an event's sequence number does not
	// increase over the previously applied one.
	ErrOutOfOrder = errors.New("event sequence not increasing")

	// ErrDiverged is returned when a replayed event does not reproduce the
	// amounts the log recorded.
	ErrDiverged = errors.New("replayed state diverges from event log")
)

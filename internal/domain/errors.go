package domain

import "errors"

// Domain rule violations. Storage-level failures (missing records, duplicate
// inserts) use the sentinels in internal/storage instead.
var (
	// ErrInvalidRatio is returned when a dividend ratio exceeds 10000 bps.
	ErrInvalidRatio = errors.New("dividend ratio exceeds 10000 basis points")

	// ErrUnauthorized is returned when an account is not permitted to act
	// on a position: settling with a non-owner, or claiming for another
	// account's payouts.
	ErrUnauthorized = errors.New("account not authorized for position")

	// ErrAlreadyClaimed is returned when a claim batch names a payout index
	// the claimant has already claimed. The whole batch is rejected.
	ErrAlreadyClaimed = errors.New("payout already claimed")

	// ErrPositionInactive is returned when an operation requires a wrapped
	// position but the position has been unwrapped.
	ErrPositionInactive = errors.New("position is not active")

	// ErrValueRange is returned when a weight or amount cannot be stored
	// without loss, e.g. exceeds the signed 64-bit range of the backend.
	ErrValueRange = errors.New("value out of storable range")
)

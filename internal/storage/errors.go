package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record with a
	// key that already exists. Payouts, claims and events are append-only and
	// never allow updates.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails, e.g. a
	// checkpoint write whose timestamp regresses or a value the backend
	// cannot store without loss.
	ErrInvalidInput = errors.New("invalid input")
)

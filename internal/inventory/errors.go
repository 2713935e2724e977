package inventory

import "errors"

var (
	// ErrNotFound is returned when a good or aggregate does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when a sale asks for more than is held.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrValidation is returned when a payload fails validation.
	ErrValidation = errors.New("validation failed")

	// ErrMalformedInput is returned when a payload cannot be decoded.
	ErrMalformedInput = errors.New("malformed input")

	// ErrConflict is returned by a Store when a transaction lost a race with a
	// concurrent one (unique violation or serialisation failure). The Ledger
	// retries once on it.
	ErrConflict = errors.New("transaction conflict")

	errReadOnly = errors.New("write in read-only transaction")
)

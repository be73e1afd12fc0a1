package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrStatusConflict means the booking changed status between read and write.
	ErrStatusConflict = errors.New("booking status changed concurrently")

	// ErrDuplicate means a live booking already references the slot or purchase.
	ErrDuplicate = errors.New("booking already exists")
)

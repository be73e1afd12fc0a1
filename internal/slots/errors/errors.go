package errors

import "errors"

var (
	ErrNotFound = errors.New("slot not found")

	ErrInvalidID = errors.New("invalid slot ID format")

	// ErrUnavailable is returned when a conditional update found the slot
	// closed, expired or without free capacity.
	ErrUnavailable = errors.New("slot no longer available")

	ErrHoldNotFound = errors.New("hold not found or expired")
)

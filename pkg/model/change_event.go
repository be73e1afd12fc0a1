package model

import "time"

type ChangeType string

const (
	ChangeSlotCreated     ChangeType = "slot_created"
	ChangeSlotUpdated     ChangeType = "slot_updated"
	ChangeSlotExpired     ChangeType = "slot_expired"
	ChangeHoldAcquired    ChangeType = "hold_acquired"
	ChangeHoldReleased    ChangeType = "hold_released"
	ChangeBookingCreated  ChangeType = "booking_created"
	ChangeBookingReviewed ChangeType = "booking_reviewed"
)

// ChangeEvent notifies subscribers that slot availability may have changed.
// Consumers re-query instead of patching state from the event.
type ChangeEvent struct {
	EventID    string     `json:"event_id"`
	Type       ChangeType `json:"type"`
	Kind       SlotKind   `json:"kind"`
	SlotID     string     `json:"slot_id,omitempty"`
	BookingID  string     `json:"booking_id,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

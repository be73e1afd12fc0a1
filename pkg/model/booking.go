package model

import (
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingPending             BookingStatus = "pending"
	BookingConfirmed           BookingStatus = "confirmed"
	BookingRejected            BookingStatus = "rejected"
	BookingRescheduleRequested BookingStatus = "reschedule_requested"
)

const MaxAdminMessageLength = 500

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:             {BookingConfirmed, BookingRejected, BookingRescheduleRequested},
	BookingRescheduleRequested: {BookingPending, BookingConfirmed, BookingRejected},
	BookingConfirmed:           {BookingRescheduleRequested, BookingRejected},
	BookingRejected:            {},
}

// ParseBookingStatus accepts the canonical values plus "booked" as an alias
// for confirmed.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch v := BookingStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case BookingPending, BookingConfirmed, BookingRejected, BookingRescheduleRequested:
		return v, true
	case "booked":
		return BookingConfirmed, true
	default:
		return "", false
	}
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsCapacity reports whether a booking in this status still occupies its
// slot.
func (s BookingStatus) HoldsCapacity() bool {
	return s != BookingRejected
}

type GuestContact struct {
	Name  string `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Email string `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty" validate:"omitempty,e164"`
}

// Booking is an appointment or call booking, or a voucher purchase.
type Booking struct {
	ID              string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Kind            SlotKind      `json:"kind" bson:"kind" validate:"required,oneof=appointment voucher call"`
	SlotID          string        `json:"slot_id" bson:"slot_id" validate:"required,mongodb"`
	HoldID          string        `json:"hold_id,omitempty" bson:"hold_id,omitempty"`
	UserID          string        `json:"user_id,omitempty" bson:"user_id,omitempty" validate:"required_without=Guest"`
	Guest           *GuestContact `json:"guest,omitempty" bson:"guest,omitempty" validate:"omitempty"`
	Status          BookingStatus `json:"status" bson:"status" validate:"required,oneof=pending confirmed rejected reschedule_requested"`
	AdminMessage    string        `json:"admin_message,omitempty" bson:"admin_message,omitempty" validate:"max=500"`
	PaymentID       string        `json:"payment_id,omitempty" bson:"payment_id,omitempty" validate:"omitempty,max=200"`
	PaymentProofURL string        `json:"payment_proof_url,omitempty" bson:"payment_proof_url,omitempty" validate:"omitempty,url"`
	Price           Price         `json:"price" bson:"price"`
	Currency        string        `json:"currency" bson:"currency"`
	SlotDate        string        `json:"slot_date" bson:"slot_date"`
	SlotStartTime   string        `json:"slot_start_time" bson:"slot_start_time"`
	SlotEndTime     string        `json:"slot_end_time" bson:"slot_end_time"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" bson:"updated_at"`
}

func (b *Booking) Paid() bool {
	return b.PaymentID != ""
}

// ConfirmRequest commits a hold into a booking.
type ConfirmRequest struct {
	PaymentID       string        `json:"payment_id,omitempty" validate:"omitempty,max=200"`
	PaymentProofURL string        `json:"payment_proof_url,omitempty" validate:"omitempty,url"`
	Guest           *GuestContact `json:"guest,omitempty" validate:"omitempty"`
}

// Review is an admin status change. Status may be empty to only update the
// message.
type Review struct {
	Status       string  `json:"status,omitempty"`
	AdminMessage *string `json:"admin_message,omitempty" validate:"omitempty,max=500"`
}

type BookingQuery struct {
	Kind   SlotKind
	UserID string
	SlotID string
	Status BookingStatus
	Limit  int
	Offset int64
}

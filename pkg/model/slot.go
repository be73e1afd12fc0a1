package model

import (
	"fmt"
	"time"
)

type SlotKind string

const (
	KindAppointment SlotKind = "appointment"
	KindVoucher     SlotKind = "voucher"
	KindCall        SlotKind = "call"
)

var SlotKinds = []SlotKind{KindAppointment, KindVoucher, KindCall}

func ParseSlotKind(s string) (SlotKind, error) {
	switch k := SlotKind(s); k {
	case KindAppointment, KindVoucher, KindCall:
		return k, nil
	default:
		return "", fmt.Errorf("unknown slot kind %q", s)
	}
}

// DefaultCurrency is the currency fees of this kind are quoted in.
func (k SlotKind) DefaultCurrency() string {
	if k == KindVoucher {
		return CurrencyUSD
	}
	return CurrencyPKR
}

// AllowsMultiCapacity reports whether a slot of this kind may be sold more
// than once.
func (k SlotKind) AllowsMultiCapacity() bool {
	return k == KindVoucher
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type SlotStatus string

const (
	StatusAvailable SlotStatus = "available"
	StatusSoon      SlotStatus = "soon"
	StatusUrgent    SlotStatus = "urgent"
	StatusExpired   SlotStatus = "expired"
)

// Slot is one bookable unit of capacity. Appointment and call slots use
// Location; voucher slots use Authority and Date is the exam date.
type Slot struct {
	ID                  string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Kind                SlotKind   `json:"kind" bson:"kind" validate:"required,oneof=appointment voucher call"`
	Date                string     `json:"date" bson:"date" validate:"required,datetime=2006-01-02"`
	StartTime           string     `json:"start_time" bson:"start_time" validate:"required,datetime=15:04"`
	EndTime             string     `json:"end_time" bson:"end_time" validate:"required,datetime=15:04"`
	Location            string     `json:"location,omitempty" bson:"location,omitempty" validate:"omitempty,min=2,max=100"`
	Authority           string     `json:"authority,omitempty" bson:"authority,omitempty" validate:"omitempty,min=2,max=100"`
	Price               Price      `json:"price" bson:"price"`
	Currency            string     `json:"currency" bson:"currency" validate:"omitempty,oneof=PKR USD"`
	IsAvailable         bool       `json:"is_available" bson:"is_available"`
	CurrentBookings     int        `json:"current_bookings" bson:"current_bookings" validate:"min=0"`
	MaxCapacity         int        `json:"max_capacity" bson:"max_capacity" validate:"min=0,max=500"`
	BookingTimerMinutes *int       `json:"booking_timer_minutes,omitempty" bson:"booking_timer_minutes,omitempty" validate:"omitempty,min=1,max=120"`
	SlotExpiresAt       *time.Time `json:"slot_expires_at,omitempty" bson:"slot_expires_at,omitempty"`
	EndsAt              time.Time  `json:"ends_at" bson:"ends_at"`
	Holds               []Hold     `json:"-" bson:"holds"`
	Version             int64      `json:"version" bson:"version"`
	CreatedAt           time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" bson:"updated_at"`
}

// Capacity is MaxCapacity with the single-booking default applied.
func (s *Slot) Capacity() int {
	if s.MaxCapacity <= 0 {
		return 1
	}
	return s.MaxCapacity
}

func (s *Slot) ActiveHolds(now time.Time) []Hold {
	var active []Hold
	for _, h := range s.Holds {
		if h.Active(now) {
			active = append(active, h)
		}
	}
	return active
}

// HoldFor returns the holder's active hold on this slot, if any.
func (s *Slot) HoldFor(holderID string, now time.Time) (Hold, bool) {
	for _, h := range s.Holds {
		if h.HolderID == holderID && h.Active(now) {
			return h, true
		}
	}
	return Hold{}, false
}

func (s *Slot) HoldByID(holdID string) (Hold, bool) {
	for _, h := range s.Holds {
		if h.ID == holdID {
			return h, true
		}
	}
	return Hold{}, false
}

// HoldDuration is the lease length for holds on this slot.
func (s *Slot) HoldDuration(fallback time.Duration) time.Duration {
	if s.BookingTimerMinutes != nil && *s.BookingTimerMinutes > 0 {
		return time.Duration(*s.BookingTimerMinutes) * time.Minute
	}
	return fallback
}

// SlotView is a slot annotated for display at a given instant.
type SlotView struct {
	Slot
	Status            SlotStatus `json:"status"`
	SecondsRemaining  int64      `json:"seconds_remaining"`
	CapacityRemaining int        `json:"capacity_remaining"`
	Bookable          bool       `json:"bookable"`
}

type SlotFilter struct {
	Kind      SlotKind `json:"kind"`
	Location  string   `json:"location,omitempty"`
	Authority string   `json:"authority,omitempty"`
	DateFrom  string   `json:"date_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo    string   `json:"date_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Limit     int      `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}

// SlotCreate is the admin inventory payload.
type SlotCreate struct {
	Date                string     `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime           string     `json:"start_time" validate:"required,datetime=15:04"`
	EndTime             string     `json:"end_time" validate:"required,datetime=15:04"`
	Location            string     `json:"location,omitempty" validate:"omitempty,min=2,max=100"`
	Authority           string     `json:"authority,omitempty" validate:"omitempty,min=2,max=100"`
	Price               string     `json:"price" validate:"required"`
	Currency            string     `json:"currency,omitempty" validate:"omitempty,oneof=PKR USD"`
	MaxCapacity         int        `json:"max_capacity,omitempty" validate:"omitempty,min=1,max=500"`
	BookingTimerMinutes *int       `json:"booking_timer_minutes,omitempty" validate:"omitempty,min=1,max=120"`
	SlotExpiresAt       *time.Time `json:"slot_expires_at,omitempty"`
}

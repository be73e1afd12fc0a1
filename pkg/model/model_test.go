package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestParseSlotKind(t *testing.T) {
	for _, k := range SlotKinds {
		got, err := ParseSlotKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseSlotKind("lesson")
	assert.Error(t, err)
}

func TestSlotKind_Defaults(t *testing.T) {
	assert.Equal(t, CurrencyPKR, KindAppointment.DefaultCurrency())
	assert.Equal(t, CurrencyPKR, KindCall.DefaultCurrency())
	assert.Equal(t, CurrencyUSD, KindVoucher.DefaultCurrency())
	assert.True(t, KindVoucher.AllowsMultiCapacity())
	assert.False(t, KindAppointment.AllowsMultiCapacity())
}

func TestSlot_HoldsAndCapacity(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	slot := Slot{
		Holds: []Hold{
			{ID: "h1", HolderID: "u1", ExpiresAt: now.Add(time.Minute)},
			{ID: "h2", HolderID: "u2", ExpiresAt: now.Add(-time.Second)},
		},
	}

	assert.Equal(t, 1, slot.Capacity())
	assert.Len(t, slot.ActiveHolds(now), 1)

	h, ok := slot.HoldFor("u1", now)
	require.True(t, ok)
	assert.Equal(t, "h1", h.ID)

	_, ok = slot.HoldFor("u2", now)
	assert.False(t, ok, "expired hold must not be returned")

	_, ok = slot.HoldByID("h2")
	assert.True(t, ok)
}

func TestSlot_HoldDuration(t *testing.T) {
	minutes := 3
	slot := Slot{BookingTimerMinutes: &minutes}
	assert.Equal(t, 3*time.Minute, slot.HoldDuration(10*time.Minute))
	assert.Equal(t, 10*time.Minute, (&Slot{}).HoldDuration(10*time.Minute))
}

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		allowed  bool
	}{
		{BookingPending, BookingConfirmed, true},
		{BookingPending, BookingRescheduleRequested, true},
		{BookingRescheduleRequested, BookingPending, true},
		{BookingConfirmed, BookingPending, false},
		{BookingRejected, BookingConfirmed, false},
		{BookingRejected, BookingRejected, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParseBookingStatus_BookedAlias(t *testing.T) {
	s, ok := ParseBookingStatus("Booked")
	require.True(t, ok)
	assert.Equal(t, BookingConfirmed, s)

	_, ok = ParseBookingStatus("cancelled")
	assert.False(t, ok)
}

func TestExamBookingStatus_Transitions(t *testing.T) {
	assert.True(t, ExamSubmitted.CanTransitionTo(ExamApproved))
	assert.True(t, ExamPassIssued.CanTransitionTo(ExamCancelled))
	assert.False(t, ExamSubmitted.CanTransitionTo(ExamCompleted))
	assert.False(t, ExamCancelled.CanTransitionTo(ExamSubmitted))
	assert.True(t, ExamCompleted.Terminal())

	_, ok := ParseExamBookingStatus("rejected")
	assert.False(t, ok)
}

func TestPrice_BSONRoundTrip(t *testing.T) {
	type doc struct {
		Price Price `bson:"price"`
	}

	data, err := bson.Marshal(doc{Price: MustPrice("4500.50")})
	require.NoError(t, err)

	var raw bson.M
	require.NoError(t, bson.Unmarshal(data, &raw))
	assert.Equal(t, "4500.5", raw["price"], "price is stored as a decimal string")

	var out doc
	require.NoError(t, bson.Unmarshal(data, &out))
	assert.True(t, out.Price.Equal(MustPrice("4500.50").Decimal))
}

func TestPrice_DecodesLegacyNumbers(t *testing.T) {
	data, err := bson.Marshal(bson.M{"price": 150})
	require.NoError(t, err)

	var out struct {
		Price Price `bson:"price"`
	}
	require.NoError(t, bson.Unmarshal(data, &out))
	assert.Equal(t, "150", out.Price.String())
}

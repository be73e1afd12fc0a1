package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	bookingserrors "licensedesk/internal/bookings/errors"
	"licensedesk/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newBooking(kind model.SlotKind, slotID, userID string, created time.Time) *model.Booking {
	return &model.Booking{
		Kind:      kind,
		SlotID:    slotID,
		UserID:    userID,
		Status:    model.BookingPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryBooking_OneLiveBookingPerSingleSlot(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	slotID := primitive.NewObjectID().Hex()
	now := time.Now()

	first := newBooking(model.KindAppointment, slotID, "u1", now)
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, newBooking(model.KindAppointment, slotID, "u2", now))
	assert.True(t, errors.Is(err, bookingserrors.ErrDuplicate))

	_, err = repo.UpdateStatus(ctx, model.KindAppointment, first.ID, model.BookingPending, model.BookingRejected, nil, now)
	require.NoError(t, err)

	assert.NoError(t, repo.Create(ctx, newBooking(model.KindAppointment, slotID, "u2", now)),
		"a rejected booking frees the slot")
}

func TestMemoryBooking_VoucherAllowsMany(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	slotID := primitive.NewObjectID().Hex()

	for _, user := range []string{"u1", "u2", "u3"} {
		require.NoError(t, repo.Create(ctx, newBooking(model.KindVoucher, slotID, user, time.Now())))
	}

	count, err := repo.Count(ctx, model.BookingQuery{Kind: model.KindVoucher, SlotID: slotID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestMemoryBooking_FindNewestFirstWithPaging(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		b := newBooking(model.KindCall, primitive.NewObjectID().Hex(), "u1", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, b))
	}
	require.NoError(t, repo.Create(ctx, newBooking(model.KindCall, primitive.NewObjectID().Hex(), "someone-else", base)))

	got, err := repo.Find(ctx, model.BookingQuery{Kind: model.KindCall, UserID: "u1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base.Add(3*time.Minute), got[0].CreatedAt)
	assert.Equal(t, base.Add(2*time.Minute), got[1].CreatedAt)
}

func TestMemoryBooking_UpdateStatusCompareAndSet(t *testing.T) {
	repo := NewMemoryBookingRepository()
	ctx := context.Background()
	b := newBooking(model.KindAppointment, primitive.NewObjectID().Hex(), "u1", time.Now())
	require.NoError(t, repo.Create(ctx, b))

	msg := "See you at the office"
	updated, err := repo.UpdateStatus(ctx, model.KindAppointment, b.ID, model.BookingPending, model.BookingConfirmed, &msg, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, updated.Status)
	assert.Equal(t, msg, updated.AdminMessage)

	_, err = repo.UpdateStatus(ctx, model.KindAppointment, b.ID, model.BookingPending, model.BookingRejected, nil, time.Now())
	assert.True(t, errors.Is(err, bookingserrors.ErrStatusConflict))

	_, err = repo.UpdateStatus(ctx, model.KindCall, b.ID, model.BookingConfirmed, model.BookingRejected, nil, time.Now())
	assert.True(t, errors.Is(err, bookingserrors.ErrNotFound), "kind is part of the identity")

	_, err = repo.FindByID(ctx, model.KindAppointment, "nope")
	assert.True(t, errors.Is(err, bookingserrors.ErrInvalidID))
}

func TestMemoryExamBooking_OnePerPurchase(t *testing.T) {
	repo := NewMemoryExamBookingRepository()
	ctx := context.Background()
	purchaseID := primitive.NewObjectID().Hex()

	first := &model.ExamBooking{PurchaseID: purchaseID, UserID: "u1", Status: model.ExamSubmitted}
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, &model.ExamBooking{PurchaseID: purchaseID, UserID: "u1", Status: model.ExamSubmitted})
	assert.True(t, errors.Is(err, bookingserrors.ErrDuplicate))

	_, err = repo.UpdateStatus(ctx, first.ID, model.ExamSubmitted, model.ExamCancelled, nil, time.Now())
	require.NoError(t, err)
	assert.NoError(t, repo.Create(ctx, &model.ExamBooking{PurchaseID: purchaseID, UserID: "u1", Status: model.ExamSubmitted}))
}

//go:build integration

package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	slotserrors "licensedesk/internal/slots/errors"
	"licensedesk/internal/testutil"
	"licensedesk/pkg/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongo_HoldLifecycle(t *testing.T) {
	h := testutil.NewMongoHelper(t)
	repo := NewMongoSlotRepository(h.Config())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	slot := &model.Slot{
		Kind:        model.KindVoucher,
		Date:        now.Add(48 * time.Hour).Format(model.DateLayout),
		StartTime:   "09:00",
		EndTime:     "11:00",
		Price:       model.MustPrice("150"),
		Currency:    model.CurrencyUSD,
		IsAvailable: true,
		MaxCapacity: 2,
		EndsAt:      now.Add(48 * time.Hour),
		CreatedAt:   now,
	}
	require.NoError(t, repo.Create(ctx, slot))
	require.NotEmpty(t, slot.ID)

	h1 := model.Hold{ID: uuid.NewString(), SlotID: slot.ID, Kind: slot.Kind, HolderID: "u1", ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	held, err := repo.AcquireHold(ctx, slot.Kind, slot.ID, h1, now)
	require.NoError(t, err)
	require.Len(t, held.Holds, 1)

	_, err = repo.AcquireHold(ctx, slot.Kind, slot.ID, h1, now)
	assert.ErrorIs(t, err, slotserrors.ErrUnavailable, "holder already has an active hold")

	committed, err := repo.CommitHold(ctx, slot.Kind, slot.ID, h1.ID, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, committed.CurrentBookings)
	assert.True(t, committed.IsAvailable)
	assert.Empty(t, committed.Holds)
	assert.True(t, committed.Price.Equal(model.MustPrice("150").Decimal))

	_, err = repo.CommitHold(ctx, slot.Kind, slot.ID, h1.ID, "u1", now)
	assert.ErrorIs(t, err, slotserrors.ErrHoldNotFound)

	open, err := repo.FindOpen(ctx, model.SlotFilter{Kind: model.KindVoucher}, now)
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestMongo_ConcurrentHolds_SingleWinner(t *testing.T) {
	h := testutil.NewMongoHelper(t)
	repo := NewMongoSlotRepository(h.Config())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	slot := &model.Slot{
		Kind:        model.KindAppointment,
		Date:        now.Add(24 * time.Hour).Format(model.DateLayout),
		StartTime:   "09:00",
		EndTime:     "10:00",
		IsAvailable: true,
		MaxCapacity: 1,
		EndsAt:      now.Add(24 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, slot))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hold := model.Hold{ID: uuid.NewString(), HolderID: uuid.NewString(), ExpiresAt: now.Add(time.Minute)}
			if _, err := repo.AcquireHold(ctx, slot.Kind, slot.ID, hold, now); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestMongo_ExpireDue(t *testing.T) {
	h := testutil.NewMongoHelper(t)
	repo := NewMongoSlotRepository(h.Config())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	slot := &model.Slot{
		Kind:        model.KindCall,
		Date:        now.Format(model.DateLayout),
		StartTime:   "00:00",
		EndTime:     "00:01",
		IsAvailable: true,
		MaxCapacity: 1,
		EndsAt:      now.Add(-time.Second),
	}
	require.NoError(t, repo.Create(ctx, slot))

	expired, err := repo.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	reloaded, err := repo.FindByID(ctx, slot.Kind, slot.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsAvailable)
	assert.Equal(t, int64(1), reloaded.Version)
}

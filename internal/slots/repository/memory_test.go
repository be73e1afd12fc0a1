package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	slotserrors "licensedesk/internal/slots/errors"
	"licensedesk/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)

func newSlot(kind model.SlotKind, date, start string, capacity int) *model.Slot {
	return &model.Slot{
		Kind:        kind,
		Date:        date,
		StartTime:   start,
		EndTime:     "23:00",
		IsAvailable: true,
		MaxCapacity: capacity,
		EndsAt:      testNow.Add(72 * time.Hour),
	}
}

func hold(id, holder string, ttl time.Duration) model.Hold {
	return model.Hold{ID: id, HolderID: holder, ExpiresAt: testNow.Add(ttl), CreatedAt: testNow}
}

func TestMemory_FindOpen_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository(nil)

	later := newSlot(model.KindAppointment, "2025-06-02", "09:00", 1)
	earlier := newSlot(model.KindAppointment, "2025-06-01", "14:00", 1)
	earliest := newSlot(model.KindAppointment, "2025-06-01", "09:00", 1)
	closed := newSlot(model.KindAppointment, "2025-06-01", "08:00", 1)
	closed.IsAvailable = false
	expired := newSlot(model.KindAppointment, "2025-05-29", "08:00", 1)
	expired.EndsAt = testNow.Add(-time.Minute)
	voucher := newSlot(model.KindVoucher, "2025-06-01", "07:00", 5)

	for _, s := range []*model.Slot{later, earlier, earliest, closed, expired, voucher} {
		require.NoError(t, repo.Create(ctx, s))
	}

	got, err := repo.FindOpen(ctx, model.SlotFilter{Kind: model.KindAppointment}, testNow)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, earliest.ID, got[0].ID)
	assert.Equal(t, earlier.ID, got[1].ID)
	assert.Equal(t, later.ID, got[2].ID)

	got, err = repo.FindOpen(ctx, model.SlotFilter{Kind: model.KindAppointment, DateTo: "2025-06-01", Limit: 1}, testNow)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, earliest.ID, got[0].ID)
}

func TestMemory_AcquireHold_RespectsCapacity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository(nil)
	slot := newSlot(model.KindVoucher, "2025-06-01", "09:00", 2)
	require.NoError(t, repo.Create(ctx, slot))

	_, err := repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h1", "u1", time.Minute), testNow)
	require.NoError(t, err)

	_, err = repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h2", "u1", time.Minute), testNow)
	assert.ErrorIs(t, err, slotserrors.ErrUnavailable, "one active hold per holder")

	updated, err := repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h3", "u2", time.Minute), testNow)
	require.NoError(t, err)
	assert.Len(t, updated.Holds, 2)

	_, err = repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h4", "u3", time.Minute), testNow)
	assert.ErrorIs(t, err, slotserrors.ErrUnavailable)

	open, err := repo.FindOpen(ctx, model.SlotFilter{Kind: model.KindVoucher}, testNow)
	require.NoError(t, err)
	assert.Empty(t, open, "fully held slot is not listed")

	later := testNow.Add(2 * time.Minute)
	_, err = repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h5", "u3", 10*time.Minute), later)
	assert.NoError(t, err, "lapsed holds free capacity")
}

func TestMemory_AcquireHold_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository(nil)
	slot := newSlot(model.KindAppointment, "2025-06-01", "09:00", 1)
	require.NoError(t, repo.Create(ctx, slot))

	var wins, losses int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := hold(string(rune('a'+i)), string(rune('A'+i)), time.Minute)
			if _, err := repo.AcquireHold(ctx, slot.Kind, slot.ID, h, testNow); err != nil {
				atomic.AddInt32(&losses, 1)
				return
			}
			atomic.AddInt32(&wins, 1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(19), losses)
}

func TestMemory_CommitHold(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository(nil)
	slot := newSlot(model.KindAppointment, "2025-06-01", "09:00", 1)
	require.NoError(t, repo.Create(ctx, slot))

	_, err := repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h1", "u1", time.Minute), testNow)
	require.NoError(t, err)

	_, err = repo.CommitHold(ctx, slot.Kind, slot.ID, "h1", "someone-else", testNow)
	assert.ErrorIs(t, err, slotserrors.ErrHoldNotFound)

	committed, err := repo.CommitHold(ctx, slot.Kind, slot.ID, "h1", "u1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, committed.CurrentBookings)
	assert.False(t, committed.IsAvailable, "single capacity slot closes on commit")
	assert.Empty(t, committed.Holds)
	assert.Equal(t, int64(2), committed.Version)

	_, err = repo.CommitHold(ctx, slot.Kind, slot.ID, "h1", "u1", testNow)
	assert.ErrorIs(t, err, slotserrors.ErrHoldNotFound, "a hold commits once")
}

func TestMemory_CommitHold_ExpiredHold(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository(nil)
	slot := newSlot(model.KindAppointment, "2025-06-01", "09:00", 1)
	require.NoError(t, repo.Create(ctx, slot))

	_, err := repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h1", "u1", time.Minute), testNow)
	require.NoError(t, err)

	_, err = repo.CommitHold(ctx, slot.Kind, slot.ID, "h1", "u1", testNow.Add(time.Minute))
	assert.ErrorIs(t, err, slotserrors.ErrHoldNotFound)
}

func TestMemory_ReleaseHold(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository(nil)
	slot := newSlot(model.KindCall, "2025-06-01", "09:00", 1)
	require.NoError(t, repo.Create(ctx, slot))

	_, err := repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h1", "u1", time.Minute), testNow)
	require.NoError(t, err)

	assert.ErrorIs(t, repo.ReleaseHold(ctx, slot.Kind, slot.ID, "h1", "u2", testNow), slotserrors.ErrHoldNotFound)
	require.NoError(t, repo.ReleaseHold(ctx, slot.Kind, slot.ID, "h1", "u1", testNow))

	_, err = repo.AcquireHold(ctx, slot.Kind, slot.ID, hold("h2", "u2", time.Minute), testNow)
	assert.NoError(t, err)
}

func TestMemory_ExpireDueAndPrune(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository(nil)

	due := newSlot(model.KindAppointment, "2025-05-29", "09:00", 1)
	due.EndsAt = testNow
	open := newSlot(model.KindAppointment, "2025-06-01", "09:00", 1)
	require.NoError(t, repo.Create(ctx, due))
	require.NoError(t, repo.Create(ctx, open))

	expired, err := repo.ExpireDue(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, due.ID, expired[0].ID)
	assert.False(t, expired[0].IsAvailable)

	expired, err = repo.ExpireDue(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, expired, "expiry is applied once")

	_, err = repo.AcquireHold(ctx, open.Kind, open.ID, hold("h1", "u1", time.Minute), testNow)
	require.NoError(t, err)

	pruned, err := repo.PruneHolds(ctx, testNow.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, open.ID, pruned[0].ID)

	reloaded, err := repo.FindByID(ctx, open.Kind, open.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Holds)
}

func TestMemory_FindByID_KindMismatch(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySlotRepository(nil)
	slot := newSlot(model.KindVoucher, "2025-06-01", "09:00", 1)
	require.NoError(t, repo.Create(ctx, slot))

	_, err := repo.FindByID(ctx, model.KindAppointment, slot.ID)
	assert.ErrorIs(t, err, slotserrors.ErrNotFound)

	_, err = repo.FindByID(ctx, model.KindVoucher, "not-an-id")
	assert.ErrorIs(t, err, slotserrors.ErrInvalidID)
}

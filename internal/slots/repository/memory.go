package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	slotserrors "licensedesk/internal/slots/errors"
	mongotx "licensedesk/pkg/db/mongo"
	"licensedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memorySlotRepository applies the same conditions as the Mongo store under
// one mutex. It backs STORE_DRIVER=memory and the service tests.
type memorySlotRepository struct {
	mu        sync.Mutex
	slots     map[string]*model.Slot
	txManager mongotx.TransactionManager
}

func NewMemorySlotRepository(txManager mongotx.TransactionManager) SlotRepository {
	if txManager == nil {
		txManager = mongotx.NewMemoryTransactionManager()
	}
	return &memorySlotRepository{
		slots:     make(map[string]*model.Slot),
		txManager: txManager,
	}
}

func (r *memorySlotRepository) Create(_ context.Context, slot *model.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot.ID == "" {
		slot.ID = primitive.NewObjectID().Hex()
	}
	if slot.Holds == nil {
		slot.Holds = []model.Hold{}
	}
	r.slots[slot.ID] = cloneSlot(slot)
	return nil
}

func (r *memorySlotRepository) FindByID(_ context.Context, kind model.SlotKind, id string) (*model.Slot, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, slotserrors.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[id]
	if !ok || slot.Kind != kind {
		return nil, slotserrors.ErrNotFound
	}
	return cloneSlot(slot), nil
}

func (r *memorySlotRepository) FindOpen(_ context.Context, filter model.SlotFilter, now time.Time) ([]*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Slot
	for _, s := range r.slots {
		if s.Kind != filter.Kind || !isOpen(s, now) {
			continue
		}
		if filter.Location != "" && s.Location != filter.Location {
			continue
		}
		if filter.Authority != "" && s.Authority != filter.Authority {
			continue
		}
		if filter.DateFrom != "" && s.Date < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && s.Date > filter.DateTo {
			continue
		}
		out = append(out, cloneSlot(s))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memorySlotRepository) AcquireHold(_ context.Context, kind model.SlotKind, id string, hold model.Hold, now time.Time) (*model.Slot, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, slotserrors.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[id]
	if !ok || slot.Kind != kind || !isOpen(slot, now) {
		return nil, slotserrors.ErrUnavailable
	}
	if _, held := slot.HoldFor(hold.HolderID, now); held {
		return nil, slotserrors.ErrUnavailable
	}

	slot.Holds = append(slot.ActiveHolds(now), hold)
	slot.Version++
	slot.UpdatedAt = now
	return cloneSlot(slot), nil
}

func (r *memorySlotRepository) CommitHold(_ context.Context, kind model.SlotKind, id, holdID, holderID string, now time.Time) (*model.Slot, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, slotserrors.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[id]
	if !ok || slot.Kind != kind {
		return nil, slotserrors.ErrNotFound
	}
	h, ok := slot.HoldByID(holdID)
	if !ok || h.HolderID != holderID || !h.Active(now) {
		return nil, slotserrors.ErrHoldNotFound
	}
	if !slot.IsAvailable || !now.Before(slot.EndsAt) || slot.CurrentBookings >= slot.Capacity() {
		return nil, slotserrors.ErrUnavailable
	}

	remaining := make([]model.Hold, 0, len(slot.Holds))
	for _, other := range slot.ActiveHolds(now) {
		if other.ID != holdID {
			remaining = append(remaining, other)
		}
	}
	slot.Holds = remaining
	slot.CurrentBookings++
	slot.IsAvailable = slot.CurrentBookings < slot.Capacity()
	slot.Version++
	slot.UpdatedAt = now
	return cloneSlot(slot), nil
}

func (r *memorySlotRepository) ReleaseHold(_ context.Context, kind model.SlotKind, id, holdID, holderID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[id]
	if !ok || slot.Kind != kind {
		return slotserrors.ErrHoldNotFound
	}
	for i, h := range slot.Holds {
		if h.ID == holdID && h.HolderID == holderID {
			slot.Holds = append(slot.Holds[:i:i], slot.Holds[i+1:]...)
			slot.Version++
			slot.UpdatedAt = now
			return nil
		}
	}
	return slotserrors.ErrHoldNotFound
}

func (r *memorySlotRepository) ExpireDue(_ context.Context, now time.Time) ([]*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*model.Slot
	for _, s := range r.slots {
		if s.IsAvailable && !now.Before(s.EndsAt) {
			s.IsAvailable = false
			s.Version++
			s.UpdatedAt = now
			expired = append(expired, cloneSlot(s))
		}
	}
	return expired, nil
}

func (r *memorySlotRepository) PruneHolds(_ context.Context, now time.Time) ([]*model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned []*model.Slot
	for _, s := range r.slots {
		active := s.ActiveHolds(now)
		if len(active) == len(s.Holds) {
			continue
		}
		pruned = append(pruned, cloneSlot(s))
		s.Holds = active
		s.Version++
	}
	return pruned, nil
}

func (r *memorySlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func isOpen(s *model.Slot, now time.Time) bool {
	return s.IsAvailable &&
		now.Before(s.EndsAt) &&
		s.CurrentBookings+len(s.ActiveHolds(now)) < s.Capacity()
}

func cloneSlot(s *model.Slot) *model.Slot {
	c := *s
	c.Holds = append([]model.Hold{}, s.Holds...)
	if s.BookingTimerMinutes != nil {
		v := *s.BookingTimerMinutes
		c.BookingTimerMinutes = &v
	}
	if s.SlotExpiresAt != nil {
		v := *s.SlotExpiresAt
		c.SlotExpiresAt = &v
	}
	return &c
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	bookingserrors "licensedesk/internal/bookings/errors"
	"licensedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.Booking
}

// NewMemoryBookingRepository mirrors the Mongo repository, including the
// one-live-booking-per-slot rule for appointments and calls.
func NewMemoryBookingRepository() BookingRepository {
	return &memoryBookingRepository{bookings: make(map[string]*model.Booking)}
}

func (r *memoryBookingRepository) Create(_ context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !booking.Kind.AllowsMultiCapacity() {
		for _, b := range r.bookings {
			if b.Kind == booking.Kind && b.SlotID == booking.SlotID && b.Status.HoldsCapacity() {
				return fmt.Errorf("%w: slot %s", bookingserrors.ErrDuplicate, booking.SlotID)
			}
		}
	}

	if booking.ID == "" {
		booking.ID = primitive.NewObjectID().Hex()
	}
	stored := *booking
	r.bookings[booking.ID] = &stored
	return nil
}

func (r *memoryBookingRepository) FindByID(_ context.Context, kind model.SlotKind, id string) (*model.Booking, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok || b.Kind != kind {
		return nil, bookingserrors.ErrNotFound
	}
	found := *b
	return &found, nil
}

func (r *memoryBookingRepository) matching(query model.BookingQuery) []*model.Booking {
	var out []*model.Booking
	for _, b := range r.bookings {
		if b.Kind != query.Kind {
			continue
		}
		if query.UserID != "" && b.UserID != query.UserID {
			continue
		}
		if query.SlotID != "" && b.SlotID != query.SlotID {
			continue
		}
		if query.Status != "" && b.Status != query.Status {
			continue
		}
		found := *b
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memoryBookingRepository) Find(_ context.Context, query model.BookingQuery) ([]*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return page(r.matching(query), query.Limit, query.Offset), nil
}

func (r *memoryBookingRepository) Count(_ context.Context, query model.BookingQuery) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(query))), nil
}

func (r *memoryBookingRepository) UpdateStatus(_ context.Context, kind model.SlotKind, id string, expected, status model.BookingStatus, adminMessage *string, now time.Time) (*model.Booking, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok || b.Kind != kind {
		return nil, bookingserrors.ErrNotFound
	}
	if b.Status != expected {
		return nil, bookingserrors.ErrStatusConflict
	}

	b.Status = status
	if adminMessage != nil {
		b.AdminMessage = *adminMessage
	}
	b.UpdatedAt = now
	updated := *b
	return &updated, nil
}

type memoryExamBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*model.ExamBooking
}

func NewMemoryExamBookingRepository() ExamBookingRepository {
	return &memoryExamBookingRepository{bookings: make(map[string]*model.ExamBooking)}
}

func (r *memoryExamBookingRepository) Create(_ context.Context, booking *model.ExamBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.bookings {
		if b.PurchaseID == booking.PurchaseID && b.Status != model.ExamCancelled {
			return fmt.Errorf("%w: purchase %s", bookingserrors.ErrDuplicate, booking.PurchaseID)
		}
	}

	if booking.ID == "" {
		booking.ID = primitive.NewObjectID().Hex()
	}
	stored := *booking
	r.bookings[booking.ID] = &stored
	return nil
}

func (r *memoryExamBookingRepository) FindByID(_ context.Context, id string) (*model.ExamBooking, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	found := *b
	return &found, nil
}

func (r *memoryExamBookingRepository) matching(query model.ExamBookingQuery) []*model.ExamBooking {
	var out []*model.ExamBooking
	for _, b := range r.bookings {
		if query.UserID != "" && b.UserID != query.UserID {
			continue
		}
		if query.Status != "" && b.Status != query.Status {
			continue
		}
		found := *b
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memoryExamBookingRepository) Find(_ context.Context, query model.ExamBookingQuery) ([]*model.ExamBooking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return page(r.matching(query), query.Limit, query.Offset), nil
}

func (r *memoryExamBookingRepository) Count(_ context.Context, query model.ExamBookingQuery) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matching(query))), nil
}

func (r *memoryExamBookingRepository) UpdateStatus(_ context.Context, id string, expected, status model.ExamBookingStatus, adminMessage *string, now time.Time) (*model.ExamBooking, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	if b.Status != expected {
		return nil, bookingserrors.ErrStatusConflict
	}

	b.Status = status
	if adminMessage != nil {
		b.AdminMessage = *adminMessage
	}
	b.UpdatedAt = now
	updated := *b
	return &updated, nil
}

func page[T any](items []T, limit int, offset int64) []T {
	if offset >= int64(len(items)) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

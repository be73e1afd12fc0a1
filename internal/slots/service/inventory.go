package service

import (
	"context"
	"time"

	"licensedesk/internal/events"
	"licensedesk/internal/slots/availability"
	"licensedesk/internal/slots/repository"
	"licensedesk/internal/slots/validator"
	"licensedesk/pkg/config"
	apperrors "licensedesk/pkg/errors"
	"licensedesk/pkg/model"
	"licensedesk/pkg/sanitizer"
)

// InventoryService receives slots from the admin inventory process.
type InventoryService interface {
	Create(ctx context.Context, kind model.SlotKind, req *model.SlotCreate) (*model.Slot, error)
}

type inventoryService struct {
	repo      repository.SlotRepository
	validator *validator.SlotValidator
	evaluator *availability.Evaluator
	publisher events.Publisher
	cfg       *config.Config
	now       func() time.Time
}

func NewInventoryService(
	repo repository.SlotRepository,
	validator *validator.SlotValidator,
	evaluator *availability.Evaluator,
	publisher events.Publisher,
	cfg *config.Config,
) InventoryService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &inventoryService{
		repo:      repo,
		validator: validator,
		evaluator: evaluator,
		publisher: publisher,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *inventoryService) Create(ctx context.Context, kind model.SlotKind, req *model.SlotCreate) (*model.Slot, error) {
	sanitizer.SanitizeSlotCreate(req)

	price, err := model.NewPrice(req.Price)
	if err != nil {
		return nil, apperrors.Validation("Invalid slot", map[string]any{"price": err.Error()})
	}

	now := s.now()
	slot := &model.Slot{
		Kind:                kind,
		Date:                req.Date,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		Location:            req.Location,
		Authority:           req.Authority,
		Price:               price,
		Currency:            req.Currency,
		IsAvailable:         true,
		MaxCapacity:         req.MaxCapacity,
		BookingTimerMinutes: req.BookingTimerMinutes,
		SlotExpiresAt:       req.SlotExpiresAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.applyDefaults(slot)

	if err := s.validator.Validate(slot); err != nil {
		s.cfg.Log.Warn("Slot validation failed", "kind", kind, "error", err)
		return nil, apperrors.Validation("Invalid slot", map[string]any{"error": err.Error()})
	}

	end, err := s.evaluator.EffectiveEnd(slot)
	if err != nil {
		return nil, apperrors.Validation("Invalid slot", map[string]any{"error": err.Error()})
	}
	if !now.Before(end) {
		return nil, apperrors.Validation("Slot has already expired", map[string]any{"ends_at": end})
	}
	slot.EndsAt = end

	if err := s.repo.Create(ctx, slot); err != nil {
		s.cfg.Log.Error("Failed to create slot", "kind", kind, "date", slot.Date, "error", err)
		return nil, apperrors.Internal("Failed to create slot", err)
	}

	if err := s.publisher.Publish(ctx, events.New(model.ChangeSlotCreated, kind, slot.ID, "")); err != nil {
		s.cfg.Log.Warn("Failed to publish change event", "type", model.ChangeSlotCreated, "slot_id", slot.ID, "error", err)
	}
	s.cfg.Log.Info("Slot created",
		"kind", kind,
		"slot_id", slot.ID,
		"date", slot.Date,
		"start_time", slot.StartTime,
		"capacity", slot.Capacity(),
	)
	return slot, nil
}

func (s *inventoryService) applyDefaults(slot *model.Slot) {
	if slot.MaxCapacity <= 0 {
		slot.MaxCapacity = 1
	}
	if slot.Currency == "" {
		slot.Currency = slot.Kind.DefaultCurrency()
	}
	slot.Holds = []model.Hold{}
}

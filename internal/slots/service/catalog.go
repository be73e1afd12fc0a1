package service

import (
	"context"
	"errors"
	"time"

	"licensedesk/internal/metrics"
	"licensedesk/internal/slots/availability"
	slotserrors "licensedesk/internal/slots/errors"
	"licensedesk/internal/slots/repository"
	"licensedesk/internal/slots/validator"
	"licensedesk/pkg/config"
	apperrors "licensedesk/pkg/errors"
	"licensedesk/pkg/model"
	"licensedesk/pkg/sanitizer"
)

const MsgLoadFailed = "Failed to load slots"

// CatalogService reads bookable slots. It never mutates the store.
type CatalogService interface {
	List(ctx context.Context, filter model.SlotFilter) ([]model.SlotView, error)
	Get(ctx context.Context, kind model.SlotKind, id string) (*model.SlotView, error)
}

type catalogService struct {
	repo      repository.SlotRepository
	evaluator *availability.Evaluator
	validator *validator.SlotValidator
	metrics   *metrics.SlotMetrics
	cfg       *config.Config
	now       func() time.Time
}

func NewCatalogService(
	repo repository.SlotRepository,
	evaluator *availability.Evaluator,
	validator *validator.SlotValidator,
	m *metrics.SlotMetrics,
	cfg *config.Config,
) CatalogService {
	return &catalogService{
		repo:      repo,
		evaluator: evaluator,
		validator: validator,
		metrics:   m,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns open slots of filter.Kind ordered by date and start time. The
// store pre-filters on the persisted end time; validity is re-evaluated here
// against the wall clock so a slot that lapsed between query and response is
// dropped.
func (s *catalogService) List(ctx context.Context, filter model.SlotFilter) ([]model.SlotView, error) {
	sanitizer.SanitizeFilter(&filter)
	if err := s.validator.ValidateFilter(&filter); err != nil {
		s.cfg.Log.Warn("Slot filter validation failed", "kind", filter.Kind, "error", err)
		return nil, apperrors.Validation("Invalid slot filter", map[string]any{"error": err.Error()})
	}
	filter.Limit = normalizeCatalogLimit(filter.Limit)

	started := time.Now()
	now := s.now()
	slots, err := s.repo.FindOpen(ctx, filter, now)
	s.metrics.ObserveCatalog(string(filter.Kind), time.Since(started), err)
	if err != nil {
		s.cfg.Log.Error("Failed to load slots", "kind", filter.Kind, "error", err)
		return nil, apperrors.Internal(MsgLoadFailed, err)
	}

	valid := availability.ValidSlots(slots, now, s.evaluator.Location)
	views := make([]model.SlotView, 0, len(valid))
	for _, slot := range valid {
		views = append(views, s.evaluator.Annotate(slot, now))
	}
	return views, nil
}

// Get returns one slot annotated for display, whether or not it is still
// bookable.
func (s *catalogService) Get(ctx context.Context, kind model.SlotKind, id string) (*model.SlotView, error) {
	slot, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) || errors.Is(err, slotserrors.ErrInvalidID) {
			return nil, apperrors.NotFoundWithID("Slot", id)
		}
		s.cfg.Log.Error("Failed to load slot", "kind", kind, "id", id, "error", err)
		return nil, apperrors.Internal(MsgLoadFailed, err)
	}

	view := s.evaluator.Annotate(slot, s.now())
	return &view, nil
}

func normalizeCatalogLimit(limit int) int {
	if limit <= 0 {
		return config.DefaultCatalogLimit
	}
	return min(limit, config.MaxCatalogLimit)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bookingserrors "licensedesk/internal/bookings/errors"
	"licensedesk/internal/bookings/repository"
	"licensedesk/internal/bookings/validator"
	"licensedesk/internal/events"
	"licensedesk/internal/session"
	"licensedesk/pkg/config"
	apperrors "licensedesk/pkg/errors"
	"licensedesk/pkg/model"
	"licensedesk/pkg/sanitizer"
)

type BookingService interface {
	ListOwn(ctx context.Context, sess *session.Session, kind model.SlotKind, limit int, offset int64) ([]*model.Booking, int64, error)
	GetOwn(ctx context.Context, sess *session.Session, kind model.SlotKind, id string) (*model.Booking, error)
	List(ctx context.Context, query model.BookingQuery) ([]*model.Booking, int64, error)
	Review(ctx context.Context, kind model.SlotKind, id string, review *model.Review) (*model.Booking, error)

	CreateExamBooking(ctx context.Context, sess *session.Session, req *model.ExamBookingCreate) (*model.ExamBooking, error)
	ListExamBookings(ctx context.Context, sess *session.Session, limit int, offset int64) ([]*model.ExamBooking, int64, error)
	ReviewExamBooking(ctx context.Context, id string, review *model.Review) (*model.ExamBooking, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	examRepo  repository.ExamBookingRepository
	validator *validator.BookingValidator
	publisher events.Publisher
	cfg       *config.Config
	now       func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	examRepo repository.ExamBookingRepository,
	validator *validator.BookingValidator,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &bookingService{
		repo:      repo,
		examRepo:  examRepo,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *bookingService) ListOwn(ctx context.Context, sess *session.Session, kind model.SlotKind, limit int, offset int64) ([]*model.Booking, int64, error) {
	if !sess.Authenticated() {
		return nil, 0, apperrors.Unauthorized("Sign in to see your bookings")
	}
	return s.List(ctx, model.BookingQuery{Kind: kind, UserID: sess.UserID, Limit: limit, Offset: offset})
}

func (s *bookingService) GetOwn(ctx context.Context, sess *session.Session, kind model.SlotKind, id string) (*model.Booking, error) {
	if !sess.Authenticated() {
		return nil, apperrors.Unauthorized("Sign in to see your bookings")
	}

	booking, err := s.getByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != sess.UserID && !sess.IsAdmin() {
		return nil, apperrors.NotFoundWithID("Booking", id)
	}
	return booking, nil
}

func (s *bookingService) List(ctx context.Context, query model.BookingQuery) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, query)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "kind", query.Kind, "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.Find(ctx, query)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "kind", query.Kind, "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// Review applies an admin status change. All checks run before the store is
// written, and the write only lands if nobody changed the status meanwhile.
func (s *bookingService) Review(ctx context.Context, kind model.SlotKind, id string, review *model.Review) (*model.Booking, error) {
	if err := s.validator.ValidateReview(review); err != nil {
		s.cfg.Log.Warn("Booking review validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid review", map[string]any{"error": err.Error()})
	}

	var next model.BookingStatus
	if review.Status != "" {
		parsed, ok := model.ParseBookingStatus(review.Status)
		if !ok {
			return nil, apperrors.Validation("Invalid review", map[string]any{"status": review.Status})
		}
		next = parsed
	}

	current, err := s.getByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if next == "" {
		next = current.Status
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, apperrors.Validation(
			fmt.Sprintf("Cannot move booking from %s to %s", current.Status, next),
			map[string]any{"from": current.Status, "to": next},
		)
	}

	updated, err := s.repo.UpdateStatus(ctx, kind, id, current.Status, next, review.AdminMessage, s.now())
	if err != nil {
		switch {
		case errors.Is(err, bookingserrors.ErrStatusConflict):
			return nil, apperrors.Conflict("Booking was changed by someone else. Reload and try again.")
		case errors.Is(err, bookingserrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to review booking", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to update booking", err)
	}

	if err := s.publisher.Publish(ctx, events.New(model.ChangeBookingReviewed, kind, updated.SlotID, updated.ID)); err != nil {
		s.cfg.Log.Warn("Failed to publish change event", "type", model.ChangeBookingReviewed, "slot_id", updated.SlotID, "error", err)
	}

	s.cfg.Log.Info("Booking reviewed",
		"id", id,
		"kind", kind,
		"from", current.Status,
		"to", updated.Status,
	)
	return updated, nil
}

func (s *bookingService) CreateExamBooking(ctx context.Context, sess *session.Session, req *model.ExamBookingCreate) (*model.ExamBooking, error) {
	if !sess.Authenticated() {
		return nil, apperrors.Unauthorized("Sign in to book your exam")
	}

	sanitizer.SanitizeExamCandidate(req)
	if err := s.validator.ValidateExamCreate(req); err != nil {
		s.cfg.Log.Warn("Exam booking validation failed", "error", err)
		return nil, apperrors.Validation("Exam booking validation failed", map[string]any{"error": err.Error()})
	}

	purchase, err := s.getByID(ctx, model.KindVoucher, req.PurchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.UserID != sess.UserID {
		return nil, apperrors.Forbidden("This voucher purchase belongs to another account")
	}
	if purchase.Status != model.BookingConfirmed {
		return nil, apperrors.Conflict("The voucher purchase has not been confirmed yet")
	}

	now := s.now()
	booking := &model.ExamBooking{
		PurchaseID:     purchase.ID,
		SlotID:         purchase.SlotID,
		UserID:         sess.UserID,
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		CandidatePhone: req.CandidatePhone,
		ExamDate:       purchase.SlotDate,
		DocumentURL:    req.DocumentURL,
		Status:         model.ExamSubmitted,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.validator.ValidateExamBooking(booking); err != nil {
		return nil, apperrors.Validation("Exam booking validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.examRepo.Create(ctx, booking); err != nil {
		if errors.Is(err, bookingserrors.ErrDuplicate) {
			return nil, apperrors.Conflict("An exam booking already exists for this voucher")
		}
		s.cfg.Log.Error("Failed to create exam booking", "purchase_id", purchase.ID, "error", err)
		return nil, apperrors.Internal("Failed to create exam booking", err)
	}

	s.cfg.Log.Info("Exam booking created", "id", booking.ID, "purchase_id", purchase.ID, "user_id", sess.UserID)
	return booking, nil
}

func (s *bookingService) ListExamBookings(ctx context.Context, sess *session.Session, limit int, offset int64) ([]*model.ExamBooking, int64, error) {
	if !sess.Authenticated() {
		return nil, 0, apperrors.Unauthorized("Sign in to see your exam bookings")
	}

	query := model.ExamBookingQuery{UserID: sess.UserID, Limit: limit, Offset: offset}
	count, err := s.examRepo.Count(ctx, query)
	if err != nil {
		s.cfg.Log.Error("Failed to count exam bookings", "error", err)
		return nil, 0, apperrors.Internal("Failed to count exam bookings", err)
	}
	bookings, err := s.examRepo.Find(ctx, query)
	if err != nil {
		s.cfg.Log.Error("Failed to list exam bookings", "error", err)
		return nil, 0, apperrors.Internal("Failed to retrieve exam bookings", err)
	}
	return bookings, count, nil
}

func (s *bookingService) ReviewExamBooking(ctx context.Context, id string, review *model.Review) (*model.ExamBooking, error) {
	if err := s.validator.ValidateReview(review); err != nil {
		s.cfg.Log.Warn("Exam booking review validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid review", map[string]any{"error": err.Error()})
	}

	var next model.ExamBookingStatus
	if review.Status != "" {
		parsed, ok := model.ParseExamBookingStatus(review.Status)
		if !ok {
			return nil, apperrors.Validation("Invalid review", map[string]any{"status": review.Status})
		}
		next = parsed
	}

	current, err := s.examRepo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapFindError(err, "Exam booking", id)
	}
	if next == "" {
		next = current.Status
	}
	if !current.Status.CanTransitionTo(next) {
		return nil, apperrors.Validation(
			fmt.Sprintf("Cannot move exam booking from %s to %s", current.Status, next),
			map[string]any{"from": current.Status, "to": next},
		)
	}

	updated, err := s.examRepo.UpdateStatus(ctx, id, current.Status, next, review.AdminMessage, s.now())
	if err != nil {
		if errors.Is(err, bookingserrors.ErrStatusConflict) {
			return nil, apperrors.Conflict("Exam booking was changed by someone else. Reload and try again.")
		}
		return nil, s.mapFindError(err, "Exam booking", id)
	}

	s.cfg.Log.Info("Exam booking reviewed", "id", id, "from", current.Status, "to", updated.Status)
	return updated, nil
}

func (s *bookingService) getByID(ctx context.Context, kind model.SlotKind, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	booking, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, s.mapFindError(err, "Booking", id)
	}
	return booking, nil
}

func (s *bookingService) mapFindError(err error, resource, id string) error {
	switch {
	case errors.Is(err, bookingserrors.ErrNotFound):
		return apperrors.NotFoundWithID(resource, id)
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput(fmt.Sprintf("Invalid %s ID format", resource))
	}
	s.cfg.Log.Error("Failed to retrieve "+resource, "id", id, "error", err)
	return apperrors.Internal("Failed to retrieve "+resource, err)
}

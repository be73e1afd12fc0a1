package service

import (
	"context"
	"errors"
	"time"

	bookingserrors "licensedesk/internal/bookings/errors"
	bookingsrepo "licensedesk/internal/bookings/repository"
	bookingsvalidator "licensedesk/internal/bookings/validator"
	"licensedesk/internal/checkout"
	"licensedesk/internal/events"
	"licensedesk/internal/metrics"
	"licensedesk/internal/pending"
	"licensedesk/internal/session"
	"licensedesk/internal/slots/availability"
	slotserrors "licensedesk/internal/slots/errors"
	"licensedesk/internal/slots/repository"
	"licensedesk/pkg/config"
	apperrors "licensedesk/pkg/errors"
	"licensedesk/pkg/model"
	"licensedesk/pkg/sanitizer"

	"github.com/google/uuid"
)

// Arbitrator decides who gets a slot. The decision is a single conditional
// update on the slot document, so of N concurrent callers competing for the
// last unit of capacity exactly one receives a hold.
type Arbitrator interface {
	Arbitrate(ctx context.Context, sess *session.Session, kind model.SlotKind, slotID string) (*model.Arbitration, error)
	Confirm(ctx context.Context, sess *session.Session, kind model.SlotKind, slotID, holdID string, req *model.ConfirmRequest) (*model.Booking, error)
	Release(ctx context.Context, sess *session.Session, kind model.SlotKind, slotID, holdID string) error
	// Resume replays an action deferred by AUTH_REQUIRED for the now signed-in
	// caller.
	Resume(ctx context.Context, sess *session.Session, actionID string) (*model.Arbitration, error)
}

// ArbitratorDeps groups the collaborators of the arbitrator.
type ArbitratorDeps struct {
	Slots     repository.SlotRepository
	Bookings  bookingsrepo.BookingRepository
	Validator *bookingsvalidator.BookingValidator
	Evaluator *availability.Evaluator
	Checkout  *checkout.Builder
	Pending   pending.Queue
	Publisher events.Publisher
	Metrics   *metrics.SlotMetrics
}

type arbitrator struct {
	slots     repository.SlotRepository
	bookings  bookingsrepo.BookingRepository
	validator *bookingsvalidator.BookingValidator
	evaluator *availability.Evaluator
	checkout  *checkout.Builder
	pending   pending.Queue
	publisher events.Publisher
	metrics   *metrics.SlotMetrics
	cfg       *config.Config
	now       func() time.Time
}

func NewArbitrator(deps ArbitratorDeps, cfg *config.Config) Arbitrator {
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	return &arbitrator{
		slots:     deps.Slots,
		bookings:  deps.Bookings,
		validator: deps.Validator,
		evaluator: deps.Evaluator,
		checkout:  deps.Checkout,
		pending:   deps.Pending,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (a *arbitrator) Arbitrate(ctx context.Context, sess *session.Session, kind model.SlotKind, slotID string) (*model.Arbitration, error) {
	if !sess.Authenticated() {
		return nil, a.deferUntilSignIn(ctx, kind, slotID)
	}

	result, outcome, err := a.arbitrate(ctx, sess, kind, slotID)
	a.metrics.ObserveArbitration(string(kind), outcome)
	return result, err
}

func (a *arbitrator) arbitrate(ctx context.Context, sess *session.Session, kind model.SlotKind, slotID string) (*model.Arbitration, string, error) {
	slot, err := a.slots.FindByID(ctx, kind, slotID)
	if err != nil {
		if !errors.Is(err, slotserrors.ErrNotFound) && !errors.Is(err, slotserrors.ErrInvalidID) {
			a.cfg.Log.Error("Failed to re-fetch slot", "kind", kind, "slot_id", slotID, "error", err)
		}
		return nil, metrics.OutcomeTaken, apperrors.SlotTaken(slotID)
	}

	now := a.now()
	end, err := a.evaluator.EffectiveEnd(slot)
	if err != nil {
		a.cfg.Log.Error("Slot has an invalid time window", "kind", kind, "slot_id", slotID, "error", err)
		return nil, metrics.OutcomeTaken, apperrors.SlotTaken(slotID)
	}
	if !now.Before(end) {
		return nil, metrics.OutcomeExpired, apperrors.SlotExpired(slotID)
	}

	if existing, ok := slot.HoldFor(sess.UserID, now); ok {
		return a.handOff(slot, existing, sess)
	}
	if !a.evaluator.IsValid(slot, now) {
		return nil, metrics.OutcomeTaken, apperrors.SlotTaken(slotID)
	}

	hold := model.Hold{
		ID:        uuid.NewString(),
		SlotID:    slot.ID,
		Kind:      kind,
		HolderID:  sess.UserID,
		ExpiresAt: now.Add(slot.HoldDuration(a.cfg.DefaultHoldDuration)),
		CreatedAt: now,
	}
	held, err := a.slots.AcquireHold(ctx, kind, slotID, hold, now)
	if err != nil {
		if errors.Is(err, slotserrors.ErrUnavailable) {
			// A concurrent request from the same holder may have won.
			if latest, ferr := a.slots.FindByID(ctx, kind, slotID); ferr == nil {
				if existing, ok := latest.HoldFor(sess.UserID, now); ok {
					return a.handOff(latest, existing, sess)
				}
			}
			return nil, metrics.OutcomeTaken, apperrors.SlotTaken(slotID)
		}
		a.cfg.Log.Error("Failed to acquire hold", "kind", kind, "slot_id", slotID, "error", err)
		return nil, metrics.OutcomeError, apperrors.Internal("Failed to reserve slot", err)
	}

	a.publish(ctx, events.New(model.ChangeHoldAcquired, kind, slotID, ""))
	a.cfg.Log.Info("Hold acquired",
		"kind", kind,
		"slot_id", slotID,
		"hold_id", hold.ID,
		"user_id", sess.UserID,
		"expires_at", hold.ExpiresAt,
	)
	return a.handOff(held, hold, sess)
}

func (a *arbitrator) handOff(slot *model.Slot, hold model.Hold, sess *session.Session) (*model.Arbitration, string, error) {
	handoff, err := a.checkout.Build(slot, hold, sess)
	if err != nil {
		a.cfg.Log.Error("Failed to build checkout handoff", "slot_id", slot.ID, "hold_id", hold.ID, "error", err)
		return nil, metrics.OutcomeError, apperrors.Internal("Failed to prepare checkout", err)
	}
	return &model.Arbitration{Hold: hold, Handoff: handoff}, metrics.OutcomeHeld, nil
}

func (a *arbitrator) deferUntilSignIn(ctx context.Context, kind model.SlotKind, slotID string) error {
	a.metrics.ObserveArbitration(string(kind), metrics.OutcomeAuthRequired)

	id, err := a.pending.Enqueue(ctx, pending.Action{Type: pending.ActionArbitrate, Kind: kind, SlotID: slotID})
	if err != nil {
		a.cfg.Log.Error("Failed to store pending action", "kind", kind, "slot_id", slotID, "error", err)
		return apperrors.AuthRequired("Please sign in to book this slot")
	}
	return apperrors.AuthRequired("Please sign in to book this slot").WithDetails(map[string]any{
		"pending_action_id": id,
		"slot_id":           slotID,
		"kind":              kind,
	})
}

func (a *arbitrator) Resume(ctx context.Context, sess *session.Session, actionID string) (*model.Arbitration, error) {
	if !sess.Authenticated() {
		return nil, apperrors.Unauthorized("Sign in to continue")
	}

	action, err := a.pending.Take(ctx, actionID)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Pending action", actionID)
		}
		a.cfg.Log.Error("Failed to take pending action", "id", actionID, "error", err)
		return nil, apperrors.Internal("Failed to resume action", err)
	}

	switch action.Type {
	case pending.ActionArbitrate:
		return a.Arbitrate(ctx, sess, action.Kind, action.SlotID)
	default:
		return nil, apperrors.InvalidInput("Unsupported pending action")
	}
}

// Confirm turns the caller's hold into a pending booking. The capacity
// increment and the booking insert share one transaction.
func (a *arbitrator) Confirm(ctx context.Context, sess *session.Session, kind model.SlotKind, slotID, holdID string, req *model.ConfirmRequest) (*model.Booking, error) {
	if !sess.Authenticated() {
		return nil, apperrors.Unauthorized("Sign in to confirm your booking")
	}

	sanitizer.SanitizeGuest(req.Guest)
	req.PaymentProofURL = sanitizer.NormalizeURL(req.PaymentProofURL)
	if err := a.validator.ValidateConfirm(req); err != nil {
		a.cfg.Log.Warn("Confirm validation failed", "slot_id", slotID, "hold_id", holdID, "error", err)
		return nil, apperrors.Validation("Invalid booking confirmation", map[string]any{"error": err.Error()})
	}

	now := a.now()
	var booking *model.Booking
	err := a.slots.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		slot, err := a.slots.CommitHold(txCtx, kind, slotID, holdID, sess.UserID, now)
		if err != nil {
			return err
		}

		booking = &model.Booking{
			Kind:            kind,
			SlotID:          slot.ID,
			HoldID:          holdID,
			UserID:          sess.UserID,
			Guest:           req.Guest,
			Status:          model.BookingPending,
			PaymentID:       req.PaymentID,
			PaymentProofURL: req.PaymentProofURL,
			Price:           slot.Price,
			Currency:        slot.Currency,
			SlotDate:        slot.Date,
			SlotStartTime:   slot.StartTime,
			SlotEndTime:     slot.EndTime,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if booking.Currency == "" {
			booking.Currency = kind.DefaultCurrency()
		}
		return a.bookings.Create(txCtx, booking)
	})
	if err != nil {
		appErr := a.commitError(kind, slotID, holdID, err)
		a.metrics.ObserveCommit(string(kind), outcomeOf(appErr))
		return nil, appErr
	}

	a.metrics.ObserveCommit(string(kind), metrics.OutcomeCommitted)
	a.publish(ctx, events.New(model.ChangeBookingCreated, kind, slotID, booking.ID))
	a.cfg.Log.Info("Booking created",
		"kind", kind,
		"slot_id", slotID,
		"booking_id", booking.ID,
		"user_id", sess.UserID,
		"paid", booking.Paid(),
	)
	return booking, nil
}

func (a *arbitrator) commitError(kind model.SlotKind, slotID, holdID string, err error) *apperrors.AppError {
	switch {
	case errors.Is(err, slotserrors.ErrHoldNotFound):
		return apperrors.HoldExpired(slotID, holdID)
	case errors.Is(err, slotserrors.ErrUnavailable),
		errors.Is(err, slotserrors.ErrNotFound),
		errors.Is(err, slotserrors.ErrInvalidID),
		errors.Is(err, bookingserrors.ErrDuplicate):
		return apperrors.SlotTaken(slotID)
	default:
		a.cfg.Log.Error("Failed to commit hold", "kind", kind, "slot_id", slotID, "hold_id", holdID, "error", err)
		return apperrors.Internal("Failed to create booking", err)
	}
}

func (a *arbitrator) Release(ctx context.Context, sess *session.Session, kind model.SlotKind, slotID, holdID string) error {
	if !sess.Authenticated() {
		return apperrors.Unauthorized("Sign in to manage your reservation")
	}

	if err := a.slots.ReleaseHold(ctx, kind, slotID, holdID, sess.UserID, a.now()); err != nil {
		if errors.Is(err, slotserrors.ErrHoldNotFound) || errors.Is(err, slotserrors.ErrInvalidID) {
			return apperrors.NotFoundWithID("Hold", holdID)
		}
		a.cfg.Log.Error("Failed to release hold", "kind", kind, "slot_id", slotID, "hold_id", holdID, "error", err)
		return apperrors.Internal("Failed to release reservation", err)
	}

	a.metrics.ObserveRelease(string(kind))
	a.publish(ctx, events.New(model.ChangeHoldReleased, kind, slotID, ""))
	return nil
}

func (a *arbitrator) publish(ctx context.Context, event model.ChangeEvent) {
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.cfg.Log.Warn("Failed to publish change event", "type", event.Type, "slot_id", event.SlotID, "error", err)
	}
}

func outcomeOf(err *apperrors.AppError) string {
	switch err.Code {
	case apperrors.CodeSlotTaken:
		return metrics.OutcomeTaken
	case apperrors.CodeHoldExpired, apperrors.CodeSlotExpired:
		return metrics.OutcomeExpired
	default:
		return metrics.OutcomeError
	}
}

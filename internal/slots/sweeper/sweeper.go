// Package sweeper owns the authoritative available -> unavailable transition
// for slots whose time has passed, and drops lapsed holds.
package sweeper

import (
	"context"
	"time"

	"licensedesk/internal/events"
	"licensedesk/internal/metrics"
	"licensedesk/internal/slots/repository"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"
)

type Sweeper struct {
	repo      repository.SlotRepository
	publisher events.Publisher
	metrics   *metrics.SlotMetrics
	log       *logger.Logger
	interval  time.Duration
	now       func() time.Time
}

func New(repo repository.SlotRepository, publisher events.Publisher, m *metrics.SlotMetrics, log *logger.Logger, interval time.Duration) *Sweeper {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		log:       log,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start sweeps once immediately and then every interval until ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting slot sweeper", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Slot sweeper shutting down")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns how many slots were closed and
// how many slots had lapsed holds removed.
func (s *Sweeper) RunOnce(ctx context.Context) (expired, pruned int) {
	now := s.now()

	closed, err := s.repo.ExpireDue(ctx, now)
	if err != nil {
		s.log.Error("Failed to expire slots", "error", err)
	}
	for _, slot := range closed {
		s.publish(ctx, model.ChangeSlotExpired, slot)
	}

	released, err := s.repo.PruneHolds(ctx, now)
	if err != nil {
		s.log.Error("Failed to prune holds", "error", err)
	}
	for _, slot := range released {
		s.publish(ctx, model.ChangeHoldReleased, slot)
	}

	s.metrics.ObserveSweep(len(closed), len(released))
	if len(closed) > 0 || len(released) > 0 {
		s.log.Info("Sweep finished", "expired_slots", len(closed), "pruned_hold_slots", len(released))
	}
	return len(closed), len(released)
}

func (s *Sweeper) publish(ctx context.Context, changeType model.ChangeType, slot *model.Slot) {
	if err := s.publisher.Publish(ctx, events.New(changeType, slot.Kind, slot.ID, "")); err != nil {
		s.log.Warn("Failed to publish change event", "type", changeType, "slot_id", slot.ID, "error", err)
	}
}

package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"licensedesk/internal/metrics"
	"licensedesk/internal/slots/repository"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e model.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) snapshot() []model.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.ChangeEvent(nil), p.events...)
}

func seed(t *testing.T, repo repository.SlotRepository, endsAt time.Time, holds ...model.Hold) *model.Slot {
	t.Helper()
	slot := &model.Slot{
		Kind:        model.KindAppointment,
		Date:        "2025-06-01",
		StartTime:   "09:00",
		EndTime:     "11:00",
		IsAvailable: true,
		MaxCapacity: 1,
		EndsAt:      endsAt,
		Holds:       holds,
	}
	require.NoError(t, repo.Create(context.Background(), slot))
	return slot
}

func TestRunOnce(t *testing.T) {
	repo := repository.NewMemorySlotRepository(nil)
	pub := &recordingPublisher{}
	s := New(repo, pub, metrics.NewSlotMetrics(prometheus.NewRegistry()), logger.Nop(), time.Minute)
	s.now = func() time.Time { return testNow }

	past := seed(t, repo, testNow.Add(-time.Minute))
	lapsed := seed(t, repo, testNow.Add(time.Hour), model.Hold{ID: "h1", HolderID: "u1", ExpiresAt: testNow.Add(-time.Second)})
	seed(t, repo, testNow.Add(time.Hour), model.Hold{ID: "h2", HolderID: "u2", ExpiresAt: testNow.Add(time.Minute)})

	expired, pruned := s.RunOnce(context.Background())
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, pruned)

	events := pub.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, model.ChangeSlotExpired, events[0].Type)
	assert.Equal(t, past.ID, events[0].SlotID)
	assert.Equal(t, model.ChangeHoldReleased, events[1].Type)
	assert.Equal(t, lapsed.ID, events[1].SlotID)

	stored, err := repo.FindByID(context.Background(), model.KindAppointment, past.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAvailable)

	expired, pruned = s.RunOnce(context.Background())
	assert.Zero(t, expired)
	assert.Zero(t, pruned)
}

func TestStart_StopsOnCancel(t *testing.T) {
	repo := repository.NewMemorySlotRepository(nil)
	pub := &recordingPublisher{}
	s := New(repo, pub, nil, logger.Nop(), 10*time.Millisecond)
	seed(t, repo, time.Now().UTC().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

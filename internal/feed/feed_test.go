package feed

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"licensedesk/internal/events"
	"licensedesk/internal/metrics"
	"licensedesk/internal/session"
	"licensedesk/internal/slots/availability"
	"licensedesk/internal/slots/repository"
	"licensedesk/internal/slots/service"
	"licensedesk/internal/slots/validator"
	"licensedesk/pkg/config"
	apperrors "licensedesk/pkg/errors"
	"licensedesk/pkg/kafka"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type env struct {
	repo    repository.SlotRepository
	catalog service.CatalogService
	eval    *availability.Evaluator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Log = logger.Nop()
	repo := repository.NewMemorySlotRepository(nil)
	eval := availability.NewEvaluator(time.UTC, availability.DefaultThresholds())
	return &env{
		repo:    repo,
		catalog: service.NewCatalogService(repo, eval, validator.NewSlotValidator(cfg.Log), nil, cfg),
		eval:    eval,
	}
}

func (e *env) seed(t *testing.T, kind model.SlotKind, start string) *model.Slot {
	t.Helper()
	slot := &model.Slot{
		Kind:        kind,
		Date:        time.Now().UTC().Add(48 * time.Hour).Format(model.DateLayout),
		StartTime:   start,
		EndTime:     "23:00",
		Location:    "Islamabad",
		Price:       model.MustPrice("2500"),
		IsAvailable: true,
		MaxCapacity: 1,
	}
	end, err := e.eval.EffectiveEnd(slot)
	require.NoError(t, err)
	slot.EndsAt = end
	require.NoError(t, e.repo.Create(context.Background(), slot))
	return slot
}

func (e *env) book(t *testing.T, slot *model.Slot, holder string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	hold := model.Hold{ID: holder + "-hold", SlotID: slot.ID, Kind: slot.Kind, HolderID: holder, ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	_, err := e.repo.AcquireHold(ctx, slot.Kind, slot.ID, hold, now)
	require.NoError(t, err)
	_, err = e.repo.CommitHold(ctx, slot.Kind, slot.ID, hold.ID, holder, now)
	require.NoError(t, err)
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(metrics.NewSlotMetrics(prometheus.NewRegistry()), logger.Nop())
	first, unsubFirst := hub.Subscribe()
	second, unsubSecond := hub.Subscribe()
	defer unsubSecond()
	require.Equal(t, 2, hub.Len())

	event := events.New(model.ChangeSlotCreated, model.KindVoucher, "s1", "")
	hub.Notify(context.Background(), event)

	assert.Equal(t, event, <-first)
	assert.Equal(t, event, <-second)

	unsubFirst()
	unsubFirst()
	assert.Equal(t, 1, hub.Len())
	_, open := <-first
	assert.False(t, open)
}

func TestHub_NeverBlocksOnSlowSubscriber(t *testing.T) {
	hub := NewHub(nil, logger.Nop())
	_, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Notify(context.Background(), events.New(model.ChangeHoldAcquired, model.KindCall, "s1", ""))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
}

func TestHub_HandleMessage(t *testing.T) {
	hub := NewHub(nil, logger.Nop())
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	event := events.New(model.ChangeBookingCreated, model.KindAppointment, "s1", "b1")
	msg := kafka.NewMessage().WithKey("s1").WithValue(event).Build()
	require.NoError(t, hub.HandleMessage(context.Background(), msg))
	assert.Equal(t, event.EventID, (<-ch).EventID)

	bad := kafka.NewMessage().WithKey("s1").WithRawValue([]byte("{")).Build()
	err := hub.HandleMessage(context.Background(), bad)
	require.Error(t, err)
	assert.False(t, kafka.ShouldRetry(err, 0, 3))
}

func TestWatcher_BookingDropsSlotIdempotently(t *testing.T) {
	e := newEnv(t)
	booked := e.seed(t, model.KindAppointment, "09:00")
	other := e.seed(t, model.KindAppointment, "12:00")

	w := NewWatcher(e.catalog, model.SlotFilter{Kind: model.KindAppointment})
	views, err := w.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)

	e.book(t, booked, "u1")
	event := events.New(model.ChangeBookingCreated, model.KindAppointment, booked.ID, "b1")

	views, changed, err := w.Apply(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, views, 1)
	assert.Equal(t, other.ID, views[0].ID)

	again, changed, err := w.Apply(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, views, again)
}

func TestWatcher_IgnoresOtherKinds(t *testing.T) {
	e := newEnv(t)
	e.seed(t, model.KindCall, "09:00")

	calls := 0
	catalog := catalogFunc(func(ctx context.Context, f model.SlotFilter) ([]model.SlotView, error) {
		calls++
		return e.catalog.List(ctx, f)
	})
	w := NewWatcher(catalog, model.SlotFilter{Kind: model.KindCall})
	_, err := w.Load(context.Background())
	require.NoError(t, err)

	_, changed, err := w.Apply(context.Background(), events.New(model.ChangeSlotCreated, model.KindVoucher, "x", ""))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, calls)
}

func TestWatcher_KeepsSnapshotOnFailure(t *testing.T) {
	e := newEnv(t)
	e.seed(t, model.KindCall, "09:00")

	fail := false
	catalog := catalogFunc(func(ctx context.Context, f model.SlotFilter) ([]model.SlotView, error) {
		if fail {
			return nil, apperrors.Internal("Failed to load slots", errors.New("down"))
		}
		return e.catalog.List(ctx, f)
	})
	w := NewWatcher(catalog, model.SlotFilter{Kind: model.KindCall})
	_, err := w.Load(context.Background())
	require.NoError(t, err)

	fail = true
	views, changed, err := w.Apply(context.Background(), events.New(model.ChangeSlotUpdated, model.KindCall, "x", ""))
	require.Error(t, err)
	assert.False(t, changed)
	assert.Len(t, views, 1)
}

type catalogFunc func(ctx context.Context, f model.SlotFilter) ([]model.SlotView, error)

func (f catalogFunc) List(ctx context.Context, filter model.SlotFilter) ([]model.SlotView, error) {
	return f(ctx, filter)
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	mu   sync.Mutex
}

func dial(t *testing.T, srv *httptest.Server, token string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/feed"
	if token != "" {
		url += "?access_token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msg InboundMessage) {
	c.t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// await reads until a message of type arrives.
func (c *wsClient) await(msgType string) OutboundMessage {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg OutboundMessage
		require.NoError(c.t, c.conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

// expectNone fails if a message of type arrives before the window closes.
func (c *wsClient) expectNone(msgType string, window time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(window)))
	for {
		var msg OutboundMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			var netErr net.Error
			require.True(c.t, errors.As(err, &netErr) && netErr.Timeout(), "unexpected read error: %v", err)
			return
		}
		require.NotEqual(c.t, msgType, msg.Type, "unexpected %s message: %q", msg.Type, msg.Message)
	}
}

func newFeedServer(t *testing.T, e *env, hub *Hub) (*httptest.Server, *session.Verifier) {
	t.Helper()
	verifier := session.NewVerifier(testSecret)
	h := NewHandler(hub, e.catalog, e.repo, verifier, e.eval, 50*time.Millisecond, nil, logger.Nop())

	router := httprouter.New()
	h.RegisterRoutes(router)
	srv := httptest.NewServer(verifier.Middleware(logger.Nop())(router))
	t.Cleanup(srv.Close)
	return srv, verifier
}

func TestHandler_SnapshotAndRefresh(t *testing.T) {
	e := newEnv(t)
	hub := NewHub(nil, logger.Nop())
	srv, _ := newFeedServer(t, e, hub)
	slot := e.seed(t, model.KindAppointment, "09:00")

	c := dial(t, srv, "")
	c.send(InboundMessage{Type: TypePing})
	c.await(TypePong)

	c.send(InboundMessage{Type: TypeSubscribe, Filter: model.SlotFilter{Kind: model.KindAppointment}})
	snapshot := c.await(TypeSnapshot)
	require.Len(t, snapshot.Slots, 1)
	assert.Equal(t, slot.ID, snapshot.Slots[0].ID)

	e.book(t, slot, "u1")
	hub.Notify(context.Background(), events.New(model.ChangeBookingCreated, model.KindAppointment, slot.ID, "b1"))

	refreshed := c.await(TypeSnapshot)
	assert.Empty(t, refreshed.Slots)
}

func TestHandler_RejectsBadToken(t *testing.T) {
	e := newEnv(t)
	srv, _ := newFeedServer(t, e, NewHub(nil, logger.Nop()))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/feed?access_token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestHandler_UnknownMessage(t *testing.T) {
	e := newEnv(t)
	srv, _ := newFeedServer(t, e, NewHub(nil, logger.Nop()))

	c := dial(t, srv, "")
	c.send(InboundMessage{Type: "shout"})
	msg := c.await(TypeError)
	assert.NotEmpty(t, msg.Message)

	c.send(InboundMessage{Type: TypeSubscribe, Filter: model.SlotFilter{Kind: "lesson"}})
	c.await(TypeError)
}

func TestHandler_WatchHoldCountsDown(t *testing.T) {
	e := newEnv(t)
	srv, verifier := newFeedServer(t, e, NewHub(nil, logger.Nop()))
	slot := e.seed(t, model.KindCall, "09:00")

	now := time.Now().UTC()
	hold := model.Hold{ID: "h1", SlotID: slot.ID, Kind: model.KindCall, HolderID: "alice", ExpiresAt: now.Add(300 * time.Millisecond), CreatedAt: now}
	_, err := e.repo.AcquireHold(context.Background(), model.KindCall, slot.ID, hold, now)
	require.NoError(t, err)

	token, err := verifier.Issue(session.Session{UserID: "alice", Role: session.RoleUser}, time.Hour)
	require.NoError(t, err)

	c := dial(t, srv, token)
	c.send(InboundMessage{Type: TypeWatchHold, Kind: model.KindCall, SlotID: slot.ID, HoldID: hold.ID})

	tick := c.await(TypeHoldTick)
	assert.Equal(t, hold.ID, tick.HoldID)
	require.NotNil(t, tick.SecondsRemaining)

	expired := c.await(TypeHoldExpired)
	assert.Equal(t, hold.ID, expired.HoldID)
	assert.Equal(t, apperrors.MsgHoldExpired, expired.Message)
}

func TestHandler_WatchHoldRequiresOwner(t *testing.T) {
	e := newEnv(t)
	srv, verifier := newFeedServer(t, e, NewHub(nil, logger.Nop()))
	slot := e.seed(t, model.KindCall, "09:00")

	now := time.Now().UTC()
	hold := model.Hold{ID: "h1", SlotID: slot.ID, Kind: model.KindCall, HolderID: "alice", ExpiresAt: now.Add(time.Minute), CreatedAt: now}
	_, err := e.repo.AcquireHold(context.Background(), model.KindCall, slot.ID, hold, now)
	require.NoError(t, err)

	anonymous := dial(t, srv, "")
	anonymous.send(InboundMessage{Type: TypeWatchHold, Kind: model.KindCall, SlotID: slot.ID, HoldID: hold.ID})
	anonymous.await(TypeError)

	token, err := verifier.Issue(session.Session{UserID: "mallory", Role: session.RoleUser}, time.Hour)
	require.NoError(t, err)
	other := dial(t, srv, token)
	other.send(InboundMessage{Type: TypeWatchHold, Kind: model.KindCall, SlotID: slot.ID, HoldID: hold.ID})
	msg := other.await(TypeHoldExpired)
	assert.Equal(t, hold.ID, msg.HoldID)
}

func TestHandler_WatchHoldStopsWhenHoldCloses(t *testing.T) {
	tests := []struct {
		name  string
		event model.ChangeType
		close func(t *testing.T, e *env, slot *model.Slot, hold model.Hold)
	}{
		{
			name:  "committed into a booking",
			event: model.ChangeBookingCreated,
			close: func(t *testing.T, e *env, slot *model.Slot, hold model.Hold) {
				_, err := e.repo.CommitHold(context.Background(), slot.Kind, slot.ID, hold.ID, hold.HolderID, time.Now().UTC())
				require.NoError(t, err)
			},
		},
		{
			name:  "released by the holder",
			event: model.ChangeHoldReleased,
			close: func(t *testing.T, e *env, slot *model.Slot, hold model.Hold) {
				require.NoError(t, e.repo.ReleaseHold(context.Background(), slot.Kind, slot.ID, hold.ID, hold.HolderID, time.Now().UTC()))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			hub := NewHub(nil, logger.Nop())
			srv, verifier := newFeedServer(t, e, hub)
			slot := e.seed(t, model.KindCall, "09:00")

			now := time.Now().UTC()
			hold := model.Hold{ID: "h1", SlotID: slot.ID, Kind: model.KindCall, HolderID: "alice", ExpiresAt: now.Add(600 * time.Millisecond), CreatedAt: now}
			_, err := e.repo.AcquireHold(context.Background(), model.KindCall, slot.ID, hold, now)
			require.NoError(t, err)

			token, err := verifier.Issue(session.Session{UserID: "alice", Role: session.RoleUser}, time.Hour)
			require.NoError(t, err)

			c := dial(t, srv, token)
			c.send(InboundMessage{Type: TypeWatchHold, Kind: model.KindCall, SlotID: slot.ID, HoldID: hold.ID})
			c.await(TypeHoldTick)

			tt.close(t, e, slot, hold)
			hub.Notify(context.Background(), events.New(tt.event, model.KindCall, slot.ID, ""))

			c.expectNone(TypeHoldExpired, time.Until(hold.ExpiresAt)+400*time.Millisecond)
		})
	}
}

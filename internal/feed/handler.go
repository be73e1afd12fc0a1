package feed

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"licensedesk/internal/countdown"
	"licensedesk/internal/metrics"
	"licensedesk/internal/session"
	"licensedesk/internal/slots/availability"
	slotserrors "licensedesk/internal/slots/errors"
	apperrors "licensedesk/pkg/errors"
	httputil "licensedesk/pkg/http"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64

	holdTimerKey = "hold"
)

// Client message types.
const (
	TypeSubscribe   = "subscribe"
	TypeWatchHold   = "watch_hold"
	TypeUnwatchHold = "unwatch_hold"
	TypePing        = "ping"
)

// Server message types.
const (
	TypeSnapshot    = "snapshot"
	TypeSlotStatus  = "slot_status"
	TypeSlotExpired = "slot_expired"
	TypeHoldTick    = "hold_tick"
	TypeHoldExpired = "hold_expired"
	TypeError       = "error"
	TypePong        = "pong"
)

// InboundMessage is what a client sends.
type InboundMessage struct {
	Type   string           `json:"type"`
	Filter model.SlotFilter `json:"filter"`
	Kind   model.SlotKind   `json:"kind,omitempty"`
	SlotID string           `json:"slot_id,omitempty"`
	HoldID string           `json:"hold_id,omitempty"`
}

// OutboundMessage is what the server pushes.
type OutboundMessage struct {
	Type             string           `json:"type"`
	Slots            []model.SlotView `json:"slots,omitempty"`
	SlotID           string           `json:"slot_id,omitempty"`
	HoldID           string           `json:"hold_id,omitempty"`
	Status           model.SlotStatus `json:"status,omitempty"`
	SecondsRemaining *int64           `json:"seconds_remaining,omitempty"`
	Message          string           `json:"message,omitempty"`
}

// SlotLookup resolves the slot a watched hold lives on.
type SlotLookup interface {
	FindByID(ctx context.Context, kind model.SlotKind, id string) (*model.Slot, error)
}

type Handler struct {
	hub       *Hub
	catalog   Catalog
	slots     SlotLookup
	verifier  *session.Verifier
	evaluator *availability.Evaluator
	timers    countdown.Options
	metrics   *metrics.SlotMetrics
	log       *logger.Logger
	upgrader  websocket.Upgrader
}

func NewHandler(
	hub *Hub,
	catalog Catalog,
	slots SlotLookup,
	verifier *session.Verifier,
	evaluator *availability.Evaluator,
	interval time.Duration,
	m *metrics.SlotMetrics,
	log *logger.Logger,
) *Handler {
	return &Handler{
		hub:       hub,
		catalog:   catalog,
		slots:     slots,
		verifier:  verifier,
		evaluator: evaluator,
		timers:    countdown.Options{Interval: interval},
		metrics:   m,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/feed", h.ServeWS)
}

// ServeWS upgrades the request. Browsers cannot set headers on websocket
// requests, so the session token may also come from the access_token query
// parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess := session.FromContext(r.Context())
	if token := r.URL.Query().Get("access_token"); token != "" {
		verified, err := h.verifier.Verify(token)
		if err != nil {
			if writeErr := httputil.WriteError(w, apperrors.Unauthorized("Invalid or expired session")); writeErr != nil {
				h.log.Error("failed to write error response", "handler", "ServeWS", "operation", "WriteError", "error", writeErr)
			}
			return
		}
		sess = verified
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("feed: websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		handler:    h,
		conn:       conn,
		sess:       sess,
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan OutboundMessage, sendBuffer),
		slotTimers: countdown.NewGroup(h.timers),
		holdTimers: countdown.NewGroup(h.timers),
		statuses:   make(map[string]model.SlotStatus),
	}

	h.metrics.FeedClientConnected()
	h.log.Info("feed: connection opened", "authenticated", sess.Authenticated())
	c.run()
	h.metrics.FeedClientDisconnected()
}

type client struct {
	handler *Handler
	conn    *websocket.Conn
	sess    *session.Session
	ctx     context.Context
	cancel  context.CancelFunc
	send    chan OutboundMessage

	slotTimers *countdown.Group
	holdTimers *countdown.Group

	mu       sync.Mutex
	watcher  *Watcher
	statuses map[string]model.SlotStatus
	hold     *watchedHold
}

// watchedHold is the hold behind the running hold countdown. Whoever clears
// it from the client first owns the final message.
type watchedHold struct {
	kind model.SlotKind
	hold model.Hold
}

// holdChangeTypes are the events after which a watched hold may be gone.
var holdChangeTypes = map[model.ChangeType]bool{
	model.ChangeBookingCreated: true,
	model.ChangeHoldReleased:   true,
	model.ChangeSlotExpired:    true,
	model.ChangeSlotUpdated:    true,
}

func (c *client) run() {
	events, unsubscribe := c.handler.hub.Subscribe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	go func() {
		defer wg.Done()
		c.eventLoop(events)
	}()

	c.readLoop()

	c.cancel()
	unsubscribe()
	c.slotTimers.StopAll()
	c.holdTimers.StopAll()
	wg.Wait()
	_ = c.conn.Close()
	c.handler.log.Debug("feed: connection closed")
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg InboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.log.Debug("feed: read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case TypePing:
			c.push(OutboundMessage{Type: TypePong})
		case TypeSubscribe:
			c.subscribe(msg.Filter)
		case TypeWatchHold:
			c.watchHold(msg)
		case TypeUnwatchHold:
			c.unwatchHold()
		default:
			c.push(OutboundMessage{Type: TypeError, Message: "unknown message type"})
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.handler.log.Debug("feed: write failed", "error", err)
				c.cancel()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *client) eventLoop(events <-chan model.ChangeEvent) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.mu.Lock()
			w := c.watcher
			watched := c.hold
			c.mu.Unlock()

			if watched != nil && holdChangeTypes[event.Type] && event.SlotID == watched.hold.SlotID {
				c.recheckHold(watched)
			}
			if w == nil {
				continue
			}

			views, changed, err := w.Apply(c.ctx, event)
			if err != nil {
				c.handler.log.Warn("feed: catalog refresh failed", "kind", w.Filter().Kind, "error", err)
				continue
			}
			if changed {
				c.push(OutboundMessage{Type: TypeSnapshot, Slots: views})
				c.trackSlots(views)
			}
		}
	}
}

func (c *client) push(msg OutboundMessage) {
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

func (c *client) subscribe(filter model.SlotFilter) {
	if _, err := model.ParseSlotKind(string(filter.Kind)); err != nil {
		c.push(OutboundMessage{Type: TypeError, Message: err.Error()})
		return
	}

	w := NewWatcher(c.handler.catalog, filter)
	views, err := w.Load(c.ctx)
	if err != nil {
		c.push(OutboundMessage{Type: TypeError, Message: apperrors.AsAppError(err).Message})
		return
	}

	c.mu.Lock()
	c.watcher = w
	c.statuses = make(map[string]model.SlotStatus)
	c.mu.Unlock()

	c.slotTimers.Retain(nil)
	c.push(OutboundMessage{Type: TypeSnapshot, Slots: views})
	c.trackSlots(views)
}

// trackSlots keeps one countdown per displayed slot. Slots that left the
// snapshot lose their countdown; existing countdowns keep running.
func (c *client) trackSlots(views []model.SlotView) {
	keep := make(map[string]bool, len(views))
	for _, v := range views {
		keep[v.ID] = true
	}
	c.slotTimers.Retain(keep)

	for _, v := range views {
		if c.slotTimers.Active(v.ID) {
			continue
		}
		slot := v.Slot
		end, err := c.handler.evaluator.EffectiveEnd(&slot)
		if err != nil {
			continue
		}

		slotID := v.ID
		c.statusChanged(slotID, v.Status)
		c.slotTimers.Start(c.ctx, slotID, end,
			func(remaining time.Duration) {
				status := availability.ClassifyRemaining(remaining, c.handler.evaluator.Thresholds)
				if status == model.StatusExpired || !c.statusChanged(slotID, status) {
					return
				}
				secs := int64(remaining / time.Second)
				c.push(OutboundMessage{Type: TypeSlotStatus, SlotID: slotID, Status: status, SecondsRemaining: &secs})
			},
			func(result countdown.Result) {
				if result != countdown.Expired {
					return
				}
				c.mu.Lock()
				w := c.watcher
				delete(c.statuses, slotID)
				c.mu.Unlock()
				if w != nil {
					w.Drop(slotID)
				}
				c.push(OutboundMessage{Type: TypeSlotExpired, SlotID: slotID, Status: model.StatusExpired})
			},
		)
	}
}

func (c *client) statusChanged(slotID string, status model.SlotStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statuses[slotID] == status {
		return false
	}
	c.statuses[slotID] = status
	return true
}

// watchHold starts the checkout countdown for the caller's own hold. The
// hold lapses server-side on its own; this only reports it.
func (c *client) watchHold(msg InboundMessage) {
	if !c.sess.Authenticated() {
		c.push(OutboundMessage{Type: TypeError, Message: "Sign in to watch a reservation"})
		return
	}
	c.unwatchHold()

	slot, err := c.handler.slots.FindByID(c.ctx, msg.Kind, msg.SlotID)
	if err != nil {
		c.push(OutboundMessage{Type: TypeHoldExpired, SlotID: msg.SlotID, HoldID: msg.HoldID, Message: apperrors.MsgHoldExpired})
		return
	}
	hold, ok := slot.HoldByID(msg.HoldID)
	if !ok || hold.HolderID != c.sess.UserID {
		c.push(OutboundMessage{Type: TypeHoldExpired, SlotID: msg.SlotID, HoldID: msg.HoldID, Message: apperrors.MsgHoldExpired})
		return
	}

	watched := &watchedHold{kind: msg.Kind, hold: hold}
	c.mu.Lock()
	c.hold = watched
	c.mu.Unlock()

	c.holdTimers.Start(c.ctx, holdTimerKey, hold.ExpiresAt,
		func(remaining time.Duration) {
			secs := int64(remaining / time.Second)
			c.push(OutboundMessage{Type: TypeHoldTick, SlotID: hold.SlotID, HoldID: hold.ID, SecondsRemaining: &secs})
		},
		func(result countdown.Result) {
			if result == countdown.Expired && c.releaseWatch(watched) {
				c.pushHoldExpired(hold)
			}
		},
	)
}

func (c *client) unwatchHold() {
	c.mu.Lock()
	c.hold = nil
	c.mu.Unlock()
	c.holdTimers.Stop(holdTimerKey)
}

// releaseWatch clears watched if it is still the current hold.
func (c *client) releaseWatch(watched *watchedHold) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold != watched {
		return false
	}
	c.hold = nil
	return true
}

// recheckHold stops the countdown once the watched hold is no longer on its
// slot. A hold that vanished before its deadline was committed or released
// and ends silently; one past its deadline lapsed.
func (c *client) recheckHold(watched *watchedHold) {
	slot, err := c.handler.slots.FindByID(c.ctx, watched.kind, watched.hold.SlotID)
	if err != nil && !errors.Is(err, slotserrors.ErrNotFound) {
		c.handler.log.Warn("feed: hold refresh failed", "slot_id", watched.hold.SlotID, "error", err)
		return
	}
	if err == nil {
		if _, ok := slot.HoldByID(watched.hold.ID); ok {
			return
		}
	}
	if !c.releaseWatch(watched) {
		return
	}

	c.holdTimers.Stop(holdTimerKey)
	if !watched.hold.Active(time.Now()) {
		c.pushHoldExpired(watched.hold)
	}
}

func (c *client) pushHoldExpired(hold model.Hold) {
	c.push(OutboundMessage{Type: TypeHoldExpired, SlotID: hold.SlotID, HoldID: hold.ID, Message: apperrors.MsgHoldExpired})
}

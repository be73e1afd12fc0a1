// Package feed pushes slot availability changes to connected clients.
package feed

import (
	"context"
	"sync"

	"licensedesk/internal/events"
	"licensedesk/internal/metrics"
	"licensedesk/pkg/kafka"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"
)

const subscriberBuffer = 32

// Hub fans change events out to every subscriber of this instance. It is the
// in-process events.Sink and the target of the Kafka consumer.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscription]struct{}
	metrics     *metrics.SlotMetrics
	log         *logger.Logger
}

type subscription struct {
	events chan model.ChangeEvent
}

var _ events.Sink = (*Hub)(nil)

func NewHub(m *metrics.SlotMetrics, log *logger.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*subscription]struct{}),
		metrics:     m,
		log:         log,
	}
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes it.
func (h *Hub) Subscribe() (<-chan model.ChangeEvent, func()) {
	sub := &subscription{events: make(chan model.ChangeEvent, subscriberBuffer)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.events, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, sub)
			h.mu.Unlock()
			close(sub.events)
		})
	}
}

// Notify never blocks. A subscriber whose buffer is full misses the event;
// the next delivered event re-runs its query and catches up.
func (h *Hub) Notify(_ context.Context, event model.ChangeEvent) {
	h.metrics.ObserveFeedEvent(string(event.Type))

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.events <- event:
		default:
			h.log.Debug("feed subscriber lagging, event dropped", "event_id", event.EventID, "type", event.Type)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// HandleMessage is the Kafka consumer handler for the slot change topic.
func (h *Hub) HandleMessage(ctx context.Context, msg kafka.Message) error {
	event, err := events.DecodeMessage(msg)
	if err != nil {
		return err
	}
	h.Notify(ctx, event)
	return nil
}

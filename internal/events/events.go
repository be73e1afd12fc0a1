// Package events publishes slot change notifications to Kafka and to the
// in-process feed hub.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"licensedesk/pkg/kafka"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/google/uuid"
)

const (
	eventSource   = "licensedesk-slots"
	schemaVersion = "1"
)

type Publisher interface {
	Publish(ctx context.Context, event model.ChangeEvent) error
}

// New stamps an event id and time on a change event.
func New(changeType model.ChangeType, kind model.SlotKind, slotID, bookingID string) model.ChangeEvent {
	return model.ChangeEvent{
		EventID:    uuid.NewString(),
		Type:       changeType,
		Kind:       kind,
		SlotID:     slotID,
		BookingID:  bookingID,
		OccurredAt: time.Now().UTC(),
	}
}

// MessagePublisher is the part of kafka.Producer used here.
type MessagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type kafkaPublisher struct {
	producer MessagePublisher
}

// NewKafkaPublisher writes events keyed by slot id so changes to one slot
// stay ordered on a single partition.
func NewKafkaPublisher(producer MessagePublisher) Publisher {
	return &kafkaPublisher{producer: producer}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event model.ChangeEvent) error {
	key := event.SlotID
	if key == "" {
		key = string(event.Kind)
	}

	mb := kafka.NewMessage().
		WithKey(key).
		WithValue(event).
		WithEventID(event.EventID).
		WithEventType(string(event.Type)).
		WithSource(eventSource).
		WithSchemaVersion(schemaVersion).
		WithTimestamp(event.OccurredAt)
	if err := mb.Err(); err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}

	if err := p.producer.Publish(ctx, mb.Build()); err != nil {
		return fmt.Errorf("failed to publish change event %s: %w", event.EventID, err)
	}
	return nil
}

// DecodeMessage reads a change event back from a consumed message.
func DecodeMessage(msg kafka.Message) (model.ChangeEvent, error) {
	var event model.ChangeEvent
	if err := msg.DecodeValue(&event); err != nil {
		return event, kafka.NewPermanentError("malformed change event", err)
	}
	if event.Type == "" || event.Kind == "" {
		return event, kafka.NewPermanentError("change event missing type or kind", nil)
	}
	return event, nil
}

// Sink receives events delivered in-process.
type Sink interface {
	Notify(ctx context.Context, event model.ChangeEvent)
}

type SinkFunc func(ctx context.Context, event model.ChangeEvent)

func (f SinkFunc) Notify(ctx context.Context, event model.ChangeEvent) {
	f(ctx, event)
}

type localPublisher struct {
	sink Sink
}

// NewLocalPublisher hands events straight to sink. Used when Kafka is
// disabled, or alongside it so this instance reacts without a round trip.
func NewLocalPublisher(sink Sink) Publisher {
	return &localPublisher{sink: sink}
}

func (p *localPublisher) Publish(ctx context.Context, event model.ChangeEvent) error {
	p.sink.Notify(ctx, event)
	return nil
}

type fanOut struct {
	publishers []Publisher
	log        *logger.Logger
}

// NewFanOut publishes to every publisher. Failures are logged and never
// returned: a lost notification only delays a client refresh.
func NewFanOut(log *logger.Logger, publishers ...Publisher) Publisher {
	var ps []Publisher
	for _, p := range publishers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &fanOut{publishers: ps, log: log}
}

func (f *fanOut) Publish(ctx context.Context, event model.ChangeEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		f.log.Warn("change event not fully delivered",
			"event_id", event.EventID,
			"type", event.Type,
			"slot_id", event.SlotID,
			"error", err,
		)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, model.ChangeEvent) error { return nil }

package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"licensedesk/pkg/kafka"
	"licensedesk/pkg/logger"
	"licensedesk/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (m *mockProducer) Publish(_ context.Context, msg kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

type recordingPublisher struct {
	events []model.ChangeEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e model.ChangeEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func TestKafkaPublisher_KeysBySlot(t *testing.T) {
	producer := &mockProducer{}
	pub := NewKafkaPublisher(producer)
	event := New(model.ChangeBookingCreated, model.KindAppointment, "slot-42", "booking-1")

	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, producer.msgs, 1)
	msg := producer.msgs[0]
	assert.Equal(t, "slot-42", msg.Key)
	assert.Equal(t, event.EventID, msg.GetEventID())
	assert.Equal(t, "booking_created", msg.GetEventType())

	decoded, err := DecodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, event.SlotID, decoded.SlotID)
	assert.Equal(t, event.BookingID, decoded.BookingID)
	assert.Equal(t, event.Type, decoded.Type)
}

func TestKafkaPublisher_WrapsProducerError(t *testing.T) {
	pub := NewKafkaPublisher(&mockProducer{err: errors.New("broker down")})

	err := pub.Publish(context.Background(), New(model.ChangeSlotCreated, model.KindCall, "slot-1", ""))

	assert.ErrorContains(t, err, "broker down")
}

func TestDecodeMessage_Malformed(t *testing.T) {
	_, err := DecodeMessage(kafka.Message{Value: []byte("not json")})
	require.Error(t, err)
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))

	_, err = DecodeMessage(kafka.Message{Value: []byte(`{"slot_id":"x"}`)})
	assert.Error(t, err)
}

func TestFanOut_SwallowsFailures(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("boom")}
	ok := &recordingPublisher{}
	pub := NewFanOut(logger.Nop(), failing, nil, ok)

	err := pub.Publish(context.Background(), New(model.ChangeHoldAcquired, model.KindVoucher, "slot-1", ""))

	assert.NoError(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestLocalPublisher(t *testing.T) {
	var got []model.ChangeEvent
	pub := NewLocalPublisher(SinkFunc(func(_ context.Context, e model.ChangeEvent) {
		got = append(got, e)
	}))

	require.NoError(t, pub.Publish(context.Background(), New(model.ChangeSlotExpired, model.KindCall, "slot-9", "")))
	require.Len(t, got, 1)
	assert.Equal(t, model.ChangeSlotExpired, got[0].Type)
}

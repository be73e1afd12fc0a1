package kafka_middleware

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"licensedesk/pkg/kafka"
	"licensedesk/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ProducerMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	mw := m.ProducerMiddleware()
	msg := kafka.Message{Topic: "slot-changes", Key: "slot-1"}

	_ = mw(context.Background(), msg, func(context.Context, kafka.Message) error { return nil })
	err := mw(context.Background(), msg, func(context.Context, kafka.Message) error { return errors.New("broker down") })

	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("slot-changes", resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("slot-changes", resultFailure)))
}

func TestMetrics_ConsumerMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	mw := m.ConsumerMiddleware()
	msg := kafka.Message{Topic: "slot-changes"}

	_ = mw(context.Background(), msg, func(context.Context, kafka.Message) error { return nil })

	assert.Equal(t, 1.0, testutil.ToFloat64(m.consumed.WithLabelValues("slot-changes", resultSuccess)))
}

func TestMetrics_NilPassesThrough(t *testing.T) {
	var m *Metrics
	called := false
	err := m.ProducerMiddleware()(context.Background(), kafka.Message{}, func(context.Context, kafka.Message) error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestLoggingConsumerMiddleware_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Output: &buf, Level: logger.DEBUG})
	mw := LoggingConsumerMiddleware(log)

	err := mw(context.Background(), kafka.Message{Topic: "slot-changes", Key: "slot-9"}, func(context.Context, kafka.Message) error {
		return errors.New("decode failed")
	})

	assert.Error(t, err)
	assert.Contains(t, buf.String(), "kafka message handling failed")
	assert.Contains(t, buf.String(), "slot-9")
}

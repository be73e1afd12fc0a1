package kafka_middleware

import (
	"context"
	"time"

	"licensedesk/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics counts and times kafka publish and consume operations per topic.
type Metrics struct {
	published       *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	consumed        *prometheus.CounterVec
	consumeDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensedesk",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Kafka messages published by topic and result",
		}, []string{"topic", "result"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "licensedesk",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Time spent publishing a kafka message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensedesk",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Kafka messages consumed by topic and result",
		}, []string{"topic", "result"}),
		consumeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "licensedesk",
			Subsystem: "kafka",
			Name:      "consume_duration_seconds",
			Help:      "Time spent handling a consumed kafka message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"topic"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.published, m.publishDuration, m.consumed, m.consumeDuration)
	return m
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

func (m *Metrics) ProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		if m != nil {
			m.publishDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
			m.published.WithLabelValues(msg.Topic, result(err)).Inc()
		}
		return err
	}
}

func (m *Metrics) ConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		if m != nil {
			m.consumeDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
			m.consumed.WithLabelValues(msg.Topic, result(err)).Inc()
		}
		return err
	}
}

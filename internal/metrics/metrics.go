// Package metrics exposes Prometheus instruments for the slot service. Every
// method is safe on a nil receiver so components can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "licensedesk"

const (
	OutcomeHeld         = "held"
	OutcomeAuthRequired = "auth_required"
	OutcomeTaken        = "taken"
	OutcomeExpired      = "expired"
	OutcomeError        = "error"
	OutcomeCommitted    = "committed"
)

type SlotMetrics struct {
	arbitrations   *prometheus.CounterVec
	commits        *prometheus.CounterVec
	releases       *prometheus.CounterVec
	catalogLatency *prometheus.HistogramVec
	catalogErrors  *prometheus.CounterVec
	sweptSlots     prometheus.Counter
	prunedHolds    prometheus.Counter
	feedClients    prometheus.Gauge
	feedEvents     *prometheus.CounterVec
}

func NewSlotMetrics(reg prometheus.Registerer) *SlotMetrics {
	m := &SlotMetrics{
		arbitrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "arbitrations_total",
			Help:      "Booking arbitration attempts by slot kind and outcome",
		}, []string{"kind", "outcome"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "hold_commits_total",
			Help:      "Hold confirmations by slot kind and outcome",
		}, []string{"kind", "outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "hold_releases_total",
			Help:      "Voluntary hold releases by slot kind",
		}, []string{"kind"}),
		catalogLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "query_seconds",
			Help:      "Latency of catalog queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		catalogErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "errors_total",
			Help:      "Failed catalog queries",
		}, []string{"kind"}),
		sweptSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "expired_slots_total",
			Help:      "Slots closed by the expiry sweeper",
		}),
		prunedHolds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "lapsed_hold_slots_total",
			Help:      "Slots whose lapsed holds were pruned",
		}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected realtime feed clients",
		}),
		feedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Change events delivered to the feed hub by type",
		}, []string{"type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.arbitrations, m.commits, m.releases,
		m.catalogLatency, m.catalogErrors,
		m.sweptSlots, m.prunedHolds,
		m.feedClients, m.feedEvents,
	)
	return m
}

func (m *SlotMetrics) ObserveArbitration(kind, outcome string) {
	if m == nil {
		return
	}
	m.arbitrations.WithLabelValues(kind, outcome).Inc()
}

func (m *SlotMetrics) ObserveCommit(kind, outcome string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(kind, outcome).Inc()
}

func (m *SlotMetrics) ObserveRelease(kind string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(kind).Inc()
}

func (m *SlotMetrics) ObserveCatalog(kind string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.catalogLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		m.catalogErrors.WithLabelValues(kind).Inc()
	}
}

func (m *SlotMetrics) ObserveSweep(expired, pruned int) {
	if m == nil {
		return
	}
	m.sweptSlots.Add(float64(expired))
	m.prunedHolds.Add(float64(pruned))
}

func (m *SlotMetrics) FeedClientConnected() {
	if m == nil {
		return
	}
	m.feedClients.Inc()
}

func (m *SlotMetrics) FeedClientDisconnected() {
	if m == nil {
		return
	}
	m.feedClients.Dec()
}

func (m *SlotMetrics) ObserveFeedEvent(eventType string) {
	if m == nil {
		return
	}
	m.feedEvents.WithLabelValues(eventType).Inc()
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	EventsTotal        *prometheus.CounterVec
	DeliveryDuration   *prometheus.HistogramVec
	WorkerTerminations *prometheus.CounterVec
	WorkerUp           *prometheus.GaugeVec
	ChannelsSkipped    prometheus.Counter
}

// NewMetrics creates and registers all relay metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Events handled per channel by outcome.",
		}, []string{"channel", "outcome"}),

		DeliveryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_delivery_duration_seconds",
			Help:    "Time spent delivering a message to the chat platform.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		WorkerTerminations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_worker_terminations_total",
			Help: "Channel workers that stopped, by reason.",
		}, []string{"channel", "reason"}),

		WorkerUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_worker_listening",
			Help: "1 while the channel worker is listening for payloads.",
		}, []string{"channel"}),

		ChannelsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_channels_skipped_total",
			Help: "Channel definitions skipped because they could not be resolved.",
		}),
	}
}

// ObserveEvent counts one event for channel with the given outcome.
func (m *Metrics) ObserveEvent(channel, outcome string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveDelivery records the duration of one delivery attempt.
func (m *Metrics) ObserveDelivery(channel string, d time.Duration) {
	if m == nil {
		return
	}
	m.DeliveryDuration.WithLabelValues(channel).Observe(d.Seconds())
}

// SetListening flips the listening gauge for channel.
func (m *Metrics) SetListening(channel string, listening bool) {
	if m == nil {
		return
	}
	v := 0.0
	if listening {
		v = 1
	}
	m.WorkerUp.WithLabelValues(channel).Set(v)
}

// ObserveTermination counts a worker exit.
func (m *Metrics) ObserveTermination(channel, reason string) {
	if m == nil {
		return
	}
	m.WorkerTerminations.WithLabelValues(channel, reason).Inc()
}

// ObserveSkipped counts a channel definition that was not started.
func (m *Metrics) ObserveSkipped() {
	if m == nil {
		return
	}
	m.ChannelsSkipped.Inc()
}

package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "climateip"

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	polls        *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	commands     *prometheus.CounterVec
	available    *prometheus.GaugeVec
	publishes    *prometheus.CounterVec
}

// NewMetrics registers the bridge collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "polls_total",
			Help:      "Device state polls by result (ok, error, init_error).",
		}, []string{"device", "result"}),
		pollDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent in UpdateState.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"device"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Property writes by source and result.",
		}, []string{"device", "source", "result"}),
		available: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "device_available",
			Help:      "1 if the last poll returned device state, 0 otherwise.",
		}, []string{"device"}),
		publishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mqtt_publishes_total",
			Help:      "MQTT publishes by kind (state, ack, health) and result.",
		}, []string{"kind", "result"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observePoll(device string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(device, result(err)).Inc()
	m.pollDuration.WithLabelValues(device).Observe(took.Seconds())
}

func (m *Metrics) initFailed(device string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(device, "init_error").Inc()
}

func (m *Metrics) command(device, source string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(device, source, result(err)).Inc()
}

func (m *Metrics) setAvailable(device string, available bool) {
	if m == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	m.available.WithLabelValues(device).Set(v)
}

func (m *Metrics) publish(kind string, err error) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(kind, result(err)).Inc()
}

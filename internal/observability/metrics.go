package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	rounds          prometheus.Counter
	roundsAborted   prometheus.Counter
	probes          *prometheus.CounterVec
	probeLatency    prometheus.Histogram
	inFlight        prometheus.Gauge
	writeFailures   prometheus.Counter
	publishFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uptime_rounds_total",
			Help: "Probing rounds started.",
		}),
		roundsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uptime_rounds_aborted_total",
			Help: "Rounds aborted because the registry was unavailable.",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uptime_probes_total",
			Help: "Completed probes by outcome.",
		}, []string{"status"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uptime_probe_latency_seconds",
			Help:    "Wall-clock latency of probes.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "uptime_probes_in_flight",
			Help: "Probes currently holding a concurrency slot.",
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uptime_metric_write_failures_total",
			Help: "Samples dropped because the time-series write failed.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "uptime_alert_publish_failures_total",
			Help: "Downtime notifications that could not be published.",
		}),
	}
	reg.MustRegister(m.rounds, m.roundsAborted, m.probes, m.probeLatency, m.inFlight, m.writeFailures, m.publishFailures)
	return m
}

func (m *Metrics) RoundStarted() {
	if m != nil {
		m.rounds.Inc()
	}
}

func (m *Metrics) RoundAborted() {
	if m != nil {
		m.roundsAborted.Inc()
	}
}

func (m *Metrics) ProbeStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) ProbeFinished(r domain.ProbeResult) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.probes.WithLabelValues(string(r.Status)).Inc()
	m.probeLatency.Observe(float64(r.LatencyMS) / 1000)
}

// CheckAbandoned releases the in-flight slot of a check that yielded no result.
func (m *Metrics) CheckAbandoned() {
	if m != nil {
		m.inFlight.Dec()
	}
}

func (m *Metrics) WriteFailed() {
	if m != nil {
		m.writeFailures.Inc()
	}
}

func (m *Metrics) PublishFailed() {
	if m != nil {
		m.publishFailures.Inc()
	}
}

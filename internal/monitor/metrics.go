package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes used as label values.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeExhausted = "exhausted"
	OutcomeSession   = "session"
	OutcomeCancelled = "cancelled"
)

// SystemMetrics tracks execution-core performance with Prometheus collectors.
// All methods are safe on a nil receiver so components can run without metrics.
type SystemMetrics struct {
	registry *prometheus.Registry

	submissions      *prometheus.CounterVec
	attempts         prometheus.Histogram
	gatewayLatency   *prometheus.HistogramVec
	trailAdjustments *prometheus.CounterVec
	activeTrails     prometheus.Gauge
	sessionUp        prometheus.Gauge
}

// NewSystemMetrics creates collectors on a private registry.
func NewSystemMetrics() *SystemMetrics {
	reg := prometheus.NewRegistry()
	m := &SystemMetrics{
		registry: reg,
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution",
			Name:      "order_submissions_total",
			Help:      "Order submissions by final outcome.",
		}, []string{"action", "outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "execution",
			Name:      "order_submission_attempts",
			Help:      "Venue round-trips spent per submission.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "execution",
			Name:      "gateway_call_seconds",
			Help:      "Latency of venue gateway calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"op"}),
		trailAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution",
			Name:      "trail_adjustments_total",
			Help:      "Trailing stop adjustments by result.",
		}, []string{"result"}),
		activeTrails: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "execution",
			Name:      "trail_supervisors_active",
			Help:      "Running trailing stop supervisors.",
		}),
		sessionUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "execution",
			Name:      "venue_session_up",
			Help:      "1 when the venue session is established.",
		}),
	}
	reg.MustRegister(
		m.submissions,
		m.attempts,
		m.gatewayLatency,
		m.trailAdjustments,
		m.activeTrails,
		m.sessionUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *SystemMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry (used by tests to gather values).
func (m *SystemMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSubmission records the final outcome of one submission.
func (m *SystemMetrics) ObserveSubmission(action, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(action, outcome).Inc()
	m.attempts.Observe(float64(attempts))
}

// ObserveGateway records the latency of a venue call.
func (m *SystemMetrics) ObserveGateway(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveTrailAdjustment counts an applied or failed stop adjustment.
func (m *SystemMetrics) ObserveTrailAdjustment(applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "failed"
	}
	m.trailAdjustments.WithLabelValues(result).Inc()
}

// TrailStarted and TrailStopped track the number of live supervisors.
func (m *SystemMetrics) TrailStarted() {
	if m == nil {
		return
	}
	m.activeTrails.Inc()
}

func (m *SystemMetrics) TrailStopped() {
	if m == nil {
		return
	}
	m.activeTrails.Dec()
}

// SetSessionUp flips the session gauge.
func (m *SystemMetrics) SetSessionUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.sessionUp.Set(1)
		return
	}
	m.sessionUp.Set(0)
}

// Timer helps measure gateway call duration.
type Timer struct {
	start   time.Time
	op      string
	metrics *SystemMetrics
}

// NewTimer starts timing op.
func (m *SystemMetrics) NewTimer(op string) *Timer {
	return &Timer{start: time.Now(), op: op, metrics: m}
}

// Stop records elapsed time.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.metrics.ObserveGateway(t.op, elapsed)
	return elapsed
}

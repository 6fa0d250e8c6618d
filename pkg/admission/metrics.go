package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the admission pipeline.
type Metrics struct {
	requestsCaptured prometheus.Counter
	requestsSampled  prometheus.Counter
	requestsBlocked  *prometheus.CounterVec
	threatsDetected  *prometheus.CounterVec

	queueDepth     prometheus.Gauge
	droppedCount   prometheus.Gauge
	workersRunning prometheus.Gauge
}

// NewMetrics creates the metric collectors, registered against reg.
// A nil registerer uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		requestsCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "mercator_ganymede_requests_captured_total",
			Help: "Total number of requests evaluated by the admission controller",
		}),

		requestsSampled: factory.NewCounter(prometheus.CounterOpts{
			Name: "mercator_ganymede_requests_sampled_total",
			Help: "Total number of requests selected for deep analysis",
		}),

		requestsBlocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mercator_ganymede_requests_blocked_total",
				Help: "Total number of blocked requests",
			},
			[]string{"reason"},
		),

		threatsDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mercator_ganymede_threats_detected_total",
				Help: "Total number of requests with a non-zero threat score",
			},
			[]string{"level"},
		),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mercator_ganymede_analysis_queue_depth",
			Help: "Current number of items in the analysis queue",
		}),

		droppedCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mercator_ganymede_analysis_dropped_total",
			Help: "Total number of analysis items dropped due to a full queue",
		}),

		workersRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mercator_ganymede_analysis_workers_running",
			Help: "Current number of running analysis workers",
		}),
	}
}

// RecordCapture records one evaluated request.
func (m *Metrics) RecordCapture() {
	m.requestsCaptured.Inc()
}

// RecordBlocked records a blocked request by reason.
func (m *Metrics) RecordBlocked(reason string) {
	m.requestsBlocked.WithLabelValues(reason).Inc()
}

// RecordSampled records a request selected for deep analysis.
func (m *Metrics) RecordSampled() {
	m.requestsSampled.Inc()
}

// RecordThreat records a request that scored above zero.
func (m *Metrics) RecordThreat(level string) {
	m.threatsDetected.WithLabelValues(level).Inc()
}

// UpdatePipeline refreshes the analysis pipeline gauges.
func (m *Metrics) UpdatePipeline(queueDepth int, dropped int64, workersRunning int) {
	m.queueDepth.Set(float64(queueDepth))
	m.droppedCount.Set(float64(dropped))
	m.workersRunning.Set(float64(workersRunning))
}

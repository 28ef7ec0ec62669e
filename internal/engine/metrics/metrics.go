// Package metrics exposes the engine's Prometheus collectors. A nil
// *Metrics is a valid no-op sink so library consumers and tests can
// skip instrumentation entirely.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch results recorded on engine_batches_total.
const (
	ResultCompleted = "completed"
	ResultWaiting   = "waiting"
	ResultFailed    = "failed"
	ResultNoop      = "noop"
)

// Metrics holds every collector the engine writes. All observe methods
// are nil-safe.
type Metrics struct {
	registry *prometheus.Registry

	ticks            prometheus.Counter
	tickDuration     prometheus.Histogram
	claimedPerTick   prometheus.Histogram
	dueBacklog       prometheus.Gauge
	batches          *prometheus.CounterVec
	nodesProcessed   *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	retriesScheduled prometheus.Counter
	enrollments      *prometheus.CounterVec
	messages         *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "followup_ticks_total",
			Help: "Scheduler ticks run.",
		}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "followup_tick_duration_seconds",
			Help:    "Wall-clock duration of one scheduler tick.",
			Buckets: prometheus.DefBuckets,
		}),
		claimedPerTick: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "followup_claimed_per_tick",
			Help:    "Executions claimed by one tick.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		dueBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "followup_due_backlog",
			Help: "Executions due at the last backlog check.",
		}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_batches_total",
			Help: "Execution batches by final status.",
		}, []string{"result"}),
		nodesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_nodes_processed_total",
			Help: "Nodes processed by node type.",
		}, []string{"node_type"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "followup_step_duration_seconds",
			Help:    "Processor invocation duration by node type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node_type"}),
		retriesScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "followup_retries_scheduled_total",
			Help: "Execution retries scheduled after recoverable errors.",
		}),
		enrollments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_enrollments_total",
			Help: "Enrollment lifecycle events.",
		}, []string{"event"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_messages_total",
			Help: "Outbound messages by channel and result.",
		}, []string{"channel", "result"}),
	}
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTick records one tick with its duration and claim count.
func (m *Metrics) ObserveTick(d time.Duration, claimed int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.claimedPerTick.Observe(float64(claimed))
}

// SetDueBacklog records the due-execution backlog.
func (m *Metrics) SetDueBacklog(n int) {
	if m == nil {
		return
	}
	m.dueBacklog.Set(float64(n))
}

// ObserveBatch records a finished execution batch.
func (m *Metrics) ObserveBatch(result string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(result).Inc()
}

// ObserveStep records one processor invocation.
func (m *Metrics) ObserveStep(nodeType string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodesProcessed.WithLabelValues(nodeType).Inc()
	m.stepDuration.WithLabelValues(nodeType).Observe(d.Seconds())
}

// ObserveRetry records a scheduled retry.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retriesScheduled.Inc()
}

// ObserveEnrollment records an enrollment lifecycle event: created,
// completed, stopped, failed.
func (m *Metrics) ObserveEnrollment(event string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(event).Inc()
}

// ObserveMessage records an outbound message outcome.
func (m *Metrics) ObserveMessage(channel, result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(channel, result).Inc()
}

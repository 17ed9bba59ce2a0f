package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/torch-to-flame/walkmate/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Walk IDs are deliberately not used as label values: the engine may process
// arbitrarily many walks over its lifetime and per-walk labels would grow
// cardinality without bound.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	rotations         prometheus.Counter
	rotationSkips     *prometheus.CounterVec
	rotationConflicts prometheus.Counter
	walkErrors        prometheus.Counter
	pairsCurrent      prometheus.Gauge
	storeOpDuration   *prometheus.HistogramVec
	notifications     *prometheus.CounterVec
	notificationSkips *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "walkmate" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "walkmate"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.rotations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "rotation",
			Name:      "commits_total",
			Help:      "Total committed pair rotations.",
		})
		p.rotationSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "rotation",
			Name:      "skips_total",
			Help:      "Total walks skipped in a rotation pass, by reason.",
		}, []string{"reason"})
		p.rotationConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "rotation",
			Name:      "commit_conflicts_total",
			Help:      "Total rotation commits rejected because another writer advanced the walk.",
		})
		p.walkErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "rotation",
			Name:      "walk_errors_total",
			Help:      "Total per-walk failures isolated within a rotation pass.",
		})
		p.pairsCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "rotation",
			Name:      "pairs_current",
			Help:      "Pair count of the most recently committed partition.",
		})
		p.storeOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Walk store operation latency in seconds, by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		}, []string{"op"})
		p.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "notify",
			Name:      "dispatches_total",
			Help:      "Total notification dispatch attempts, by result.",
		}, []string{"result"})
		p.notificationSkips = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "notify",
			Name:      "skips_total",
			Help:      "Total users skipped during notification fan-out, by reason.",
		}, []string{"reason"})

		p.reg.MustRegister(
			p.rotations,
			p.rotationSkips,
			p.rotationConflicts,
			p.walkErrors,
			p.pairsCurrent,
			p.storeOpDuration,
			p.notifications,
			p.notificationSkips,
		)
	})
}

// RecordRotation records a committed rotation and the new partition size.
func (p *PrometheusCollector) RecordRotation(_ string, pairCount int) {
	p.ensureRegistered()
	p.rotations.Inc()
	p.pairsCurrent.Set(float64(pairCount))
}

// RecordRotationSkip records a skipped walk by reason.
func (p *PrometheusCollector) RecordRotationSkip(_ string, reason string) {
	p.ensureRegistered()
	p.rotationSkips.WithLabelValues(reason).Inc()
}

// RecordRotationConflict records a rejected rotation commit.
func (p *PrometheusCollector) RecordRotationConflict(_ string) {
	p.ensureRegistered()
	p.rotationConflicts.Inc()
}

// RecordWalkError records an isolated per-walk failure.
func (p *PrometheusCollector) RecordWalkError(_ string) {
	p.ensureRegistered()
	p.walkErrors.Inc()
}

// RecordStoreOperation records walk store operation latency.
func (p *PrometheusCollector) RecordStoreOperation(op string, seconds float64) {
	p.ensureRegistered()
	p.storeOpDuration.WithLabelValues(op).Observe(seconds)
}

// RecordNotification records a dispatch attempt outcome.
func (p *PrometheusCollector) RecordNotification(success bool) {
	p.ensureRegistered()

	result := "sent"
	if !success {
		result = "failed"
	}
	p.notifications.WithLabelValues(result).Inc()
}

// RecordNotificationSkip records a skipped user by reason.
func (p *PrometheusCollector) RecordNotificationSkip(reason string) {
	p.ensureRegistered()
	p.notificationSkips.WithLabelValues(reason).Inc()
}

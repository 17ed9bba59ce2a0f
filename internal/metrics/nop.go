// Package metrics provides MetricsCollector implementations: a no-op default
// and a Prometheus-backed collector.
package metrics

import "github.com/torch-to-flame/walkmate/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RecordRotation discards the rotation metric.
func (n *NopMetrics) RecordRotation(_ /* walkID */ string, _ /* pairCount */ int) {
	// No-op
}

// RecordRotationSkip discards the rotation skip metric.
func (n *NopMetrics) RecordRotationSkip(_ /* walkID */, _ /* reason */ string) {
	// No-op
}

// RecordRotationConflict discards the rotation conflict metric.
func (n *NopMetrics) RecordRotationConflict(_ /* walkID */ string) {
	// No-op
}

// RecordWalkError discards the walk error metric.
func (n *NopMetrics) RecordWalkError(_ /* walkID */ string) {
	// No-op
}

// RecordStoreOperation discards the store operation latency metric.
func (n *NopMetrics) RecordStoreOperation(_ /* op */ string, _ /* seconds */ float64) {
	// No-op
}

// RecordNotification discards the notification outcome metric.
func (n *NopMetrics) RecordNotification(_ /* success */ bool) {
	// No-op
}

// RecordNotificationSkip discards the notification skip metric.
func (n *NopMetrics) RecordNotificationSkip(_ /* reason */ string) {
	// No-op
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/torch-to-flame/walkmate/types"
)

func TestNopMetrics_ImplementsInterface(t *testing.T) {
	var _ types.MetricsCollector = (*NopMetrics)(nil)
}

func TestNopMetrics_MethodsDoNotPanic(t *testing.T) {
	m := NewNop()

	m.RecordRotation("walk-1", 3)
	m.RecordRotationSkip("walk-1", "not_due")
	m.RecordRotationConflict("walk-1")
	m.RecordWalkError("walk-1")
	m.RecordStoreOperation("commit", 0.01)
	m.RecordNotification(true)
	m.RecordNotificationSkip("no_token")
}

func TestPrometheusCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, "walkmate_test")

	m.RecordRotation("walk-1", 4)
	m.RecordRotation("walk-2", 2)
	m.RecordRotationSkip("walk-1", "no_checked_in_users")
	m.RecordRotationConflict("walk-1")
	m.RecordNotification(true)
	m.RecordNotification(false)
	m.RecordNotificationSkip("no_token")
	m.RecordStoreOperation("list", 0.002)
	m.RecordWalkError("walk-1")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	require.True(t, names["walkmate_test_rotation_commits_total"])
	require.True(t, names["walkmate_test_rotation_pairs_current"])
	require.True(t, names["walkmate_test_notify_dispatches_total"])
}

func TestPrometheusCollector_Defaults(t *testing.T) {
	m := NewPrometheus(prometheus.NewRegistry(), "")
	require.Equal(t, "walkmate", m.namespace)
}

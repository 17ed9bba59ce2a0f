package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods may be called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces so components
// can depend on just the slice they record.
type MetricsCollector interface {
	RotationMetrics
	StoreMetrics
	NotifyMetrics
}

// RotationMetrics defines metrics for the rotation orchestrator.
type RotationMetrics interface {
	// RecordRotation records a committed rotation and the size of the new partition.
	RecordRotation(walkID string, pairCount int)

	// RecordRotationSkip records a walk skipped this cycle.
	//
	// Parameters:
	//   - reason: Skip reason ("not_due", "no_checked_in_users", "not_enough_users")
	RecordRotationSkip(walkID string, reason string)

	// RecordRotationConflict records a rotation commit rejected because the
	// walk document advanced after it was read.
	RecordRotationConflict(walkID string)

	// RecordWalkError records a per-walk failure isolated within a batch.
	RecordWalkError(walkID string)
}

// StoreMetrics defines metrics for walk store operations.
type StoreMetrics interface {
	// RecordStoreOperation records store operation latency.
	//
	// Parameters:
	//   - op: Operation type ("get", "list", "commit", "update", "create")
	//   - seconds: Time taken in seconds
	RecordStoreOperation(op string, seconds float64)
}

// NotifyMetrics defines metrics for notification dispatch.
type NotifyMetrics interface {
	// RecordNotification records a dispatch attempt outcome.
	RecordNotification(success bool)

	// RecordNotificationSkip records a user silently skipped.
	//
	// Parameters:
	//   - reason: Skip reason ("no_token", "lookup_failed")
	RecordNotificationSkip(reason string)
}

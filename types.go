package walkmate

import "github.com/torch-to-flame/walkmate/types"

// Re-exported aliases so callers only need the root import for common types.
type (
	// Walk is a single scheduled walk event. Alias of types.Walk.
	Walk = types.Walk

	// Pair is one pairing unit within a walk. Alias of types.Pair.
	Pair = types.Pair

	// WalkRecord couples a walk with its storage revision. Alias of types.WalkRecord.
	WalkRecord = types.WalkRecord

	// PushMessage is an outbound notification payload. Alias of types.PushMessage.
	PushMessage = types.PushMessage

	// Logger is the leveled logging interface. Alias of types.Logger.
	Logger = types.Logger

	// MetricsCollector aggregates all metric hooks. Alias of types.MetricsCollector.
	MetricsCollector = types.MetricsCollector
)

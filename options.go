package walkmate

import (
	rand "math/rand/v2"
	"time"

	"github.com/torch-to-flame/walkmate/types"
)

type orchestratorOptions struct {
	logger  types.Logger
	metrics types.MetricsCollector
	now     func() time.Time
	rng     *rand.Rand
}

// Option configures an Orchestrator.
type Option func(*orchestratorOptions)

// WithLogger sets the logger. Defaults to a slog-backed logger writing to
// stderr.
func WithLogger(logger types.Logger) Option {
	return func(o *orchestratorOptions) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector. Defaults to a no-op collector.
func WithMetrics(metrics types.MetricsCollector) Option {
	return func(o *orchestratorOptions) {
		o.metrics = metrics
	}
}

// WithNow overrides the clock used for rotation-due checks and commit
// timestamps. Intended for tests.
func WithNow(now func() time.Time) Option {
	return func(o *orchestratorOptions) {
		o.now = now
	}
}

// WithRand sets the random source used to shuffle participants before
// partitioning. A seeded source makes the resulting group structure
// reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(o *orchestratorOptions) {
		o.rng = rng
	}
}

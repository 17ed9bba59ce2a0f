package walkmate

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/torch-to-flame/walkmate/internal/logging"
	"github.com/torch-to-flame/walkmate/internal/metrics"
	"github.com/torch-to-flame/walkmate/internal/pairing"
	"github.com/torch-to-flame/walkmate/types"
)

// WalkStore is the storage surface the orchestrator needs: the active walk
// listing and the revision-conditioned rotation commit. *walkstore.Store
// satisfies it.
type WalkStore interface {
	ActiveWalks(ctx context.Context) ([]types.WalkRecord, error)
	CommitRotation(
		ctx context.Context,
		walkID string,
		pairs []types.Pair,
		newRotation int,
		ts time.Time,
		expectedRevision uint64,
	) error
}

// Notifier fans a committed pairing out to the affected participants.
// *notify.Notifier satisfies it.
type Notifier interface {
	Broadcast(ctx context.Context, walkID string, pairs []types.Pair)
}

// Orchestrator periodically scans active walks and rotates the ones that are
// due. It is safe to run multiple orchestrator instances against the same
// bucket: commits are revision-conditioned, so concurrent instances cannot
// double-rotate a walk.
type Orchestrator struct {
	cfg      Config
	store    WalkStore
	notifier Notifier

	logger  types.Logger
	metrics types.MetricsCollector
	now     func() time.Time

	// rngMu serializes draws from the shared source: overlapping scans from
	// concurrent orchestrator instances or an external trigger firing during a
	// slow scan would otherwise race on the PCG state.
	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an Orchestrator. The config is validated after defaults are
// applied; a nil store or notifier is rejected.
func New(cfg Config, store WalkStore, notifier Notifier, opts ...Option) (*Orchestrator, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if store == nil {
		return nil, ErrStoreRequired
	}

	if notifier == nil {
		return nil, ErrNotifierRequired
	}

	options := orchestratorOptions{
		logger:  logging.NewSlogDefault(),
		metrics: metrics.NewNop(),
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   options.logger,
		metrics:  options.metrics,
		now:      options.now,
		rng:      options.rng,
	}, nil
}

// Start launches the background scan loop. The first scan runs one full
// CheckInterval after Start returns. Returns ErrAlreadyStarted if the
// orchestrator is already running.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return ErrAlreadyStarted
	}

	o.started = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})

	go o.runLoop(ctx, o.stopCh, o.doneCh)

	o.logger.Info("rotation orchestrator started", "check_interval", o.cfg.CheckInterval)

	return nil
}

// Stop terminates the scan loop and waits for an in-flight scan to finish,
// up to the configured ShutdownTimeout or the context deadline, whichever
// comes first.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()

	if !o.started {
		o.mu.Unlock()
		return ErrNotStarted
	}

	o.started = false
	close(o.stopCh)
	doneCh := o.doneCh

	o.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(o.cfg.ShutdownTimeout):
		return fmt.Errorf("timed out waiting for scan loop to stop")
	case <-ctx.Done():
		return ctx.Err()
	}

	o.logger.Info("rotation orchestrator stopped")

	return nil
}

func (o *Orchestrator) runLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(o.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.RunOnce(ctx); err != nil {
				o.logger.Error("rotation scan failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single scan over the active walks and rotates every walk
// that is due. Failure to list the active walks fails the whole invocation;
// failures on individual walks are logged and counted but do not affect the
// other walks in the batch.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	listCtx, cancel := context.WithTimeout(ctx, o.cfg.OperationTimeout)
	walks, err := o.store.ActiveWalks(listCtx)
	cancel()

	if err != nil {
		return fmt.Errorf("failed to list active walks: %w", err)
	}

	o.logger.Debug("scanning active walks", "count", len(walks))

	for _, rec := range walks {
		walkCtx, cancel := context.WithTimeout(ctx, o.cfg.WalkTimeout)
		err := o.rotateWalk(walkCtx, rec)
		cancel()

		if err != nil {
			o.metrics.RecordWalkError(rec.ID)
			o.logger.Error("failed to rotate walk", "walk_id", rec.ID, "error", err)
		}
	}

	return nil
}

// rotateWalk rotates a single walk if it is due. Skips, including losing a
// commit race to another writer, are not errors.
func (o *Orchestrator) rotateWalk(ctx context.Context, rec types.WalkRecord) error {
	now := o.now()

	if !rec.RotationDue(now) {
		return nil
	}

	eligible := o.eligibleUsers(rec.Walk)
	if len(eligible) == 0 {
		o.metrics.RecordRotationSkip(rec.ID, "no_checked_in_users")
		o.logger.Debug("skipping rotation, no checked-in users", "walk_id", rec.ID)

		return nil
	}

	if len(eligible) < 2 {
		o.metrics.RecordRotationSkip(rec.ID, "not_enough_users")
		o.logger.Debug("skipping rotation, not enough checked-in users",
			"walk_id", rec.ID,
			"checked_in", len(eligible),
		)

		return nil
	}

	pairs := o.rotatePairs(eligible)
	newRotation := rec.CurrentRotation + 1

	err := o.store.CommitRotation(ctx, rec.ID, pairs, newRotation, now, rec.Revision)
	if err != nil {
		if errors.Is(err, types.ErrRotationConflict) {
			o.metrics.RecordRotationConflict(rec.ID)
			o.logger.Debug("rotation lost commit race, abandoning", "walk_id", rec.ID)

			return nil
		}

		return err
	}

	o.metrics.RecordRotation(rec.ID, len(pairs))
	o.logger.Info("rotated walk",
		"walk_id", rec.ID,
		"rotation", newRotation,
		"of", rec.NumberOfRotations,
		"pairs", len(pairs),
		"participants", len(eligible),
	)

	o.notifier.Broadcast(ctx, rec.ID, pairs)

	return nil
}

// rotatePairs partitions the eligible users under the rng lock.
func (o *Orchestrator) rotatePairs(eligible []string) []types.Pair {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()

	return pairing.Rotate(o.rng, eligible)
}

// eligibleUsers collects the distinct checked-in users currently present in
// the walk's pairs. Users who appear in a pair but never checked in are
// excluded from the next rotation.
func (o *Orchestrator) eligibleUsers(walk types.Walk) []string {
	seen := make(map[string]struct{})
	eligible := make([]string, 0, len(walk.CheckedInUsers))

	for _, pair := range walk.CheckedInPairs() {
		for _, userID := range pair.Users {
			if _, ok := seen[userID]; ok {
				continue
			}

			seen[userID] = struct{}{}
			eligible = append(eligible, userID)
		}
	}

	return eligible
}

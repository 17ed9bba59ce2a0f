package walkmate

import (
	"context"
	"errors"
	rand "math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torch-to-flame/walkmate/internal/metrics"
	wmtest "github.com/torch-to-flame/walkmate/testing"
	"github.com/torch-to-flame/walkmate/types"
	"github.com/torch-to-flame/walkmate/walkstore"
)

// recordingNotifier captures Broadcast calls instead of publishing.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	walkID string
	pairs  []types.Pair
}

func (n *recordingNotifier) Broadcast(_ context.Context, walkID string, pairs []types.Pair) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, broadcastCall{walkID: walkID, pairs: pairs})
}

func (n *recordingNotifier) broadcasts() []broadcastCall {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]broadcastCall(nil), n.calls...)
}

// recordingMetrics counts skip reasons and conflicts on top of the no-op
// collector.
type recordingMetrics struct {
	*metrics.NopMetrics

	mu        sync.Mutex
	rotations int
	skips     map[string]int
	conflicts int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		NopMetrics: metrics.NewNop(),
		skips:      make(map[string]int),
	}
}

func (m *recordingMetrics) RecordRotation(_ string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotations++
}

func (m *recordingMetrics) RecordRotationSkip(_, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips[reason]++
}

func (m *recordingMetrics) RecordRotationConflict(_ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

type orchTestEnv struct {
	store    *walkstore.Store
	notifier *recordingNotifier
	metrics  *recordingMetrics
}

func newOrchTestEnv(t *testing.T) *orchTestEnv {
	t.Helper()

	_, nc := wmtest.StartEmbeddedNATS(t)
	kv := wmtest.CreateKV(t, nc, "orch-walks-test")

	store := walkstore.New(kv)
	store.SetRand(rand.New(rand.NewPCG(7, 7)))

	return &orchTestEnv{
		store:    store,
		notifier: &recordingNotifier{},
		metrics:  newRecordingMetrics(),
	}
}

func (e *orchTestEnv) newOrchestrator(t *testing.T, now func() time.Time) *Orchestrator {
	t.Helper()

	orch, err := New(DefaultConfig(), e.store, e.notifier,
		WithLogger(wmtest.NewTestLogger(t)),
		WithMetrics(e.metrics),
		WithNow(now),
		WithRand(rand.New(rand.NewPCG(11, 11))),
	)
	require.NoError(t, err)

	return orch
}

// createCheckedInWalk creates a 60-minute, 3-rotation walk and checks in
// every roster member.
func (e *orchTestEnv) createCheckedInWalk(t *testing.T, roster ...string) types.WalkRecord {
	t.Helper()
	ctx := t.Context()

	rec, err := e.store.CreateWalk(ctx, walkstore.CreateWalkParams{
		DurationMinutes:   60,
		NumberOfRotations: 3,
		Roster:            roster,
	})
	require.NoError(t, err)

	for _, userID := range roster {
		require.NoError(t, e.store.CheckIn(ctx, rec.ID, userID))
	}

	return rec
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func usersOf(pairs []types.Pair) []string {
	var users []string
	for _, p := range pairs {
		users = append(users, p.Users...)
	}

	return users
}

func TestOrchestrator_New_Validation(t *testing.T) {
	env := newOrchTestEnv(t)

	_, err := New(DefaultConfig(), nil, env.notifier)
	require.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(DefaultConfig(), env.store, nil)
	require.ErrorIs(t, err, ErrNotifierRequired)

	bad := DefaultConfig()
	bad.CheckInterval = time.Second // below walk timeout
	_, err = New(bad, env.store, env.notifier)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOrchestrator_RunOnce_RotatesDueWalk(t *testing.T) {
	env := newOrchTestEnv(t)
	rec := env.createCheckedInWalk(t, "A", "B", "C", "D")

	// 60 minutes over 3 rotations puts the first boundary 20 minutes in.
	due := rec.LastRotationTime.Add(21 * time.Minute)
	orch := env.newOrchestrator(t, fixedClock(due))

	require.NoError(t, orch.RunOnce(t.Context()))

	got, err := env.store.Get(t.Context(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentRotation)
	assert.True(t, got.LastRotationTime.Equal(due))
	require.Len(t, got.Pairs, 2)
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, usersOf(got.Pairs))

	calls := env.notifier.broadcasts()
	require.Len(t, calls, 1)
	assert.Equal(t, rec.ID, calls[0].walkID)
	assert.Equal(t, got.Pairs, calls[0].pairs)
	assert.Equal(t, 1, env.metrics.rotations)
}

func TestOrchestrator_RunOnce_SkipsWalkNotDue(t *testing.T) {
	env := newOrchTestEnv(t)
	rec := env.createCheckedInWalk(t, "A", "B", "C", "D")

	early := rec.LastRotationTime.Add(19 * time.Minute)
	orch := env.newOrchestrator(t, fixedClock(early))

	require.NoError(t, orch.RunOnce(t.Context()))

	got, err := env.store.Get(t.Context(), rec.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CurrentRotation)
	assert.Empty(t, env.notifier.broadcasts())
}

func TestOrchestrator_RunOnce_SkipsWithoutEnoughUsers(t *testing.T) {
	t.Run("nobody checked in", func(t *testing.T) {
		env := newOrchTestEnv(t)

		rec, err := env.store.CreateWalk(t.Context(), walkstore.CreateWalkParams{
			Roster: []string{"A", "B", "C", "D"},
		})
		require.NoError(t, err)

		orch := env.newOrchestrator(t, fixedClock(rec.LastRotationTime.Add(time.Hour)))
		require.NoError(t, orch.RunOnce(t.Context()))

		got, err := env.store.Get(t.Context(), rec.ID)
		require.NoError(t, err)
		assert.Zero(t, got.CurrentRotation)
		assert.Empty(t, env.notifier.broadcasts())
		assert.Equal(t, 1, env.metrics.skips["no_checked_in_users"])
	})

	t.Run("single user checked in", func(t *testing.T) {
		env := newOrchTestEnv(t)

		rec, err := env.store.CreateWalk(t.Context(), walkstore.CreateWalkParams{
			Roster: []string{"A", "B", "C", "D"},
		})
		require.NoError(t, err)
		require.NoError(t, env.store.CheckIn(t.Context(), rec.ID, "A"))

		orch := env.newOrchestrator(t, fixedClock(rec.LastRotationTime.Add(time.Hour)))
		require.NoError(t, orch.RunOnce(t.Context()))

		got, err := env.store.Get(t.Context(), rec.ID)
		require.NoError(t, err)
		assert.Zero(t, got.CurrentRotation)
		assert.Empty(t, env.notifier.broadcasts())
		assert.Equal(t, 1, env.metrics.skips["not_enough_users"])
	})
}

func TestOrchestrator_RunOnce_ExcludesNotCheckedInUsers(t *testing.T) {
	env := newOrchTestEnv(t)
	ctx := t.Context()

	rec, err := env.store.CreateWalk(ctx, walkstore.CreateWalkParams{
		Roster: []string{"A", "B", "C", "D"},
	})
	require.NoError(t, err)

	for _, userID := range []string{"A", "B", "C"} {
		require.NoError(t, env.store.CheckIn(ctx, rec.ID, userID))
	}

	orch := env.newOrchestrator(t, fixedClock(rec.LastRotationTime.Add(21*time.Minute)))
	require.NoError(t, orch.RunOnce(ctx))

	got, err := env.store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentRotation)
	require.Len(t, got.Pairs, 1)
	assert.True(t, got.Pairs[0].IsTriple)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, got.Pairs[0].Users)
}

func TestOrchestrator_RunOnce_SecondScanDoesNotDoubleRotate(t *testing.T) {
	env := newOrchTestEnv(t)
	rec := env.createCheckedInWalk(t, "A", "B", "C", "D")

	due := rec.LastRotationTime.Add(21 * time.Minute)
	orch := env.newOrchestrator(t, fixedClock(due))

	require.NoError(t, orch.RunOnce(t.Context()))

	// A second scan at the same instant sees the fresh LastRotationTime
	// and leaves the walk alone.
	require.NoError(t, orch.RunOnce(t.Context()))

	got, err := env.store.Get(t.Context(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentRotation)
	require.Len(t, env.notifier.broadcasts(), 1)
}

func TestOrchestrator_RunOnce_StopsAfterFinalRotation(t *testing.T) {
	env := newOrchTestEnv(t)
	rec := env.createCheckedInWalk(t, "A", "B")

	clock := rec.LastRotationTime
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(d)
	}

	orch := env.newOrchestrator(t, now)

	for i := 1; i <= 3; i++ {
		advance(20 * time.Minute)
		require.NoError(t, orch.RunOnce(t.Context()))

		got, err := env.store.Get(t.Context(), rec.ID)
		require.NoError(t, err)
		require.Equal(t, i, got.CurrentRotation)
	}

	// All rotations are spent; further scans are no-ops even long after.
	advance(24 * time.Hour)
	require.NoError(t, orch.RunOnce(t.Context()))

	got, err := env.store.Get(t.Context(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.CurrentRotation)
	assert.Len(t, env.notifier.broadcasts(), 3)
}

// staleStore always serves the same stale record and rejects every commit,
// standing in for a concurrent writer that wins the race first.
type staleStore struct {
	rec     types.WalkRecord
	commits int
}

func (s *staleStore) ActiveWalks(context.Context) ([]types.WalkRecord, error) {
	return []types.WalkRecord{s.rec}, nil
}

func (s *staleStore) CommitRotation(
	_ context.Context, walkID string, _ []types.Pair, _ int, _ time.Time, _ uint64,
) error {
	s.commits++
	return types.ErrRotationConflict
}

func TestOrchestrator_RunOnce_AbandonsOnCommitConflict(t *testing.T) {
	store := &staleStore{
		rec: types.WalkRecord{
			Walk: types.Walk{
				ID:                "w1",
				Active:            true,
				DurationMinutes:   60,
				NumberOfRotations: 3,
				LastRotationTime:  time.Now().Add(-time.Hour),
				CheckedInUsers:    []string{"A", "B"},
				Pairs: []types.Pair{
					{ID: "pair-0", Users: []string{"A", "B"}},
				},
			},
			Revision: 5,
		},
	}

	notifier := &recordingNotifier{}
	rm := newRecordingMetrics()

	orch, err := New(DefaultConfig(), store, notifier,
		WithLogger(wmtest.NewTestLogger(t)),
		WithMetrics(rm),
	)
	require.NoError(t, err)

	// Losing the commit race is a skip, not an invocation failure.
	require.NoError(t, orch.RunOnce(t.Context()))
	assert.Equal(t, 1, store.commits)
	assert.Equal(t, 1, rm.conflicts)
	assert.Empty(t, notifier.broadcasts())
}

// alwaysDueStore serves a walk that is perpetually due and accepts every
// commit, so back-to-back scans keep partitioning.
type alwaysDueStore struct{}

func (alwaysDueStore) ActiveWalks(context.Context) ([]types.WalkRecord, error) {
	return []types.WalkRecord{{
		Walk: types.Walk{
			ID:                "w1",
			Active:            true,
			DurationMinutes:   60,
			NumberOfRotations: 1 << 20,
			LastRotationTime:  time.Now().Add(-time.Hour),
			CheckedInUsers:    []string{"A", "B", "C", "D"},
			Pairs: []types.Pair{
				{ID: "pair-0", Users: []string{"A", "B"}},
				{ID: "pair-1", Users: []string{"C", "D"}},
			},
		},
		Revision: 1,
	}}, nil
}

func (alwaysDueStore) CommitRotation(
	context.Context, string, []types.Pair, int, time.Time, uint64,
) error {
	return nil
}

// Overlapping scans happen when one invocation outlasts the check interval
// or several orchestrator instances share a bucket; both must be able to
// partition at the same time. Run with -race.
func TestOrchestrator_RunOnce_OverlappingScans(t *testing.T) {
	orch, err := New(DefaultConfig(), alwaysDueStore{}, &recordingNotifier{},
		WithLogger(wmtest.NewTestLogger(t)),
	)
	require.NoError(t, err)

	ctx := t.Context()

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := 0; i < 200; i++ {
				assert.NoError(t, orch.RunOnce(ctx))
			}
		}()
	}
	wg.Wait()
}

// failingStore fails the active walk listing.
type failingStore struct{}

func (failingStore) ActiveWalks(context.Context) ([]types.WalkRecord, error) {
	return nil, errors.New("kv unavailable")
}

func (failingStore) CommitRotation(
	context.Context, string, []types.Pair, int, time.Time, uint64,
) error {
	return nil
}

func TestOrchestrator_RunOnce_ListFailureFailsInvocation(t *testing.T) {
	orch, err := New(DefaultConfig(), failingStore{}, &recordingNotifier{},
		WithLogger(wmtest.NewTestLogger(t)),
	)
	require.NoError(t, err)

	require.Error(t, orch.RunOnce(t.Context()))
}

func TestOrchestrator_StartStop(t *testing.T) {
	env := newOrchTestEnv(t)
	rec := env.createCheckedInWalk(t, "A", "B", "C", "D")

	cfg := DefaultConfig()
	cfg.CheckInterval = 50 * time.Millisecond
	cfg.WalkTimeout = 40 * time.Millisecond

	orch, err := New(cfg, env.store, env.notifier,
		WithLogger(wmtest.NewTestLogger(t)),
		WithNow(fixedClock(rec.LastRotationTime.Add(21*time.Minute))),
	)
	require.NoError(t, err)

	ctx := t.Context()
	require.NoError(t, orch.Start(ctx))
	require.ErrorIs(t, orch.Start(ctx), ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		return len(env.notifier.broadcasts()) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, orch.Stop(ctx))
	require.ErrorIs(t, orch.Stop(ctx), ErrNotStarted)
}

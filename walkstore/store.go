package walkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/torch-to-flame/walkmate/internal/kvutil"
	"github.com/torch-to-flame/walkmate/internal/metrics"
	"github.com/torch-to-flame/walkmate/internal/pairing"
	"github.com/torch-to-flame/walkmate/types"
)

// KeyPrefix is the key namespace for walk documents within the bucket.
const KeyPrefix = "walk."

// maxCASAttempts bounds read-modify-write retries for participant mutations.
const maxCASAttempts = 5

// Default walk parameters applied when CreateWalkParams leaves them zero.
const (
	defaultDurationMinutes   = 60
	defaultNumberOfRotations = 3
)

// ErrTooManyConflicts is returned when a participant mutation kept losing the
// revision race and gave up.
var ErrTooManyConflicts = errors.New("too many concurrent walk updates")

// Store reads and writes walk documents in a JetStream KV bucket.
//
// All mutations are conditioned on the KV revision observed at read time.
// Store is safe for concurrent use; the injected random source is not
// goroutine-safe on its own, so draws are serialized through rngMu.
type Store struct {
	kv      jetstream.KeyValue
	metrics types.MetricsCollector

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a Store on top of an existing KV bucket.
func New(kv jetstream.KeyValue) *Store {
	return &Store{
		kv:      kv,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		metrics: metrics.NewNop(),
	}
}

// Open creates or opens the named bucket and returns a Store on top of it.
func Open(ctx context.Context, js jetstream.JetStream, bucket string) (*Store, error) {
	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "walkmate walk documents",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open walk bucket: %w", err)
	}

	return New(kv), nil
}

// SetRand replaces the random source used for creation and join flows.
// Tests inject a seeded source for deterministic initial pairs.
func (s *Store) SetRand(rng *rand.Rand) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	s.rng = rng
}

// rotatePairs partitions users under the rng lock.
func (s *Store) rotatePairs(users []string) []types.Pair {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	return pairing.Rotate(s.rng, users)
}

// placeholderPair builds a 1-user join placeholder under the rng lock.
func (s *Store) placeholderPair(index int, userID string) types.Pair {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	return pairing.NewPair(s.rng, index, []string{userID})
}

// SetMetrics sets the metrics collector for store operation latency.
// Optional; metrics are discarded when unset.
func (s *Store) SetMetrics(m types.MetricsCollector) {
	s.metrics = m
}

// Get fetches one walk by ID.
//
// Returns types.ErrWalkNotFound when no document exists for the ID.
func (s *Store) Get(ctx context.Context, walkID string) (types.WalkRecord, error) {
	defer s.timeOp("get", time.Now())

	entry, err := s.kv.Get(ctx, walkKey(walkID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return types.WalkRecord{}, fmt.Errorf("walk %s: %w", walkID, types.ErrWalkNotFound)
		}

		return types.WalkRecord{}, fmt.Errorf("failed to get walk %s: %w", walkID, err)
	}

	return decodeEntry(entry)
}

// ActiveWalks returns every walk with Active set, ordered by date ascending.
//
// The system convention keeps at most one walk active, but the store makes no
// such assumption; callers receive whatever is actually persisted.
func (s *Store) ActiveWalks(ctx context.Context) ([]types.WalkRecord, error) {
	defer s.timeOp("list", time.Now())

	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list walk keys: %w", err)
	}

	var active []types.WalkRecord

	for key := range lister.Keys() {
		if !strings.HasPrefix(key, KeyPrefix) {
			continue
		}

		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			// The walk may have been purged between listing and reading.
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}

			return nil, fmt.Errorf("failed to get walk %s: %w", key, err)
		}

		rec, err := decodeEntry(entry)
		if err != nil {
			return nil, err
		}

		if rec.Active {
			active = append(active, rec)
		}
	}

	slices.SortFunc(active, func(a, b types.WalkRecord) int {
		return a.Date.Compare(b.Date)
	})

	return active, nil
}

// CommitRotation atomically replaces the walk's partition and advances its
// rotation state: pairs are swapped wholesale, CurrentRotation is set to
// newRotation and LastRotationTime to ts, all in one document write.
//
// The write is conditioned on expectedRevision, the revision the caller
// observed when it read the walk and decided to rotate. If any other writer
// advanced the document since then the commit is rejected with
// types.ErrRotationConflict and no state changes; the caller should abandon
// the attempt, since whoever won the race already rotated this walk.
func (s *Store) CommitRotation(
	ctx context.Context,
	walkID string,
	pairs []types.Pair,
	newRotation int,
	ts time.Time,
	expectedRevision uint64,
) error {
	defer s.timeOp("commit", time.Now())

	entry, err := s.kv.Get(ctx, walkKey(walkID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("walk %s: %w", walkID, types.ErrWalkNotFound)
		}

		return fmt.Errorf("failed to get walk %s: %w", walkID, err)
	}

	// Fast path: the document already moved past the snapshot this commit
	// was decided on.
	if entry.Revision() != expectedRevision {
		return fmt.Errorf("walk %s: %w", walkID, types.ErrRotationConflict)
	}

	rec, err := decodeEntry(entry)
	if err != nil {
		return err
	}

	rec.Pairs = pairs
	rec.CurrentRotation = newRotation
	rec.LastRotationTime = ts

	data, err := json.Marshal(rec.Walk)
	if err != nil {
		return fmt.Errorf("failed to marshal walk %s: %w", walkID, err)
	}

	if _, err := s.kv.Update(ctx, walkKey(walkID), data, expectedRevision); err != nil {
		if isWrongLastRevision(err) {
			return fmt.Errorf("walk %s: %w", walkID, types.ErrRotationConflict)
		}

		return fmt.Errorf("failed to commit rotation for walk %s: %w", walkID, err)
	}

	return nil
}

// CreateWalkParams configures a new walk.
type CreateWalkParams struct {
	// Date is the scheduled start instant. Zero means now.
	Date time.Time

	// DurationMinutes is the total walk length. Zero means 60.
	DurationMinutes int

	// NumberOfRotations is how many reshuffles the walk gets. Zero means 3.
	NumberOfRotations int

	// Roster lists participants to pre-pair at creation. May be empty; the
	// join flow adds latecomers one at a time.
	Roster []string
}

// CreateWalk creates a new active walk, deactivating any currently active
// walks first so the single-active-walk convention holds.
//
// Deactivate-then-activate is one logical transaction enforced here at the
// creation boundary: the KV store cannot update two documents atomically, so
// the new walk is only created after every previously active walk has been
// deactivated. The rotation orchestrator independently tolerates zero or
// multiple active walks should this flow be interrupted midway.
func (s *Store) CreateWalk(ctx context.Context, params CreateWalkParams) (types.WalkRecord, error) {
	defer s.timeOp("create", time.Now())

	if params.DurationMinutes <= 0 {
		params.DurationMinutes = defaultDurationMinutes
	}
	if params.NumberOfRotations <= 0 {
		params.NumberOfRotations = defaultNumberOfRotations
	}

	now := time.Now()
	if params.Date.IsZero() {
		params.Date = now
	}

	active, err := s.ActiveWalks(ctx)
	if err != nil {
		return types.WalkRecord{}, err
	}

	for _, rec := range active {
		if err := s.Deactivate(ctx, rec.ID); err != nil {
			return types.WalkRecord{}, err
		}
	}

	walk := types.Walk{
		ID:                uuid.NewString(),
		Date:              params.Date,
		Active:            true,
		DurationMinutes:   params.DurationMinutes,
		NumberOfRotations: params.NumberOfRotations,
		CurrentRotation:   0,
		LastRotationTime:  now,
		Pairs:             s.rotatePairs(params.Roster),
	}

	data, err := json.Marshal(walk)
	if err != nil {
		return types.WalkRecord{}, fmt.Errorf("failed to marshal walk: %w", err)
	}

	revision, err := s.kv.Create(ctx, walkKey(walk.ID), data)
	if err != nil {
		return types.WalkRecord{}, fmt.Errorf("failed to create walk %s: %w", walk.ID, err)
	}

	return types.WalkRecord{Walk: walk, Revision: revision}, nil
}

// Deactivate clears the walk's Active flag. Idempotent.
func (s *Store) Deactivate(ctx context.Context, walkID string) error {
	return s.mutate(ctx, walkID, func(w *types.Walk) (bool, error) {
		if !w.Active {
			return false, nil
		}
		w.Active = false

		return true, nil
	})
}

// CheckIn records that userID confirmed presence for the walk. The list is
// append-if-absent, so repeated check-ins are no-ops. Check-ins race freely
// with an in-flight rotation: a user checking in after the orchestrator read
// the walk is simply picked up on the next cycle.
func (s *Store) CheckIn(ctx context.Context, walkID, userID string) error {
	return s.mutate(ctx, walkID, func(w *types.Walk) (bool, error) {
		if w.IsCheckedIn(userID) {
			return false, nil
		}
		w.CheckedInUsers = append(w.CheckedInUsers, userID)

		return true, nil
	})
}

// Join places userID into the walk's current partition ahead of the next
// rotation: an existing 1-user placeholder pair is filled if one exists,
// otherwise a new 1-user placeholder is appended for the next joiner to fill.
//
// This is the only path that produces a 1-user pair. The rotation algorithm
// never does; it resolves odd remainders with a triple.
func (s *Store) Join(ctx context.Context, walkID, userID string) error {
	return s.mutate(ctx, walkID, func(w *types.Walk) (bool, error) {
		if w.PairFor(userID) != nil {
			return false, nil
		}

		for i := range w.Pairs {
			if len(w.Pairs[i].Users) == 1 {
				w.Pairs[i].Users = append(w.Pairs[i].Users, userID)

				return true, nil
			}
		}

		w.Pairs = append(w.Pairs, s.placeholderPair(len(w.Pairs), userID))

		return true, nil
	})
}

// WatchWalks opens a live watch over every walk document in the bucket.
//
// The watcher replays current entries first, then delivers a nil entry marker,
// then streams every committed change until stopped. Callers own the watcher
// and must stop it.
func (s *Store) WatchWalks(ctx context.Context) (jetstream.KeyWatcher, error) {
	watcher, err := s.kv.Watch(ctx, KeyPrefix+">")
	if err != nil {
		return nil, fmt.Errorf("failed to watch walks: %w", err)
	}

	return watcher, nil
}

// mutate runs a read-modify-write cycle with revision-conditioned writes,
// re-reading and retrying when a concurrent writer advanced the document.
func (s *Store) mutate(ctx context.Context, walkID string, fn func(*types.Walk) (bool, error)) error {
	defer s.timeOp("update", time.Now())

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		entry, err := s.kv.Get(ctx, walkKey(walkID))
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				return fmt.Errorf("walk %s: %w", walkID, types.ErrWalkNotFound)
			}

			return fmt.Errorf("failed to get walk %s: %w", walkID, err)
		}

		rec, err := decodeEntry(entry)
		if err != nil {
			return err
		}

		changed, err := fn(&rec.Walk)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		data, err := json.Marshal(rec.Walk)
		if err != nil {
			return fmt.Errorf("failed to marshal walk %s: %w", walkID, err)
		}

		_, err = s.kv.Update(ctx, walkKey(walkID), data, entry.Revision())
		if err == nil {
			return nil
		}
		if !isWrongLastRevision(err) {
			return fmt.Errorf("failed to update walk %s: %w", walkID, err)
		}
		// Lost the revision race; re-read and retry.
	}

	return fmt.Errorf("walk %s: %w", walkID, ErrTooManyConflicts)
}

func (s *Store) timeOp(op string, start time.Time) {
	s.metrics.RecordStoreOperation(op, time.Since(start).Seconds())
}

func walkKey(walkID string) string {
	return KeyPrefix + walkID
}

// WalkIDFromKey extracts the walk ID from a bucket key.
func WalkIDFromKey(key string) string {
	return strings.TrimPrefix(key, KeyPrefix)
}

// DecodeWalk decodes a walk document value as stored in the bucket.
func DecodeWalk(data []byte) (types.Walk, error) {
	var walk types.Walk
	if err := json.Unmarshal(data, &walk); err != nil {
		return types.Walk{}, fmt.Errorf("failed to unmarshal walk: %w", err)
	}

	return walk, nil
}

func decodeEntry(entry jetstream.KeyValueEntry) (types.WalkRecord, error) {
	walk, err := DecodeWalk(entry.Value())
	if err != nil {
		return types.WalkRecord{}, fmt.Errorf("walk %s: %w", WalkIDFromKey(entry.Key()), err)
	}

	return types.WalkRecord{Walk: walk, Revision: entry.Revision()}, nil
}

// isWrongLastRevision reports whether a KV update failed because the expected
// revision no longer matches, i.e. another writer advanced the key.
func isWrongLastRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return errors.Is(err, jetstream.ErrKeyExists)
}

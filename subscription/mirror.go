package subscription

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/torch-to-flame/walkmate/internal/logging"
	"github.com/torch-to-flame/walkmate/types"
)

// Snapshot is one mirrored view of the active walk for a specific viewer.
//
// Walk is nil when no walk is active. Pair is nil when the viewer has no pair
// in the current partition (not yet placed, or excluded by check-in
// filtering).
type Snapshot struct {
	Walk *types.Walk
	Pair *types.Pair
}

// WalkWatcher is the store surface the mirror consumes.
type WalkWatcher interface {
	WatchWalks(ctx context.Context) (jetstream.KeyWatcher, error)
}

// WalkIDFromKey and DecodeWalk are supplied by the store; the mirror takes
// them as a decoder to stay independent of the bucket's key layout.
type entryDecoder struct {
	idFromKey func(string) string
	decode    func([]byte) (types.Walk, error)
}

// Mirror maintains a client-side copy of the active walk's pairing state.
type Mirror struct {
	store   WalkWatcher
	decoder entryDecoder
	logger  types.Logger
}

// NewMirror creates a mirror over the given store.
//
// idFromKey and decode translate raw watch entries into walks; pass
// walkstore.WalkIDFromKey and walkstore.DecodeWalk. A nil logger falls back
// to the default slog logger.
func NewMirror(
	store WalkWatcher,
	idFromKey func(string) string,
	decode func([]byte) (types.Walk, error),
	logger types.Logger,
) *Mirror {
	if logger == nil {
		logger = logging.NewSlogDefault()
	}

	return &Mirror{
		store:   store,
		decoder: entryDecoder{idFromKey: idFromKey, decode: decode},
		logger:  logger,
	}
}

// Observe starts mirroring for one viewer.
//
// The returned channel delivers a first snapshot as soon as the store's
// initial replay completes (possibly {nil, nil} when no walk is active), then
// a fresh snapshot after every committed change. The channel closes when ctx
// is cancelled.
func (m *Mirror) Observe(ctx context.Context, userID string) (<-chan Snapshot, error) {
	watcher, err := m.store.WatchWalks(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan Snapshot, 1)
	go m.run(ctx, watcher, userID, ch)

	return ch, nil
}

// run is the mirror's single reactive loop: it folds watch entries into a
// local map of walk documents and re-emits the viewer's snapshot on change.
func (m *Mirror) run(ctx context.Context, watcher jetstream.KeyWatcher, userID string, ch chan Snapshot) {
	defer close(ch)
	defer func() {
		if err := watcher.Stop(); err != nil {
			m.logger.Error("failed to stop walk watcher", "error", err)
		}
	}()

	walks := make(map[string]types.Walk)
	replayDone := false

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("walk mirror stopping (context cancelled)", "user_id", userID)
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				// The client library closes the channel when the watcher
				// stops; without this check a closed channel spins the loop
				// on nil receives.
				m.logger.Debug("walk mirror stopping (watch closed)", "user_id", userID)
				return
			}

			if entry == nil {
				// Nil entry marks the end of the initial replay; emit the
				// first snapshot, even when nothing is active.
				replayDone = true
				m.emit(ch, walks, userID)

				continue
			}

			walkID := m.decoder.idFromKey(entry.Key())

			switch entry.Operation() {
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				delete(walks, walkID)
			default:
				walk, err := m.decoder.decode(entry.Value())
				if err != nil {
					m.logger.Error("failed to decode walk update", "walk_id", walkID, "error", err)

					continue
				}
				walks[walkID] = walk
			}

			if replayDone {
				m.emit(ch, walks, userID)
			}
		}
	}
}

func (m *Mirror) emit(ch chan Snapshot, walks map[string]types.Walk, userID string) {
	snap := Snapshot{}

	if walk := activeWalk(walks); walk != nil {
		snap.Walk = walk
		snap.Pair = walk.PairFor(userID)
	}

	// Latest-wins: replace a pending undelivered snapshot instead of
	// blocking the watch loop on a slow consumer.
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// activeWalk picks the walk to mirror. The system convention keeps one walk
// active; when the convention is violated the latest-dated one wins, matching
// what the scheduler would rotate last.
func activeWalk(walks map[string]types.Walk) *types.Walk {
	var picked *types.Walk

	for id := range walks {
		walk := walks[id]
		if !walk.Active {
			continue
		}
		if picked == nil || walk.Date.After(picked.Date) {
			w := walk
			picked = &w
		}
	}

	return picked
}

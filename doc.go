// Package walkmate implements the pairing and rotation engine for scheduled
// group walks: participants check in on arrival and are re-paired with a
// rotating partner or group every few minutes for the duration of the walk.
//
// # Quick Start
//
//	import (
//	    "github.com/torch-to-flame/walkmate"
//	    "github.com/torch-to-flame/walkmate/notify"
//	    "github.com/torch-to-flame/walkmate/walkstore"
//	)
//
//	store, _ := walkstore.Open(ctx, js, cfg.KVBuckets.WalkBucket)
//	dir, _ := notify.OpenKVDirectory(ctx, js, cfg.KVBuckets.UserBucket)
//	notifier := notify.New(nc, dir, cfg.Notify.Subject)
//
//	orch, _ := walkmate.New(cfg, store, notifier)
//	if err := orch.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer orch.Stop(context.Background())
//
// # Architecture
//
// The engine is split along its I/O boundaries:
//
//   - internal/pairing: the pure partition algorithm (pairs plus one triple
//     for an odd remainder)
//   - types: the walk document, the rotation-due policy, shared interfaces
//   - walkstore: walk documents in a NATS JetStream KV bucket, with
//     revision-conditioned commits and a live watch feed
//   - notify: fire-and-forget pairing-change notifications over NATS
//   - subscription: client-side mirror of the active walk's pairing state
//
// The Orchestrator drives rotations on a fixed interval: it fetches active
// walks, skips the ones not yet due, partitions the checked-in participants,
// commits the new pairs with a compare-and-swap write, and fans out
// notifications. Two overlapping invocations cannot double-rotate a walk: the
// commit is conditioned on the document revision observed at read time, so
// the loser of the race is rejected and abandons its attempt.
package walkmate

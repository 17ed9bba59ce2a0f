// Package walkstore persists walk documents in a NATS JetStream KeyValue
// bucket and exposes the store surface the rotation engine needs: active-walk
// listing, revision-conditioned rotation commits, participant check-in and
// join flows, and a live watch feed for client mirrors.
//
// Every walk is one KV entry (key "walk.<id>", value JSON). Reads return a
// WalkRecord carrying the KV revision, and every write is conditioned on the
// revision the writer observed, so concurrent writers never silently
// overwrite each other: the rotation orchestrator's commit loses the race
// with ErrRotationConflict, and participant mutations re-read and retry.
package walkstore

// Package subscription mirrors the active walk's pairing state into a client.
//
// A Mirror watches the walk bucket and recomputes the viewer's own pair on
// every committed change, so a client always displays the last successfully
// committed state and nothing else. There is no polling: the mirror suspends
// on the store's push feed. Delivery to the consumer is latest-wins; a slow
// consumer sees the newest snapshot, never a backlog of stale ones.
package subscription

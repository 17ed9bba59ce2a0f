// Package notify dispatches pairing-change notifications to participants.
//
// Delivery is fire-and-forget and at-most-once from the engine's perspective:
// messages are published to a NATS subject consumed by the push gateway, with
// no retry and no delivery confirmation. Failures are logged and never
// surfaced to the rotation orchestrator, so a notification problem can never
// roll back or block a rotation commit that already succeeded.
package notify

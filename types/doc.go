// Package types provides core type definitions and interfaces for the walkmate engine.
//
// This package contains shared types that are used across multiple packages in the
// walkmate module. By keeping these types in a separate package, we avoid import
// cycles between the root walkmate package and its internal implementations.
//
// Key types:
//   - Walk: One scheduled group-walk event with its pairing state
//   - Pair: A group of 2 (or 3) participants walking together for one rotation window
//   - WalkRecord: A Walk together with the store revision it was read at
//   - PushMessage: Payload handed to the push-messaging transport
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types

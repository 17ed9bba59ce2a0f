// Package testing provides test utilities for the walkmate engine.
//
// It offers helpers for setting up test environments, particularly embedded
// NATS servers for integration testing, following Go's convention of a
// dedicated testing-utilities package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single in-process NATS server with JetStream
//   - CreateKV: Convenience wrapper for KV bucket creation
//
// Example usage:
//
//	import (
//	    "testing"
//	    wmtest "github.com/torch-to-flame/walkmate/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := wmtest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing

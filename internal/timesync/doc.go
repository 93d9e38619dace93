// Package timesync provides the clock abstraction used for frame expiry.
//
// Reassembly timeouts are evaluated against an injected Clock rather than a
// background timer, so expiry is deterministic under test. System reads the
// wall clock; Manual only moves when told to.
package timesync

// Package session drives one connection to a sensor peripheral.
//
// State machine:
//
//	Idle ──► Connecting ──► StreamingDimensions ──► Streaming ──► Stopping ──► Stopped
//	              │                  │                  │
//	              └──────────────────┴──────────────────┴──► Failed
//
// Connecting opens the link, StreamingDimensions reads the matrix shape once,
// Streaming feeds every data notification through a pipeline into the
// delivery queue. Stop or context cancellation moves to Stopping, which
// unsubscribes, disconnects, discards partial frames and drains the queue.
// A transport error in any non-terminal state ends in Failed after the same
// best-effort cleanup. There is no automatic reconnect; a Driver runs once.
package session

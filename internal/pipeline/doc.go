// Package pipeline wires the per-notification stages together.
//
// A raw notification from the transport goes through:
//
//	raw bytes ──► fragment.Parse ──► reassembler.Submit ──► matrix.Decode ──► handoff.Queue
//	                  │                    │    │                 │
//	               malformed          out of  expired        size mismatch
//	                  ▼                 range    ▼                 ▼
//	               counted,            counted, counted,        counted,
//	               dropped             dropped  reported        dropped
//
// HandleNotification is safe to call from the transport's callback goroutine.
// It never blocks on I/O and never waits for the consumer. Per-fragment and
// per-frame failures are counted, logged and handed to the Observer; they
// never stop the stream.
package pipeline

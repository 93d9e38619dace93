// Package handoff moves decoded frames from the notification callback to a
// consumer loop running on its own schedule.
//
// The producer side (Push) never blocks and never waits on the consumer.
// Two policies are provided:
//
//   - Latest: a single-slot mailbox. A new value overwrites one the consumer
//     has not taken yet, and the overwrite is counted as a drop. This is the
//     right choice for a live display that only cares about current state.
//   - Ring: a bounded ring that drops the oldest value on overflow, for
//     consumers that want recent history.
//
// Both are safe for one producer and one consumer running concurrently, and
// tolerate multiple producers.
package handoff

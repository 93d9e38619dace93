// Package transport declares the radio-link collaborator the session driver
// talks to: discovery, connect/teardown and characteristic read/subscribe.
//
// Concrete implementations live outside this package. The sim subpackage
// provides an in-memory peripheral used by tests, the demo binary and replay.
package transport

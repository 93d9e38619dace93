// Package sim is an in-memory peripheral implementing the transport
// interfaces. It encodes generated matrices, splits them into fragments and
// delivers them on its own goroutine, optionally dropping, shuffling and
// duplicating fragments to mimic a lossy radio link.
package sim

package handoff

import (
	"fmt"
	"strings"
)

// Policy selects a Queue implementation.
type Policy string

const (
	// PolicyLatest keeps only the newest value.
	PolicyLatest Policy = "latest"
	// PolicyRing keeps up to capacity values and drops the oldest on overflow.
	PolicyRing Policy = "ring"
)

// Queue is the bounded conduit between producer and consumer.
type Queue[T any] interface {
	// Push stores v without blocking. No-op after Close.
	Push(v T)
	// DrainLatest returns the newest value and discards anything older, counting it as dropped.
	DrainLatest() (T, bool)
	// PopAll returns every held value, oldest first.
	PopAll() []T
	// Len returns the number of held values.
	Len() int
	// Dropped returns how many values were discarded before being consumed.
	Dropped() uint64
	// Clear discards held values without counting them as drops and returns how many were held.
	Clear() int
	// Close stops accepting values and wakes blocked waiters.
	Close()
}

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyLatest, "":
		return PolicyLatest, nil
	case PolicyRing:
		return PolicyRing, nil
	default:
		return "", fmt.Errorf("unknown queue policy %q (expected latest or ring)", s)
	}
}

// New builds a queue for the given policy. Capacity is ignored for PolicyLatest.
func New[T any](policy Policy, capacity int) (Queue[T], error) {
	switch policy {
	case PolicyLatest, "":
		return NewLatest[T](), nil
	case PolicyRing:
		return NewRing[T](capacity)
	default:
		return nil, fmt.Errorf("unknown queue policy %q", policy)
	}
}

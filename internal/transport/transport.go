package transport

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
)

// ErrDeviceNotFound is returned by Connect when no device has the requested address.
var ErrDeviceNotFound = errors.New("device not found")

// NotifyFunc receives the raw bytes of one notification.
// Implementations call it from their own goroutine and must not hold locks
// the callback could need.
type NotifyFunc func(data []byte)

// DeviceDescriptor identifies a discovered peripheral.
type DeviceDescriptor struct {
	Address  string
	Name     string
	Services []uuid.UUID
}

// HasService reports whether the device advertises the given service.
func (d DeviceDescriptor) HasService(id uuid.UUID) bool {
	return slices.Contains(d.Services, id)
}

// Transport discovers and connects to peripherals.
type Transport interface {
	Discover(ctx context.Context) ([]DeviceDescriptor, error)
	Connect(ctx context.Context, address string) (Session, error)
}

// Session is one live connection to a peripheral.
type Session interface {
	Read(ctx context.Context, characteristic uuid.UUID) ([]byte, error)
	Subscribe(ctx context.Context, characteristic uuid.UUID, fn NotifyFunc) error
	Unsubscribe(ctx context.Context, characteristic uuid.UUID) error
	Disconnect(ctx context.Context) error
}

// FailureNotifier is implemented by sessions that report link loss asynchronously.
// The channel receives at most one error and is never closed.
type FailureNotifier interface {
	Failed() <-chan error
}

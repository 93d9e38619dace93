package devices

import (
	"context"
	"fmt"
	"time"

	"github.com/op/go-logging"

	"github.com/mrzor/matrix-streamer/internal/timesync"
	"github.com/mrzor/matrix-streamer/internal/transport"
)

var log = logging.MustGetLogger("devices")

// DefaultScanInterval is the pause between discovery passes.
const DefaultScanInterval = 500 * time.Millisecond

// Match picks a device out of the registry once it is acceptable.
type Match func(r *Registry) (Device, bool)

// WithService matches the first device advertising the registry's service.
func WithService() Match {
	return func(r *Registry) (Device, bool) {
		return r.FirstWithService()
	}
}

// WithAddress matches the device at address.
func WithAddress(address string) Match {
	return func(r *Registry) (Device, bool) {
		return r.Get(address)
	}
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithInterval sets the pause between passes.
func WithInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTTL sets how long an unseen device stays in the registry.
func WithTTL(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock sets the clock used to stamp and prune sightings.
func WithClock(c timesync.Clock) ScannerOption {
	return func(s *Scanner) {
		if c != nil {
			s.clock = c
		}
	}
}

// Scanner runs discovery passes into a Registry, removing devices that
// stop showing up.
type Scanner struct {
	transport transport.Transport
	registry  *Registry
	interval  time.Duration
	ttl       time.Duration
	clock     timesync.Clock
}

// NewScanner creates a scanner feeding registry from t.
func NewScanner(t transport.Transport, registry *Registry, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		transport: t,
		registry:  registry,
		interval:  DefaultScanInterval,
		ttl:       DefaultTTL,
		clock:     timesync.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the scanner feeds.
func (s *Scanner) Registry() *Registry {
	return s.registry
}

// Pass runs one discovery, merges the results and prunes stale devices.
// Returns the pruned addresses.
func (s *Scanner) Pass(ctx context.Context) ([]string, error) {
	found, err := s.transport.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering devices: %w", err)
	}

	now := s.clock.Now()
	for _, desc := range found {
		if s.registry.Observe(desc, now) {
			log.Debugf("found %s (%s)", desc.Address, desc.Name)
		}
	}

	removed := s.registry.Prune(now, s.ttl)
	for _, addr := range removed {
		log.Debugf("lost %s", addr)
	}
	return removed, nil
}

// Find runs passes until match accepts a device or ctx is done.
func (s *Scanner) Find(ctx context.Context, match Match) (Device, error) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Pass(ctx); err != nil {
			return Device{}, err
		}
		if dev, ok := match(s.registry); ok {
			return dev, nil
		}

		select {
		case <-ctx.Done():
			return Device{}, fmt.Errorf("%w: %v", transport.ErrDeviceNotFound, ctx.Err())
		case <-ticker.C:
		}
	}
}

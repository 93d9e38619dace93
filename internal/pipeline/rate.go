package pipeline

import (
	"sync"
	"time"

	"github.com/mrzor/matrix-streamer/internal/timesync"
)

// DefaultRateWindow is the reporting interval for delivered-frame rate.
const DefaultRateWindow = 5 * time.Second

// RateMeter measures frames per second over fixed windows.
type RateMeter struct {
	mu     sync.Mutex
	clock  timesync.Clock
	window time.Duration
	start  time.Time
	count  uint64
}

// NewRateMeter starts a meter at the clock's current time.
func NewRateMeter(clock timesync.Clock, window time.Duration) *RateMeter {
	if clock == nil {
		clock = timesync.System{}
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateMeter{
		clock:  clock,
		window: window,
		start:  clock.Now(),
	}
}

// Window returns the reporting interval.
func (r *RateMeter) Window() time.Duration {
	return r.window
}

// Add counts n events.
func (r *RateMeter) Add(n int) {
	r.mu.Lock()
	r.count += uint64(n)
	r.mu.Unlock()
}

// Sample returns the rate since the last sample once a full window has
// elapsed, and starts a new window. ok is false while the window is open.
func (r *RateMeter) Sample() (perSecond float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	elapsed := now.Sub(r.start)
	if elapsed < r.window {
		return 0, false
	}

	perSecond = float64(r.count) / elapsed.Seconds()
	r.start = now
	r.count = 0
	return perSecond, true
}

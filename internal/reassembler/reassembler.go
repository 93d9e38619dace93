package reassembler

import (
	"errors"
	"fmt"
	"time"

	"github.com/mrzor/matrix-streamer/internal/fragment"
)

// DefaultTimeout is how long a partial frame may wait for its missing parts.
const DefaultTimeout = time.Second

// ErrPartOutOfRange is returned for fragments whose part index is not below the part count.
var ErrPartOutOfRange = errors.New("part index out of range")

// pendingFrame holds the parts received so far for one frame id.
type pendingFrame struct {
	expected  int
	slots     [][]byte
	filled    []bool
	received  int
	firstSeen time.Time
}

// Expired describes a partial frame discarded by expiry.
type Expired struct {
	FrameID  uint8
	Received int
	Expected int
	Age      time.Duration
}

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithExpiryHook registers a function called once for every expired frame.
func WithExpiryHook(hook func(Expired)) Option {
	return func(r *Reassembler) {
		r.onExpire = hook
	}
}

// Reassembler tracks in-flight frames keyed by frame id.
type Reassembler struct {
	frames   map[uint8]*pendingFrame
	timeout  time.Duration
	onExpire func(Expired)
}

// New creates a reassembler. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration, opts ...Option) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Reassembler{
		frames:  make(map[uint8]*pendingFrame),
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Timeout returns the configured expiry timeout.
func (r *Reassembler) Timeout() time.Duration {
	return r.timeout
}

// Submit stores one fragment.
// Returns the complete payload when this fragment fills the last empty slot,
// nil while parts are still missing, or ErrPartOutOfRange without touching state.
func (r *Reassembler) Submit(f fragment.Fragment, now time.Time) ([]byte, error) {
	r.Expire(now)

	if !f.Valid() {
		return nil, fmt.Errorf("%w: frame %d part %d of %d", ErrPartOutOfRange, f.FrameID, f.PartIndex, f.TotalParts)
	}

	frame := r.frames[f.FrameID]
	if frame == nil {
		// First-seen part count is authoritative for the frame's lifetime
		expected := int(f.TotalParts)
		frame = &pendingFrame{
			expected:  expected,
			slots:     make([][]byte, expected),
			filled:    make([]bool, expected),
			firstSeen: now,
		}
		r.frames[f.FrameID] = frame
	}

	idx := int(f.PartIndex)
	if idx >= frame.expected {
		// Later fragment claims more parts than the first one did
		return nil, fmt.Errorf("%w: frame %d part %d of %d (first seen with %d)",
			ErrPartOutOfRange, f.FrameID, f.PartIndex, f.TotalParts, frame.expected)
	}

	// Last write wins for duplicate parts
	frame.slots[idx] = f.Payload
	if !frame.filled[idx] {
		frame.filled[idx] = true
		frame.received++
	}

	if frame.received < frame.expected {
		return nil, nil
	}

	payload := assemble(frame)
	delete(r.frames, f.FrameID)
	return payload, nil
}

// assemble concatenates slots in part order.
// This is a pure function over a fully filled frame.
func assemble(frame *pendingFrame) []byte {
	size := 0
	for _, slot := range frame.slots {
		size += len(slot)
	}

	payload := make([]byte, 0, size)
	for _, slot := range frame.slots {
		payload = append(payload, slot...)
	}
	return payload
}

// Expire removes every frame first seen more than the timeout before now.
// Returns the number of frames discarded.
func (r *Reassembler) Expire(now time.Time) int {
	expired := 0

	for id, frame := range r.frames {
		age := now.Sub(frame.firstSeen)
		if age <= r.timeout {
			continue
		}
		delete(r.frames, id)
		expired++
		if r.onExpire != nil {
			r.onExpire(Expired{
				FrameID:  id,
				Received: frame.received,
				Expected: frame.expected,
				Age:      age,
			})
		}
	}

	return expired
}

// Pending returns the number of frames still waiting for parts.
func (r *Reassembler) Pending() int {
	return len(r.frames)
}

// Reset discards all pending frames without reporting them as expired.
// Returns the number of frames released.
func (r *Reassembler) Reset() int {
	n := len(r.frames)
	r.frames = make(map[uint8]*pendingFrame)
	return n
}

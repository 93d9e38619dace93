package fragment

import (
	"errors"
	"fmt"
)

// HeaderSize is the number of header bytes preceding each fragment payload.
const HeaderSize = 3

// MaxParts is the largest part count a header can express.
const MaxParts = 255

var (
	// ErrMalformedFragment is returned when a notification is too short to hold a header.
	ErrMalformedFragment = errors.New("malformed fragment")
	// ErrTooManyParts is returned by Split when a payload needs more than MaxParts fragments.
	ErrTooManyParts = errors.New("payload needs too many parts")
)

// Fragment is one received packet carrying part of a larger frame.
type Fragment struct {
	FrameID    uint8
	TotalParts uint8
	PartIndex  uint8
	Payload    []byte
}

// Parse decodes a raw notification into a Fragment.
// The payload is copied so callers may reuse the input buffer.
func Parse(b []byte) (Fragment, error) {
	if len(b) < HeaderSize {
		return Fragment{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedFragment, len(b), HeaderSize)
	}

	payload := make([]byte, len(b)-HeaderSize)
	copy(payload, b[HeaderSize:])

	return Fragment{
		FrameID:    b[0],
		TotalParts: b[1],
		PartIndex:  b[2],
		Payload:    payload,
	}, nil
}

// Valid reports whether the part index addresses a slot of the frame.
func (f Fragment) Valid() bool {
	return f.PartIndex < f.TotalParts
}

// Encode returns the wire representation of the fragment.
func (f Fragment) Encode() []byte {
	out := make([]byte, HeaderSize+len(f.Payload))
	out[0] = f.FrameID
	out[1] = f.TotalParts
	out[2] = f.PartIndex
	copy(out[HeaderSize:], f.Payload)
	return out
}

// String implements fmt.Stringer for log output.
func (f Fragment) String() string {
	return fmt.Sprintf("frame=%d part=%d/%d len=%d", f.FrameID, f.PartIndex, f.TotalParts, len(f.Payload))
}

// Split cuts a frame payload into fragments carrying at most maxPayload bytes each.
// An empty payload produces a single empty part so the frame can still complete.
func Split(frameID uint8, payload []byte, maxPayload int) ([]Fragment, error) {
	if maxPayload < 1 {
		return nil, fmt.Errorf("max payload must be positive, got %d", maxPayload)
	}

	numParts := len(payload) / maxPayload
	if len(payload)%maxPayload != 0 || len(payload) == 0 {
		numParts++
	}
	if numParts > MaxParts {
		return nil, fmt.Errorf("%w: %d bytes at %d per part is %d parts", ErrTooManyParts, len(payload), maxPayload, numParts)
	}

	fragments := make([]Fragment, 0, numParts)
	for i := 0; i < numParts; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(payload) {
			end = len(payload)
		}

		part := make([]byte, end-start)
		copy(part, payload[start:end])

		fragments = append(fragments, Fragment{
			FrameID:    frameID,
			TotalParts: uint8(numParts),
			PartIndex:  uint8(i),
			Payload:    part,
		})
	}

	return fragments, nil
}

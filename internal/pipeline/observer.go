package pipeline

import (
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/reassembler"
)

// Observer receives pipeline events.
// Methods are called on the notification goroutine and must not block.
// FrameExpired is called while the pipeline lock is held, so it must not
// call back into the Pipeline.
type Observer interface {
	FragmentRejected(raw []byte, err error)
	FrameExpired(e reassembler.Expired)
	DecodeFailed(frameID uint8, err error)
	FrameDelivered(m *matrix.Matrix)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) FragmentRejected([]byte, error) {}
func (NopObserver) FrameExpired(reassembler.Expired) {}
func (NopObserver) DecodeFailed(uint8, error) {}
func (NopObserver) FrameDelivered(*matrix.Matrix) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (os Observers) FragmentRejected(raw []byte, err error) {
	for _, o := range os {
		o.FragmentRejected(raw, err)
	}
}

func (os Observers) FrameExpired(e reassembler.Expired) {
	for _, o := range os {
		o.FrameExpired(e)
	}
}

func (os Observers) DecodeFailed(frameID uint8, err error) {
	for _, o := range os {
		o.DecodeFailed(frameID, err)
	}
}

func (os Observers) FrameDelivered(m *matrix.Matrix) {
	for _, o := range os {
		o.FrameDelivered(m)
	}
}

package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/matrix-streamer/internal/fragment"
	"github.com/mrzor/matrix-streamer/internal/handoff"
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/reassembler"
	"github.com/mrzor/matrix-streamer/internal/timesync"
)

func init() {
	logging.SetLevel(logging.ERROR, "pipeline")
}

type recorder struct {
	mu        sync.Mutex
	rejected  []error
	expired   []reassembler.Expired
	decodeErr []error
	delivered []*matrix.Matrix
}

func (r *recorder) FragmentRejected(_ []byte, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, err)
}

func (r *recorder) FrameExpired(e reassembler.Expired) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, e)
}

func (r *recorder) DecodeFailed(_ uint8, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decodeErr = append(r.decodeErr, err)
}

func (r *recorder) FrameDelivered(m *matrix.Matrix) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, m)
}

func raw(frameID, total, index byte, payload ...byte) []byte {
	return append([]byte{frameID, total, index}, payload...)
}

func newTestPipeline(t *testing.T, clock timesync.Clock, opts ...Option) (*Pipeline, *handoff.Latest[*matrix.Matrix]) {
	t.Helper()
	q := handoff.NewLatest[*matrix.Matrix]()
	p, err := New(Config{
		Dims:    matrix.Dimensions{Rows: 2, Columns: 3},
		Width:   1,
		Timeout: time.Second,
		Clock:   clock,
	}, q, opts...)
	require.NoError(t, err)
	return p, q
}

func TestNewValidation(t *testing.T) {
	q := handoff.NewLatest[*matrix.Matrix]()

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"zero dims", Config{Width: 1}, matrix.ErrBadDimensions},
		{"bad width", Config{Dims: matrix.Dimensions{Rows: 1, Columns: 1}, Width: 3}, matrix.ErrUnsupportedWidth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, q)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := New(Config{Dims: matrix.Dimensions{Rows: 1, Columns: 1}, Width: 1}, nil)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	q := handoff.NewLatest[*matrix.Matrix]()
	p, err := New(Config{Dims: matrix.Dimensions{Rows: 1, Columns: 1}, Width: 2}, q)
	require.NoError(t, err)
	assert.Equal(t, reassembler.DefaultTimeout, p.Config().Timeout)
	assert.NotNil(t, p.Config().Clock)
}

func TestHandleNotificationDelivers(t *testing.T) {
	clock := timesync.NewManual(time.Unix(1000, 0))
	rec := &recorder{}
	p, q := newTestPipeline(t, clock, WithObserver(rec))

	p.HandleNotification(raw(9, 2, 1, 4, 5, 6))
	assert.Equal(t, 0, q.Len())
	p.HandleNotification(raw(9, 2, 0, 1, 2, 3))

	m, ok := q.DrainLatest()
	require.True(t, ok)
	assert.Equal(t, [][]uint16{{1, 2, 3}, {4, 5, 6}}, m.Values)
	assert.Len(t, rec.delivered, 1)

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Notifications)
	assert.Equal(t, uint64(1), stats.FramesCompleted)
	assert.Equal(t, uint64(1), stats.FramesDelivered)
	assert.Equal(t, 0, stats.Pending)
}

func TestHandleNotificationDecodeMismatch(t *testing.T) {
	clock := timesync.NewManual(time.Unix(1000, 0))
	rec := &recorder{}
	p, q := newTestPipeline(t, clock, WithObserver(rec))

	p.HandleNotification(raw(1, 1, 0, 1, 2, 3, 4, 5))

	assert.Equal(t, 0, q.Len())
	require.Len(t, rec.decodeErr, 1)
	var de *matrix.DecodeError
	require.True(t, errors.As(rec.decodeErr[0], &de))
	assert.Equal(t, 6, de.Expected)
	assert.Equal(t, 5, de.Actual)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.FramesCompleted)
	assert.Equal(t, uint64(1), stats.DecodeErrors)
	assert.Equal(t, uint64(0), stats.FramesDelivered)
}

func TestHandleNotificationRejects(t *testing.T) {
	clock := timesync.NewManual(time.Unix(1000, 0))
	rec := &recorder{}
	p, q := newTestPipeline(t, clock, WithObserver(rec))

	p.HandleNotification([]byte{1, 2})
	p.HandleNotification(raw(1, 2, 2, 0xAA))
	p.HandleNotification(raw(1, 0, 0))

	assert.Equal(t, 0, q.Len())
	require.Len(t, rec.rejected, 3)
	assert.ErrorIs(t, rec.rejected[0], fragment.ErrMalformedFragment)
	assert.ErrorIs(t, rec.rejected[1], reassembler.ErrPartOutOfRange)
	assert.ErrorIs(t, rec.rejected[2], reassembler.ErrPartOutOfRange)

	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.Notifications)
	assert.Equal(t, uint64(1), stats.FragmentsMalformed)
	assert.Equal(t, uint64(2), stats.PartsOutOfRange)
	assert.Equal(t, 0, stats.Pending)
}

func TestTickExpires(t *testing.T) {
	clock := timesync.NewManual(time.Unix(1000, 0))
	rec := &recorder{}
	p, _ := newTestPipeline(t, clock, WithObserver(rec))

	p.HandleNotification(raw(3, 2, 0, 1, 2, 3))
	assert.Equal(t, 1, p.Stats().Pending)

	clock.Advance(time.Second)
	assert.Equal(t, 0, p.Tick())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, p.Tick())

	require.Len(t, rec.expired, 1)
	assert.Equal(t, uint8(3), rec.expired[0].FrameID)
	assert.Equal(t, 1, rec.expired[0].Received)
	assert.Equal(t, 2, rec.expired[0].Expected)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.FramesExpired)
	assert.Equal(t, 0, stats.Pending)
}

func TestResetDoesNotReportExpiry(t *testing.T) {
	clock := timesync.NewManual(time.Unix(1000, 0))
	rec := &recorder{}
	p, _ := newTestPipeline(t, clock, WithObserver(rec))

	p.HandleNotification(raw(3, 2, 0, 1, 2, 3))
	p.HandleNotification(raw(4, 2, 0, 1, 2, 3))
	assert.Equal(t, 2, p.Reset())
	assert.Empty(t, rec.expired)
	assert.Equal(t, 0, p.Stats().Pending)
}

func TestQueueDropsInStats(t *testing.T) {
	clock := timesync.NewManual(time.Unix(1000, 0))
	p, q := newTestPipeline(t, clock)

	for id := byte(0); id < 3; id++ {
		p.HandleNotification(raw(id, 1, 0, id, 2, 3, 4, 5, 6))
	}

	m, ok := q.DrainLatest()
	require.True(t, ok)
	assert.Equal(t, uint16(2), m.Values[0][0])
	assert.Equal(t, uint64(2), p.Stats().QueueDropped)
}

func TestConcurrentNotifications(t *testing.T) {
	clock := timesync.NewManual(time.Unix(1000, 0))
	meter := NewRateMeter(clock, time.Second)
	p, q := newTestPipeline(t, clock, WithRateMeter(meter))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := byte(w*50 + i)
				p.HandleNotification(raw(id, 2, 1, 4, 5, 6))
				p.HandleNotification(raw(id, 2, 0, 1, 2, 3))
			}
		}(w)
	}
	wg.Wait()

	stats := p.Stats()
	assert.Equal(t, uint64(400), stats.Notifications)
	assert.Equal(t, uint64(200), stats.FramesDelivered)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, uint64(200), uint64(q.Len())+stats.QueueDropped)

	clock.Advance(2 * time.Second)
	rate, ok := meter.Sample()
	require.True(t, ok)
	assert.InDelta(t, 100.0, rate, 0.001)
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := Observers{a, b}

	obs.FrameDelivered(&matrix.Matrix{})
	obs.DecodeFailed(1, errors.New("x"))
	obs.FragmentRejected(nil, errors.New("y"))
	obs.FrameExpired(reassembler.Expired{FrameID: 2})

	for _, r := range []*recorder{a, b} {
		assert.Len(t, r.delivered, 1)
		assert.Len(t, r.decodeErr, 1)
		assert.Len(t, r.rejected, 1)
		assert.Len(t, r.expired, 1)
	}
}

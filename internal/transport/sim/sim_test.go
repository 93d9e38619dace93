package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/matrix-streamer/internal/fragment"
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/reassembler"
	"github.com/mrzor/matrix-streamer/internal/transport"
)

func init() {
	logging.SetLevel(logging.ERROR, "sim")
}

type collector struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *collector) add(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, b)
}

func (c *collector) snapshot() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.msgs...)
}

func fastConfig() Config {
	return Config{
		Address:       "SIM:01",
		Dims:          matrix.Dimensions{Rows: 4, Columns: 5},
		Width:         2,
		MaxPayload:    7,
		FrameInterval: time.Millisecond,
		Frames:        3,
	}
}

func TestNewDefaults(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	cfg := p.Config()
	assert.Equal(t, DefaultConfig().Address, cfg.Address)
	assert.Equal(t, matrix.Dimensions{Rows: 12, Columns: 12}, cfg.Dims)
	assert.NotNil(t, cfg.Generator)

	_, err = New(Config{LossRate: 1})
	assert.Error(t, err)
}

func TestDiscoverAndConnect(t *testing.T) {
	ctx := context.Background()
	p, err := New(fastConfig())
	require.NoError(t, err)

	devs, err := p.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "SIM:01", devs[0].Address)
	assert.True(t, devs[0].HasService(transport.ServiceUUID))

	_, err = p.Connect(ctx, "nope")
	assert.ErrorIs(t, err, transport.ErrDeviceNotFound)

	s, err := p.Connect(ctx, "SIM:01")
	require.NoError(t, err)

	_, err = p.Connect(ctx, "SIM:01")
	assert.Error(t, err, "second connect while connected")

	dims, err := s.Read(ctx, transport.DimensionsUUID)
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, dims)

	_, err = s.Read(ctx, transport.DataUUID)
	assert.Error(t, err)

	require.NoError(t, s.Disconnect(ctx))
	_, err = s.Read(ctx, transport.DimensionsUUID)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = p.Connect(ctx, "SIM:01")
	assert.NoError(t, err, "reconnect after disconnect")
}

func TestReadError(t *testing.T) {
	ctx := context.Background()
	p, err := New(fastConfig())
	require.NoError(t, err)
	s, err := p.Connect(ctx, "SIM:01")
	require.NoError(t, err)

	boom := errors.New("gatt read failed")
	p.SetReadError(boom)
	_, err = s.Read(ctx, transport.DimensionsUUID)
	assert.ErrorIs(t, err, boom)

	p.SetReadError(nil)
	_, err = s.Read(ctx, transport.DimensionsUUID)
	assert.NoError(t, err)
}

func TestStreamReassembles(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.Shuffle = true
	cfg.Duplicate = true
	cfg.Seed = 7
	p, err := New(cfg)
	require.NoError(t, err)

	s, err := p.Connect(ctx, cfg.Address)
	require.NoError(t, err)

	c := &collector{}
	require.NoError(t, s.Subscribe(ctx, transport.DataUUID, c.add))
	assert.Error(t, s.Subscribe(ctx, transport.DataUUID, c.add))

	require.Eventually(t, func() bool { return p.Sent() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, s.Unsubscribe(ctx, transport.DataUUID))

	r := reassembler.New(time.Minute)
	now := time.Now()
	var frames [][]byte
	for _, raw := range c.snapshot() {
		f, err := fragment.Parse(raw)
		require.NoError(t, err)
		out, err := r.Submit(f, now)
		require.NoError(t, err)
		if out != nil {
			frames = append(frames, out)
		}
	}

	// duplicates arriving after completion may open a fresh partial entry
	require.GreaterOrEqual(t, len(frames), 3)
	for i, payload := range frames[:3] {
		m, err := matrix.Decode(payload, cfg.Dims, cfg.Width)
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, cfg.Dims, m.Dimensions())
	}
}

func TestLossDropsFragments(t *testing.T) {
	cfg := fastConfig()
	cfg.LossRate = 0.5
	cfg.Seed = 1
	p, err := New(cfg)
	require.NoError(t, err)

	// 4*5*2 = 40 bytes at 7 per part = 6 parts per frame
	total := 0
	for i := 0; i < 50; i++ {
		out, err := p.nextFrame()
		require.NoError(t, err)
		total += len(out)
	}
	assert.Less(t, total, 50*6)
	assert.Greater(t, total, 0)
}

func TestFailNotifies(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.Frames = 0
	p, err := New(cfg)
	require.NoError(t, err)

	s, err := p.Connect(ctx, cfg.Address)
	require.NoError(t, err)
	require.NoError(t, s.Subscribe(ctx, transport.DataUUID, func([]byte) {}))

	fn, ok := s.(transport.FailureNotifier)
	require.True(t, ok)

	boom := errors.New("link lost")
	p.Fail(boom)
	p.Fail(errors.New("ignored"))

	select {
	case err := <-fn.Failed():
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("no failure reported")
	}

	_, err = s.Read(ctx, transport.DimensionsUUID)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, s.Disconnect(ctx))
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	cfg := fastConfig()
	cfg.FrameInterval = time.Hour
	p, err := New(cfg)
	require.NoError(t, err)

	assert.False(t, p.Notify([]byte{1}))

	s, err := p.Connect(ctx, cfg.Address)
	require.NoError(t, err)
	assert.False(t, p.Notify([]byte{1}))

	c := &collector{}
	require.NoError(t, s.Subscribe(ctx, transport.DataUUID, c.add))
	assert.True(t, p.Notify([]byte{1, 1, 0}))
	assert.Equal(t, [][]byte{{1, 1, 0}}, c.snapshot())
	require.NoError(t, s.Disconnect(ctx))
}

func TestWave(t *testing.T) {
	for _, width := range []int{1, 2} {
		gen := Wave(width)
		m := gen(0, matrix.Dimensions{Rows: 8, Columns: 8})
		_, err := matrix.Encode(m, width)
		assert.NoError(t, err, "width %d", width)
		assert.Greater(t, m.Total(), 0)
	}
}

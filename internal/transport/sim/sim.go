package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"

	"github.com/mrzor/matrix-streamer/internal/fragment"
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/transport"
)

var log = logging.MustGetLogger("sim")

// ErrNotConnected is returned by session calls after Disconnect or a failure.
var ErrNotConnected = errors.New("peripheral not connected")

// Generator produces the matrix for the seq-th frame.
type Generator func(seq uint64, dims matrix.Dimensions) *matrix.Matrix

// Config describes a simulated peripheral.
type Config struct {
	Address       string
	Name          string
	Dims          matrix.Dimensions
	Width         int
	MaxPayload    int           // payload bytes per fragment, excluding the header
	FrameInterval time.Duration // time between frames
	Frames        uint64        // stop after this many frames; 0 streams until unsubscribed
	LossRate      float64       // probability of dropping each fragment
	Shuffle       bool
	Duplicate     bool
	Seed          uint64
	Generator     Generator
}

// DefaultConfig returns a 12x12 single-byte sensor streaming at 30 Hz.
func DefaultConfig() Config {
	return Config{
		Address:       "SIM:00:00:00:00:01",
		Name:          "Pressure Matrix (sim)",
		Dims:          matrix.Dimensions{Rows: 12, Columns: 12},
		Width:         1,
		MaxPayload:    20,
		FrameInterval: time.Second / 30,
	}
}

// Peripheral is a simulated device. It implements transport.Transport.
type Peripheral struct {
	cfg Config

	mu      sync.Mutex
	rng     *rand.Rand
	link    *Link
	readErr error
	seq     uint64
	sent    uint64
	frameID uint8
}

// New creates a peripheral. Zero-valued fields fall back to DefaultConfig.
func New(cfg Config) (*Peripheral, error) {
	def := DefaultConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Dims.Cells() == 0 {
		cfg.Dims = def.Dims
	}
	if cfg.Width == 0 {
		cfg.Width = def.Width
	}
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = def.MaxPayload
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.Generator == nil {
		cfg.Generator = Wave(cfg.Width)
	}
	if cfg.LossRate < 0 || cfg.LossRate >= 1 {
		return nil, fmt.Errorf("loss rate must be in [0, 1), got %v", cfg.LossRate)
	}

	return &Peripheral{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Config returns the effective configuration.
func (p *Peripheral) Config() Config {
	return p.cfg
}

// Descriptor returns what discovery reports for this peripheral.
func (p *Peripheral) Descriptor() transport.DeviceDescriptor {
	return transport.DeviceDescriptor{
		Address:  p.cfg.Address,
		Name:     p.cfg.Name,
		Services: []uuid.UUID{transport.ServiceUUID},
	}
}

// Discover reports the peripheral.
func (p *Peripheral) Discover(ctx context.Context) ([]transport.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []transport.DeviceDescriptor{p.Descriptor()}, nil
}

// Connect opens a link if address matches.
func (p *Peripheral) Connect(ctx context.Context, address string) (transport.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if address != p.cfg.Address {
		return nil, fmt.Errorf("%w: %s", transport.ErrDeviceNotFound, address)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.link != nil && p.link.isConnected() {
		return nil, fmt.Errorf("peripheral %s already connected", address)
	}
	p.link = newLink(p)
	log.Debugf("connected to %s", address)
	return p.link, nil
}

// SetReadError makes subsequent characteristic reads fail with err. nil clears it.
func (p *Peripheral) SetReadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// Fail simulates link loss on the active connection.
func (p *Peripheral) Fail(err error) {
	p.mu.Lock()
	link := p.link
	p.mu.Unlock()

	if link != nil {
		link.fail(err)
	}
}

// Notify delivers raw bytes to the data subscriber synchronously.
// Returns false if nothing is subscribed.
func (p *Peripheral) Notify(raw []byte) bool {
	p.mu.Lock()
	link := p.link
	p.mu.Unlock()

	if link == nil {
		return false
	}
	return link.deliver(raw)
}

// Sent returns the number of frames fully handed to subscribers.
func (p *Peripheral) Sent() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *Peripheral) markSent() {
	p.mu.Lock()
	p.sent++
	p.mu.Unlock()
}

func (p *Peripheral) read(characteristic uuid.UUID) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readErr != nil {
		return nil, p.readErr
	}
	if characteristic == transport.DimensionsUUID {
		return p.cfg.Dims.Encode(), nil
	}
	return nil, fmt.Errorf("characteristic %s is not readable", characteristic)
}

// nextFrame encodes the next matrix and returns its notifications after
// loss, shuffle and duplication are applied.
func (p *Peripheral) nextFrame() ([][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.cfg.Generator(p.seq, p.cfg.Dims)
	p.seq++
	id := p.frameID
	p.frameID++

	payload, err := matrix.Encode(m, p.cfg.Width)
	if err != nil {
		return nil, err
	}
	parts, err := fragment.Split(id, payload, p.cfg.MaxPayload)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(parts))
	for _, f := range parts {
		if p.cfg.LossRate > 0 && p.rng.Float64() < p.cfg.LossRate {
			continue
		}
		b := f.Encode()
		out = append(out, b)
		if p.cfg.Duplicate && p.rng.IntN(4) == 0 {
			out = append(out, b)
		}
	}
	if p.cfg.Shuffle {
		p.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out, nil
}

// Wave returns a generator of a moving radial pressure blob.
func Wave(width int) Generator {
	peak := 255.0
	if width == 2 {
		peak = 4095.0
	}
	return func(seq uint64, dims matrix.Dimensions) *matrix.Matrix {
		m := matrix.New(dims)
		phase := float64(seq) / 15
		cx := (float64(dims.Columns) - 1) * (0.5 + 0.35*math.Sin(phase))
		cy := (float64(dims.Rows) - 1) * (0.5 + 0.35*math.Cos(phase))
		radius := math.Max(1, float64(min(dims.Rows, dims.Columns))/3)
		for r := range m.Values {
			for c := range m.Values[r] {
				d := math.Hypot(float64(c)-cx, float64(r)-cy) / radius
				m.Values[r][c] = uint16(peak * math.Exp(-d*d))
			}
		}
		return m
	}
}

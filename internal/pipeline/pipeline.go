package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"

	"github.com/mrzor/matrix-streamer/internal/fragment"
	"github.com/mrzor/matrix-streamer/internal/handoff"
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/reassembler"
	"github.com/mrzor/matrix-streamer/internal/timesync"
)

var log = logging.MustGetLogger("pipeline")

// Counter indexes into the pipeline's counter array.
const (
	CounterNotifications = iota
	CounterFragmentsMalformed
	CounterPartsOutOfRange
	CounterFramesCompleted
	CounterFramesExpired
	CounterDecodeErrors
	CounterFramesDelivered
	CounterMax
)

// Config holds the per-session parameters of a pipeline.
type Config struct {
	Dims    matrix.Dimensions
	Width   int
	Timeout time.Duration
	Clock   timesync.Clock
}

// Validate checks that the config can decode frames.
func (c Config) Validate() error {
	if c.Dims.Cells() == 0 {
		return fmt.Errorf("%w: %s", matrix.ErrBadDimensions, c.Dims)
	}
	if c.Width != 1 && c.Width != 2 {
		return fmt.Errorf("%w: %d", matrix.ErrUnsupportedWidth, c.Width)
	}
	return nil
}

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	Notifications      uint64
	FragmentsMalformed uint64
	PartsOutOfRange    uint64
	FramesCompleted    uint64
	FramesExpired      uint64
	DecodeErrors       uint64
	FramesDelivered    uint64
	QueueDropped       uint64
	Pending            int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers an observer for pipeline events.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithRateMeter counts delivered frames into m.
func WithRateMeter(m *RateMeter) Option {
	return func(p *Pipeline) {
		p.rate = m
	}
}

// Pipeline turns raw notifications into decoded matrices on a queue.
type Pipeline struct {
	cfg      Config
	queue    handoff.Queue[*matrix.Matrix]
	observer Observer
	rate     *RateMeter

	mu  sync.Mutex // guards asm
	asm *reassembler.Reassembler

	counters [CounterMax]atomic.Uint64
}

// New builds a pipeline that delivers into queue.
func New(cfg Config, queue handoff.Queue[*matrix.Matrix], opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, errors.New("pipeline requires a queue")
	}
	if cfg.Clock == nil {
		cfg.Clock = timesync.System{}
	}

	p := &Pipeline{
		cfg:      cfg,
		queue:    queue,
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.asm = reassembler.New(cfg.Timeout, reassembler.WithExpiryHook(p.onExpired))
	p.cfg.Timeout = p.asm.Timeout()
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// HandleNotification processes one raw notification.
func (p *Pipeline) HandleNotification(raw []byte) {
	p.counters[CounterNotifications].Add(1)

	frag, err := fragment.Parse(raw)
	if err != nil {
		p.counters[CounterFragmentsMalformed].Add(1)
		log.Warningf("dropping notification: %v", err)
		p.observer.FragmentRejected(raw, err)
		return
	}

	p.mu.Lock()
	payload, err := p.asm.Submit(frag, p.cfg.Clock.Now())
	p.mu.Unlock()

	if err != nil {
		p.counters[CounterPartsOutOfRange].Add(1)
		log.Warningf("dropping fragment: %v", err)
		p.observer.FragmentRejected(raw, err)
		return
	}
	if payload == nil {
		return
	}

	p.counters[CounterFramesCompleted].Add(1)
	log.Debugf("frame %d complete (%d bytes)", frag.FrameID, len(payload))

	m, err := matrix.Decode(payload, p.cfg.Dims, p.cfg.Width)
	if err != nil {
		p.counters[CounterDecodeErrors].Add(1)
		log.Warningf("dropping frame %d: %v", frag.FrameID, err)
		p.observer.DecodeFailed(frag.FrameID, err)
		return
	}

	p.queue.Push(m)
	p.counters[CounterFramesDelivered].Add(1)
	if p.rate != nil {
		p.rate.Add(1)
	}
	p.observer.FrameDelivered(m)
}

// Tick expires stale partial frames against the clock.
// Used when notifications stop arriving and Submit no longer runs expiry.
func (p *Pipeline) Tick() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asm.Expire(p.cfg.Clock.Now())
}

// Reset discards all partial frames without reporting them as expired.
func (p *Pipeline) Reset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.asm.Reset()
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	pending := p.asm.Pending()
	p.mu.Unlock()

	return Stats{
		Notifications:      p.counters[CounterNotifications].Load(),
		FragmentsMalformed: p.counters[CounterFragmentsMalformed].Load(),
		PartsOutOfRange:    p.counters[CounterPartsOutOfRange].Load(),
		FramesCompleted:    p.counters[CounterFramesCompleted].Load(),
		FramesExpired:      p.counters[CounterFramesExpired].Load(),
		DecodeErrors:       p.counters[CounterDecodeErrors].Load(),
		FramesDelivered:    p.counters[CounterFramesDelivered].Load(),
		QueueDropped:       p.queue.Dropped(),
		Pending:            pending,
	}
}

// onExpired runs with p.mu held.
func (p *Pipeline) onExpired(e reassembler.Expired) {
	p.counters[CounterFramesExpired].Add(1)
	log.Debugf("frame %d expired with %d/%d parts after %s", e.FrameID, e.Received, e.Expected, e.Age)
	p.observer.FrameExpired(e)
}

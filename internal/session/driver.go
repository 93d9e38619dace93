package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/mrzor/matrix-streamer/internal/handoff"
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/pipeline"
	"github.com/mrzor/matrix-streamer/internal/timesync"
	"github.com/mrzor/matrix-streamer/internal/transport"
)

var log = logging.MustGetLogger("session")

// cleanupTimeout bounds teardown calls made after the run context is done.
const cleanupTimeout = 5 * time.Second

// Config holds the stream parameters of a session.
type Config struct {
	Width      int
	Timeout    time.Duration // reassembly timeout
	Clock      timesync.Clock
	Queue      handoff.Policy
	Capacity   int
	ExpiryTick time.Duration // 0 disables the periodic expiry tick
	RateWindow time.Duration // 0 selects pipeline.DefaultRateWindow
}

// Option configures a Driver.
type Option func(*Driver)

// WithStateHook registers fn to be called after every state transition.
func WithStateHook(fn func(from, to State)) Option {
	return func(d *Driver) {
		d.stateHooks = append(d.stateHooks, fn)
	}
}

// WithObserver forwards pipeline events to o.
func WithObserver(o pipeline.Observer) Option {
	return func(d *Driver) {
		d.observers = append(d.observers, o)
	}
}

// Driver runs one session against a transport.
type Driver struct {
	transport  transport.Transport
	cfg        Config
	queue      handoff.Queue[*matrix.Matrix]
	observers  pipeline.Observers
	stateHooks []func(from, to State)

	mu    sync.Mutex
	state State
	pipe  *pipeline.Pipeline
	meter *pipeline.RateMeter
	dims  matrix.Dimensions

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an idle driver and its delivery queue.
func New(t transport.Transport, cfg Config, opts ...Option) (*Driver, error) {
	if t == nil {
		return nil, fmt.Errorf("session requires a transport")
	}
	if cfg.Width == 0 {
		cfg.Width = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = timesync.System{}
	}
	q, err := handoff.New[*matrix.Matrix](cfg.Queue, cfg.Capacity)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		transport: t,
		cfg:       cfg,
		queue:     q,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Queue returns the queue decoded matrices are delivered to.
func (d *Driver) Queue() handoff.Queue[*matrix.Matrix] {
	return d.queue
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Dimensions returns the matrix shape read from the peripheral, or zero before it was read.
func (d *Driver) Dimensions() matrix.Dimensions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dims
}

// Stats returns the pipeline counters, or zero before streaming began.
func (d *Driver) Stats() pipeline.Stats {
	d.mu.Lock()
	pipe := d.pipe
	d.mu.Unlock()

	if pipe == nil {
		return pipeline.Stats{QueueDropped: d.queue.Dropped()}
	}
	return pipe.Stats()
}

// Stop ends the session. Safe to call more than once and from any goroutine.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
}

// Run connects to address and streams until ctx is done, Stop is called, or
// the transport fails. Returns nil on a requested stop.
func (d *Driver) Run(ctx context.Context, address string) error {
	d.mu.Lock()
	if d.state != Idle {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.state = Connecting
	d.mu.Unlock()
	d.notifyState(Idle, Connecting)

	log.Infof("connecting to %s", address)

	sess, err := d.transport.Connect(ctx, address)
	if err != nil {
		d.setState(Failed)
		return &TransportError{Op: "connect", Err: err}
	}

	d.setState(StreamingDimensions)
	pipe, err := d.startStream(ctx, sess)
	if err != nil {
		d.teardown(sess, nil, false)
		d.setState(Failed)
		return err
	}

	d.setState(Streaming)
	log.Infof("streaming %s frames from %s", d.Dimensions(), address)

	streamErr := d.stream(ctx, sess, pipe)
	if streamErr != nil {
		d.teardown(sess, pipe, true)
		d.setState(Failed)
		return streamErr
	}

	d.setState(Stopping)
	d.teardown(sess, pipe, true)
	d.setState(Stopped)
	return nil
}

// startStream reads the dimensions, builds the pipeline and subscribes to data.
func (d *Driver) startStream(ctx context.Context, sess transport.Session) (*pipeline.Pipeline, error) {
	raw, err := sess.Read(ctx, transport.DimensionsUUID)
	if err != nil {
		return nil, &TransportError{Op: "read dimensions", Err: err}
	}
	dims, err := matrix.DecodeDimensions(raw)
	if err != nil {
		return nil, fmt.Errorf("reading dimensions: %w", err)
	}

	meter := pipeline.NewRateMeter(d.cfg.Clock, d.cfg.RateWindow)
	opts := []pipeline.Option{pipeline.WithRateMeter(meter)}
	if len(d.observers) > 0 {
		opts = append(opts, pipeline.WithObserver(d.observers))
	}
	pipe, err := pipeline.New(pipeline.Config{
		Dims:    dims,
		Width:   d.cfg.Width,
		Timeout: d.cfg.Timeout,
		Clock:   d.cfg.Clock,
	}, d.queue, opts...)
	if err != nil {
		return nil, fmt.Errorf("building pipeline for %s: %w", dims, err)
	}

	d.mu.Lock()
	d.dims = dims
	d.pipe = pipe
	d.meter = meter
	d.mu.Unlock()

	if err := sess.Subscribe(ctx, transport.DataUUID, pipe.HandleNotification); err != nil {
		return nil, &TransportError{Op: "subscribe", Err: err}
	}
	return pipe, nil
}

// stream blocks until stop, cancellation or link failure.
func (d *Driver) stream(ctx context.Context, sess transport.Session, pipe *pipeline.Pipeline) error {
	var failed <-chan error
	if fn, ok := sess.(transport.FailureNotifier); ok {
		failed = fn.Failed()
	}

	var expiryC <-chan time.Time
	if d.cfg.ExpiryTick > 0 {
		ticker := time.NewTicker(d.cfg.ExpiryTick)
		defer ticker.Stop()
		expiryC = ticker.C
	}

	d.mu.Lock()
	meter := d.meter
	d.mu.Unlock()
	rateTicker := time.NewTicker(meter.Window())
	defer rateTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("session cancelled: %v", ctx.Err())
			return nil
		case <-d.stopCh:
			log.Infof("session stop requested")
			return nil
		case err := <-failed:
			log.Errorf("link failed: %v", err)
			return &TransportError{Op: "stream", Err: err}
		case <-expiryC:
			if n := pipe.Tick(); n > 0 {
				log.Debugf("expired %d partial frames", n)
			}
		case <-rateTicker.C:
			if rate, ok := meter.Sample(); ok {
				log.Infof("data rate: %.2f frames/s", rate)
			}
		}
	}
}

// teardown releases the link and discards undelivered state. Errors are logged, not returned.
func (d *Driver) teardown(sess transport.Session, pipe *pipeline.Pipeline, subscribed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if subscribed {
		if err := sess.Unsubscribe(ctx, transport.DataUUID); err != nil {
			log.Warningf("unsubscribe: %v", err)
		}
	}
	if err := sess.Disconnect(ctx); err != nil {
		log.Warningf("disconnect: %v", err)
	}

	partial := 0
	if pipe != nil {
		partial = pipe.Reset()
	}
	queued := d.queue.Clear()
	d.queue.Close()
	log.Debugf("teardown discarded %d partial frames and %d queued matrices", partial, queued)
}

func (d *Driver) setState(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()

	d.notifyState(from, to)
}

func (d *Driver) notifyState(from, to State) {
	log.Debugf("state %s -> %s", from, to)
	for _, fn := range d.stateHooks {
		fn(from, to)
	}
}

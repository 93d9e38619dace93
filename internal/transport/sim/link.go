package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrzor/matrix-streamer/internal/transport"
)

// Link is one connection to a Peripheral.
// It implements transport.Session and transport.FailureNotifier.
type Link struct {
	p *Peripheral

	mu        sync.Mutex
	connected bool
	notify    transport.NotifyFunc
	stopCh    chan struct{}
	wg        sync.WaitGroup

	failed   chan error
	failOnce sync.Once
}

func newLink(p *Peripheral) *Link {
	return &Link{
		p:         p,
		connected: true,
		failed:    make(chan error, 1),
	}
}

func (l *Link) isConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Failed reports asynchronous link loss.
func (l *Link) Failed() <-chan error {
	return l.failed
}

// Read returns the value of a readable characteristic.
func (l *Link) Read(ctx context.Context, characteristic uuid.UUID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.isConnected() {
		return nil, ErrNotConnected
	}
	return l.p.read(characteristic)
}

// Subscribe starts streaming frames to fn. Only the data characteristic notifies.
func (l *Link) Subscribe(ctx context.Context, characteristic uuid.UUID, fn transport.NotifyFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if characteristic != transport.DataUUID {
		return fmt.Errorf("characteristic %s does not notify", characteristic)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return ErrNotConnected
	}
	if l.notify != nil {
		return fmt.Errorf("characteristic %s already subscribed", characteristic)
	}

	l.notify = fn
	l.stopCh = make(chan struct{})
	l.wg.Add(1)
	go l.stream(l.stopCh, fn)
	return nil
}

// Unsubscribe stops the stream and waits for the delivery goroutine to exit.
func (l *Link) Unsubscribe(_ context.Context, characteristic uuid.UUID) error {
	if characteristic != transport.DataUUID {
		return fmt.Errorf("characteristic %s does not notify", characteristic)
	}
	l.stopStream()
	return nil
}

// Disconnect stops streaming and closes the link. Idempotent.
func (l *Link) Disconnect(_ context.Context) error {
	l.stopStream()

	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()

	log.Debugf("disconnected from %s", l.p.cfg.Address)
	return nil
}

func (l *Link) stopStream() {
	l.mu.Lock()
	stopCh := l.stopCh
	l.stopCh = nil
	l.notify = nil
	l.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	l.wg.Wait()
}

func (l *Link) fail(err error) {
	l.failOnce.Do(func() {
		log.Warningf("link to %s failed: %v", l.p.cfg.Address, err)

		l.mu.Lock()
		l.connected = false
		stopCh := l.stopCh
		l.stopCh = nil
		l.notify = nil
		l.mu.Unlock()

		if stopCh != nil {
			close(stopCh)
		}
		l.failed <- err
	})
}

func (l *Link) deliver(raw []byte) bool {
	l.mu.Lock()
	fn := l.notify
	l.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(raw)
	return true
}

func (l *Link) stream(stopCh <-chan struct{}, fn transport.NotifyFunc) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.p.cfg.FrameInterval)
	defer ticker.Stop()

	var sent uint64
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		notifications, err := l.p.nextFrame()
		if err != nil {
			log.Errorf("generating frame: %v", err)
			continue
		}
		for _, raw := range notifications {
			select {
			case <-stopCh:
				return
			default:
			}
			fn(raw)
		}

		l.p.markSent()
		sent++
		if l.p.cfg.Frames > 0 && sent >= l.p.cfg.Frames {
			return
		}
	}
}

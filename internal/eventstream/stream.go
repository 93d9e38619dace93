package eventstream

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("eventstream")

// Handler receives one decoded notification.
type Handler func(raw []byte)

// Option configures a Stream.
type Option func(*Stream)

// WithInterval paces delivery, sleeping d between notifications.
func WithInterval(d time.Duration) Option {
	return func(s *Stream) {
		s.interval = d
	}
}

// Stream reads notifications from a capture and dispatches them to a handler.
type Stream struct {
	reader   io.Reader
	handler  Handler
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error

	delivered atomic.Uint64
	skipped   atomic.Uint64
}

// New creates a Stream over r.
func New(r io.Reader, handler Handler, opts ...Option) *Stream {
	s := &Stream{
		reader:  r,
		handler: handler,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins replaying in a goroutine.
// It returns immediately; the replay ends at EOF, on Stop or when ctx is done.
func (s *Stream) Start(ctx context.Context) error {
	go s.processLines(ctx)
	return nil
}

// Stop signals the replay goroutine to stop and waits for it.
func (s *Stream) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
	return s.err
}

// Done is closed when the replay goroutine exits.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the read error that ended the replay, if any. Valid after Done.
func (s *Stream) Err() error {
	return s.err
}

// Delivered returns the number of notifications passed to the handler.
func (s *Stream) Delivered() uint64 {
	return s.delivered.Load()
}

// Skipped returns the number of lines that did not decode.
func (s *Stream) Skipped() uint64 {
	return s.skipped.Load()
}

func (s *Stream) processLines(ctx context.Context) {
	defer close(s.done)

	var timer *time.Timer
	if s.interval > 0 {
		timer = time.NewTimer(s.interval)
		defer timer.Stop()
	}

	scanner := bufio.NewScanner(s.reader)
	lineNo := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		lineNo++
		raw, ok, err := ParseLine(scanner.Text())
		if err != nil {
			log.Warningf("line %d: %v", lineNo, err)
			s.skipped.Add(1)
			continue
		}
		if !ok {
			continue
		}

		s.handler(raw)
		s.delivered.Add(1)

		if timer != nil {
			timer.Reset(s.interval)
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-timer.C:
			}
		}
	}

	if err := scanner.Err(); err != nil {
		s.err = fmt.Errorf("reading capture: %w", err)
		log.Errorf("%v", s.err)
		return
	}
	log.Debugf("replay finished: %d delivered, %d skipped", s.Delivered(), s.Skipped())
}

// ParseLine decodes one capture line. ok is false for blank and comment lines.
func ParseLine(line string) (raw []byte, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, false, nil
	}

	cleaned := strings.NewReplacer(" ", "", "\t", "", ":", "").Replace(line)
	raw, err = hex.DecodeString(cleaned)
	if err != nil {
		return nil, false, fmt.Errorf("invalid hex %q: %w", line, err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	return raw, true, nil
}

// Format renders raw as a capture line, bytes separated by spaces.
func Format(raw []byte) string {
	var b strings.Builder
	for i, c := range raw {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}

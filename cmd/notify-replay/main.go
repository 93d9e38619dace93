// notify-replay feeds captured data notifications through the reassembly
// pipeline offline, or records a capture from the simulated peripheral.
//
// Usage:
//
//	notify-replay -rows 12 -columns 12 capture.txt
//	notify-replay -record 100 > capture.txt
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/op/go-logging"

	"github.com/mrzor/matrix-streamer/internal/eventstream"
	"github.com/mrzor/matrix-streamer/internal/handoff"
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/output"
	"github.com/mrzor/matrix-streamer/internal/pipeline"
	"github.com/mrzor/matrix-streamer/internal/reassembler"
	"github.com/mrzor/matrix-streamer/internal/transport"
	"github.com/mrzor/matrix-streamer/internal/transport/sim"
)

var logger = logging.MustGetLogger("notify-replay")

func main() {
	rows := flag.Int("rows", 12, "matrix rows")
	columns := flag.Int("columns", 12, "matrix columns")
	width := flag.Int("width", 1, "bytes per matrix element (1 or 2)")
	timeout := flag.Duration("timeout", reassembler.DefaultTimeout, "partial frame timeout")
	interval := flag.Duration("interval", 0, "delay between replayed notifications")
	render := flag.Bool("render", false, "render every completed frame")
	threshold := flag.Int("threshold", 0, "render threshold")
	mirror := flag.Bool("mirror", false, "mirror rendered frames left-right")
	record := flag.Uint64("record", 0, "record this many simulated frames to stdout instead of replaying")
	payload := flag.Int("payload", 20, "fragment payload size when recording")
	loss := flag.Float64("loss", 0, "fragment loss rate when recording")
	shuffle := flag.Bool("shuffle", false, "shuffle fragment order when recording")
	seed := flag.Uint64("seed", 1, "simulator seed when recording")
	logLevel := flag.String("log-level", "INFO", "DEBUG, INFO, WARNING, ERROR")
	flag.Parse()

	lvl, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatalf("Error: invalid log level %q: %v", *logLevel, err)
	}
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend,
		logging.MustStringFormatter(`%{level:.4s} %{module}: %{message}`)))
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dims := matrix.Dimensions{Rows: *rows, Columns: *columns}

	if *record > 0 {
		simCfg := sim.Config{
			Dims:          dims,
			Width:         *width,
			MaxPayload:    *payload,
			FrameInterval: time.Millisecond,
			Frames:        *record,
			LossRate:      *loss,
			Shuffle:       *shuffle,
			Seed:          *seed,
		}
		if err := recordCapture(ctx, os.Stdout, simCfg); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: notify-replay [flags] <capture file | ->\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	var renderer *output.Renderer
	if *render {
		renderer = output.NewRenderer(os.Stdout, output.WithThreshold(*threshold), output.WithMirror(*mirror))
	}

	cfg := pipeline.Config{Dims: dims, Width: *width, Timeout: *timeout}
	if _, err := replay(ctx, flag.Arg(0), cfg, *interval, renderer); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// logObserver reports pipeline problems at warning level.
type logObserver struct {
	pipeline.NopObserver
}

func (logObserver) FragmentRejected(raw []byte, err error) {
	logger.Warningf("rejected %s: %v", eventstream.Format(raw), err)
}

func (logObserver) FrameExpired(e reassembler.Expired) {
	logger.Warningf("frame %d expired with %d/%d parts", e.FrameID, e.Received, e.Expected)
}

func (logObserver) DecodeFailed(frameID uint8, err error) {
	logger.Warningf("frame %d: %v", frameID, err)
}

// replay feeds the capture at path through a pipeline and prints a summary.
func replay(ctx context.Context, path string, cfg pipeline.Config, interval time.Duration, renderer *output.Renderer) (pipeline.Stats, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return pipeline.Stats{}, fmt.Errorf("opening capture: %w", err)
		}
		defer f.Close()
		r = f
	}

	queue := handoff.NewLatest[*matrix.Matrix]()
	pipe, err := pipeline.New(cfg, queue, pipeline.WithObserver(logObserver{}))
	if err != nil {
		return pipeline.Stats{}, err
	}

	handle := func(raw []byte) {
		pipe.HandleNotification(raw)
		pipe.Tick()
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		show(ctx, queue, renderer)
	}()

	stream := eventstream.New(r, handle, eventstream.WithInterval(interval))
	if err := stream.Start(ctx); err != nil {
		return pipeline.Stats{}, err
	}

	select {
	case <-ctx.Done():
	case <-stream.Done():
	}
	streamErr := stream.Stop()
	queue.Close()
	<-consumerDone
	if streamErr != nil {
		return pipeline.Stats{}, streamErr
	}

	stats := pipe.Stats()
	abandoned := pipe.Reset()
	fmt.Fprintf(os.Stderr, "lines: %d replayed, %d skipped\n", stream.Delivered(), stream.Skipped())
	fmt.Fprintf(os.Stderr, "notifications: %d (%d malformed, %d out of range)\n",
		stats.Notifications, stats.FragmentsMalformed, stats.PartsOutOfRange)
	fmt.Fprintf(os.Stderr, "frames: %d completed, %d delivered, %d expired, %d decode errors, %d incomplete at end\n",
		stats.FramesCompleted, stats.FramesDelivered, stats.FramesExpired, stats.DecodeErrors, abandoned)
	fmt.Fprintf(os.Stderr, "queue: %d frames replaced before display\n", stats.QueueDropped)
	return stats, nil
}

// show takes frames as they complete until the queue is closed and empty.
// Frames completed while one is being rendered replace each other and show
// up as queue drops.
func show(ctx context.Context, queue *handoff.Latest[*matrix.Matrix], renderer *output.Renderer) {
	for {
		m, ok := queue.Wait(ctx)
		if !ok {
			return
		}
		logger.Debugf("frame %s total=%d max=%d", m.Dimensions(), m.Total(), m.Max())
		if renderer != nil {
			if err := renderer.Render(m); err != nil {
				logger.Errorf("rendering frame: %v", err)
				return
			}
		}
	}
}

// recordCapture streams cfg.Frames frames from a simulated peripheral and
// writes every notification as a capture line.
func recordCapture(ctx context.Context, w io.Writer, cfg sim.Config) error {
	p, err := sim.New(cfg)
	if err != nil {
		return err
	}
	address := p.Descriptor().Address

	sess, err := p.Connect(ctx, address)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Disconnect(context.Background()); err != nil {
			logger.Warningf("disconnecting: %v", err)
		}
	}()

	raw, err := sess.Read(ctx, transport.DimensionsUUID)
	if err != nil {
		return fmt.Errorf("reading dimensions: %w", err)
	}
	dims, err := matrix.DecodeDimensions(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s width %d from %s\n", dims, p.Config().Width, address)

	var writeErr error
	err = sess.Subscribe(ctx, transport.DataUUID, func(raw []byte) {
		if writeErr == nil {
			_, writeErr = fmt.Fprintln(w, eventstream.Format(raw))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for p.Sent() < cfg.Frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := sess.Unsubscribe(ctx, transport.DataUUID); err != nil {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	return writeErr
}

// matrix-streamer connects to a pressure-matrix peripheral, reassembles its
// notifications into frames and renders the freshest frame at a fixed rate.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/op/go-logging"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mrzor/matrix-streamer/internal/attributes"
	"github.com/mrzor/matrix-streamer/internal/config"
	"github.com/mrzor/matrix-streamer/internal/devices"
	"github.com/mrzor/matrix-streamer/internal/handoff"
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/otel"
	"github.com/mrzor/matrix-streamer/internal/output"
	"github.com/mrzor/matrix-streamer/internal/pipeline"
	"github.com/mrzor/matrix-streamer/internal/session"
	"github.com/mrzor/matrix-streamer/internal/transport"
	"github.com/mrzor/matrix-streamer/internal/transport/sim"
)

var logger = logging.MustGetLogger("matrix-streamer")

// Version information injected at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// setupLogging installs a stderr backend at the configured level.
func setupLogging(level string) error {
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	backend := logging.NewLogBackend(os.Stderr, "", 0)
	format := logging.MustStringFormatter(`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`)
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, format))
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
	return nil
}

// setupOTEL returns a tracer and cleanup function. Without a configured
// endpoint the tracer is a no-op.
func setupOTEL(versionInfo string) (trace.Tracer, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	if !otelCfg.Enabled() {
		logger.Debugf("no OTLP endpoint configured, tracing disabled")
		return noop.NewTracerProvider().Tracer("matrix-streamer"), func() {}, nil
	}

	tp, err := otel.InitProvider(otelCfg, versionInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("ABORT: failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			logger.Errorf("shutting down OTEL provider: %v", err)
		}
	}

	return tp.Tracer("matrix-streamer"), cleanup, nil
}

// setupTransport returns the transport sessions are opened on.
func setupTransport(cfg *config.Config) (transport.Transport, error) {
	if !cfg.Simulate {
		return nil, fmt.Errorf("no BLE transport available in this build; run with --simulate")
	}

	s := cfg.Simulator
	return sim.New(sim.Config{
		Address:       cfg.Address,
		Name:          s.Name,
		Dims:          matrix.Dimensions{Rows: s.Rows, Columns: s.Columns},
		Width:         cfg.Stream.Width,
		MaxPayload:    s.MaxPayload,
		FrameInterval: s.FrameInterval,
		Frames:        s.Frames,
		LossRate:      s.LossRate,
		Shuffle:       s.Shuffle,
		Duplicate:     s.Duplicate,
		Seed:          s.Seed,
	})
}

// scanTimeout bounds device discovery before connecting.
const scanTimeout = 10 * time.Second

// resolveDevice scans until the configured address, or the first device
// advertising the matrix service, shows up. Devices that stop advertising
// are pruned between passes. A configured address that never shows up is
// still returned so Connect can report the failure.
func resolveDevice(ctx context.Context, cfg *config.Config, t transport.Transport) (devices.Device, error) {
	scanner := devices.NewScanner(t, devices.NewRegistry(transport.ServiceUUID))

	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	match := devices.WithService()
	if cfg.Address != "" {
		match = devices.WithAddress(cfg.Address)
	}

	dev, err := scanner.Find(scanCtx, match)
	if err == nil {
		return dev, nil
	}
	if cfg.Address != "" && ctx.Err() == nil && errors.Is(err, transport.ErrDeviceNotFound) {
		logger.Warningf("%s not seen while scanning, connecting anyway", cfg.Address)
		return devices.Device{Address: cfg.Address, Name: devices.UnknownName}, nil
	}
	return devices.Device{}, err
}

// consume renders the newest frame at rate Hz until done is closed.
// A render failure calls stop so the session does not outlive its consumer.
func consume(done <-chan struct{}, q handoff.Queue[*matrix.Matrix], r *output.Renderer, rate float64, stop func()) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m, ok := q.DrainLatest()
			if !ok {
				continue
			}
			if err := r.Render(m); err != nil {
				logger.Errorf("rendering frame: %v", err)
				stop()
				return
			}
		}
	}
}

func run() error {
	cfg, err := config.ParseArgs(os.Args)
	if errors.Is(err, config.ErrHelp) {
		fmt.Print(config.Usage(filepath.Base(os.Args[0])))
		return nil
	}
	if err != nil {
		return err
	}

	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}
	logger.Infof("Starting matrix-streamer %s (commit: %s, built: %s)", version, commit, date)
	if cfg.ConfigFile != "" {
		logger.Infof("loaded profile %s", cfg.ConfigFile)
	}

	versionInfo := fmt.Sprintf("%s (%s)", version, commit)
	tracer, cleanupOTEL, err := setupOTEL(versionInfo)
	if err != nil {
		return err
	}
	defer cleanupOTEL()

	attrEval, err := attributes.NewEvaluator(cfg.CustomAttributes)
	if err != nil {
		return err
	}
	traceEval, err := attributes.NewTraceIDEvaluator(cfg.TraceID)
	if err != nil {
		return err
	}
	parentEval, err := attributes.NewParentIDEvaluator(cfg.ParentID)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := setupTransport(cfg)
	if err != nil {
		return err
	}

	dev, err := resolveDevice(ctx, cfg, t)
	if err != nil {
		return err
	}

	info := attributes.NewSessionInfo(dev.Address, dev.Name)
	traceID, warnings, err := traceEval.EvaluateAndValidate(info)
	if err != nil {
		return err
	}
	parentID, parentWarnings, err := parentEval.EvaluateAndValidate(info)
	if err != nil {
		return err
	}
	warnings = append(warnings, parentWarnings...)

	spans := output.NewSpanObserver(tracer, output.WithEvaluator(attrEval))
	sessionCtx := spans.Start(output.SessionContext(ctx, traceID, parentID), info, warnings...)

	driver, err := session.New(t, session.Config{
		Width:      cfg.Stream.Width,
		Timeout:    cfg.Stream.Timeout,
		Queue:      cfg.QueuePolicy(),
		Capacity:   cfg.Stream.Capacity,
		ExpiryTick: cfg.Stream.ExpiryTick,
		RateWindow: cfg.Stream.RateWindow,
	},
		session.WithObserver(spans),
		session.WithStateHook(spans.StateChanged),
		session.WithStateHook(func(from, to session.State) {
			logger.Debugf("session %s -> %s", from, to)
		}),
	)
	if err != nil {
		spans.End(pipeline.Stats{}, err)
		return err
	}

	renderer := output.NewRenderer(os.Stdout,
		output.WithThreshold(cfg.Display.Threshold),
		output.WithMirror(cfg.Display.Mirror),
	)

	done := make(chan struct{})
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consume(done, driver.Queue(), renderer, cfg.Display.FrameRate, driver.Stop)
	}()

	runErr := driver.Run(sessionCtx, dev.Address)
	close(done)
	<-consumerDone

	stats := driver.Stats()
	spans.End(stats, runErr)
	logger.Infof("session %s: %d notifications, %d frames delivered, %d expired, %d decode errors, %d dropped",
		driver.State(), stats.Notifications, stats.FramesDelivered, stats.FramesExpired, stats.DecodeErrors, stats.QueueDropped)

	return runErr
}

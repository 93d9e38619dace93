package output

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/matrix-streamer/internal/attributes"
	"github.com/mrzor/matrix-streamer/internal/matrix"
	"github.com/mrzor/matrix-streamer/internal/pipeline"
	"github.com/mrzor/matrix-streamer/internal/reassembler"
	"github.com/mrzor/matrix-streamer/internal/session"
)

// DefaultMaxEvents caps span events per kind so a noisy link cannot grow the span without bound.
const DefaultMaxEvents = 32

// SpanOption configures a SpanObserver.
type SpanOption func(*SpanObserver)

// WithMaxEvents sets the per-kind span event cap. Counting continues past the cap.
func WithMaxEvents(n int) SpanOption {
	return func(o *SpanObserver) {
		o.maxEvents = n
	}
}

// WithEvaluator evaluates custom attributes on the last delivered matrix when the span ends.
func WithEvaluator(e *attributes.Evaluator) SpanOption {
	return func(o *SpanObserver) {
		o.evaluator = e
	}
}

// SpanObserver records a session as an OpenTelemetry span.
type SpanObserver struct {
	tracer    trace.Tracer
	evaluator *attributes.Evaluator
	maxEvents int

	mu        sync.Mutex
	span      trace.Span
	last      *matrix.Matrix
	rejected  uint64
	expired   uint64
	failed    uint64
	delivered uint64
}

// NewSpanObserver creates an observer that starts spans on tracer.
func NewSpanObserver(tracer trace.Tracer, opts ...SpanOption) *SpanObserver {
	o := &SpanObserver{
		tracer:    tracer,
		maxEvents: DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SessionContext returns ctx carrying a remote parent so the session span
// joins traceID. A zero parentID is replaced with a random one, since a
// remote span context needs both IDs. ctx is returned unchanged when
// traceID is zero.
func SessionContext(ctx context.Context, traceID trace.TraceID, parentID trace.SpanID) context.Context {
	if !traceID.IsValid() {
		return ctx
	}
	if !parentID.IsValid() {
		_, _ = rand.Read(parentID[:])
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     parentID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// Start opens the session span. extra is typically the warnings returned by
// the trace and parent id evaluators.
func (o *SpanObserver) Start(ctx context.Context, info *attributes.SessionInfo, extra ...attribute.KeyValue) context.Context {
	attrs := []attribute.KeyValue{
		attribute.String("device.address", info.Address),
	}
	if info.Name != "" {
		attrs = append(attrs, attribute.String("device.name", info.Name))
	}
	attrs = append(attrs, extra...)

	ctx, span := o.tracer.Start(ctx, "session",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	o.mu.Lock()
	o.span = span
	o.mu.Unlock()
	return ctx
}

// StateChanged records a transition; pass it to session.WithStateHook.
func (o *SpanObserver) StateChanged(from, to session.State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.span == nil {
		return
	}
	o.span.AddEvent("state."+to.String(), trace.WithAttributes(
		attribute.String("state.from", from.String()),
	))
}

// FragmentRejected implements pipeline.Observer.
func (o *SpanObserver) FragmentRejected(raw []byte, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.rejected++
	o.addCappedLocked(o.rejected, "fragment.rejected",
		attribute.Int("fragment.length", len(raw)),
		attribute.String("error", err.Error()),
	)
}

// FrameExpired implements pipeline.Observer.
func (o *SpanObserver) FrameExpired(e reassembler.Expired) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.expired++
	o.addCappedLocked(o.expired, "frame.expired",
		attribute.Int("frame.id", int(e.FrameID)),
		attribute.Int("frame.parts_received", e.Received),
		attribute.Int("frame.parts_expected", e.Expected),
		attribute.Int64("frame.age_ms", e.Age.Milliseconds()),
	)
}

// DecodeFailed implements pipeline.Observer.
func (o *SpanObserver) DecodeFailed(frameID uint8, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.failed++
	o.addCappedLocked(o.failed, "frame.decode_failed",
		attribute.Int("frame.id", int(frameID)),
		attribute.String("error", err.Error()),
	)
}

// FrameDelivered implements pipeline.Observer.
func (o *SpanObserver) FrameDelivered(m *matrix.Matrix) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.delivered++
	o.last = m
}

func (o *SpanObserver) addCappedLocked(count uint64, name string, attrs ...attribute.KeyValue) {
	if o.span == nil || count > uint64(o.maxEvents) {
		return
	}
	o.span.AddEvent(name, trace.WithAttributes(attrs...), trace.WithTimestamp(time.Now()))
}

// End closes the span with the final counters. A non-nil err marks the span failed.
func (o *SpanObserver) End(stats pipeline.Stats, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.span == nil {
		return
	}

	//nolint:gosec // counters stay far below math.MaxInt64
	o.span.SetAttributes(
		attribute.Int64("stream.notifications", int64(stats.Notifications)),
		attribute.Int64("stream.fragments_malformed", int64(stats.FragmentsMalformed)),
		attribute.Int64("stream.parts_out_of_range", int64(stats.PartsOutOfRange)),
		attribute.Int64("stream.frames_completed", int64(stats.FramesCompleted)),
		attribute.Int64("stream.frames_expired", int64(stats.FramesExpired)),
		attribute.Int64("stream.decode_errors", int64(stats.DecodeErrors)),
		attribute.Int64("stream.frames_delivered", int64(stats.FramesDelivered)),
		attribute.Int64("stream.queue_dropped", int64(stats.QueueDropped)),
	)

	if o.last != nil {
		o.span.SetAttributes(
			attribute.String("matrix.dimensions", o.last.Dimensions().String()),
			attribute.Int("matrix.total", o.last.Total()),
			attribute.Int("matrix.max", o.last.Max()),
		)
		if o.evaluator != nil {
			custom, evalErr := o.evaluator.Evaluate(o.last)
			if evalErr != nil {
				o.span.SetAttributes(attribute.String("_tracing_error_0", evalErr.Error()))
			} else if len(custom) > 0 {
				o.span.SetAttributes(custom...)
			}
		}
	}

	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	} else {
		o.span.SetStatus(codes.Ok, "")
	}

	o.span.End()
	o.span = nil
}

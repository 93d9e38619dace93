// Package output turns session activity into things people look at.
//
// SpanObserver records one OpenTelemetry span per session. It implements
// pipeline.Observer and receives state transitions through
// session.WithStateHook. Dropped fragments, expired frames and decode
// failures become span events (capped per kind); totals and custom
// attributes evaluated on the last delivered matrix are set when the span
// ends.
//
// Renderer draws matrices as shaded text for the consumer loop. Threshold,
// gain and left-right mirroring are presentation choices and live here, not
// in the decoder.
package output

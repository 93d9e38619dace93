// Package otel provides OpenTelemetry tracer provider initialization and management.
package otel

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/op/go-logging"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/mrzor/matrix-streamer/internal/config"
)

var log = logging.MustGetLogger("otel")

// exportTimeout bounds each OTLP export request.
const exportTimeout = 10 * time.Second

// logProxyConfig records which proxy the HTTP exporter will go through.
func logProxyConfig() {
	httpProxy := os.Getenv("HTTP_PROXY")
	if httpProxy == "" {
		httpProxy = os.Getenv("http_proxy")
	}
	httpsProxy := os.Getenv("HTTPS_PROXY")
	if httpsProxy == "" {
		httpsProxy = os.Getenv("https_proxy")
	}

	if httpProxy != "" || httpsProxy != "" {
		log.Debugf("proxy configuration: HTTP_PROXY=%q HTTPS_PROXY=%q", httpProxy, httpsProxy)
	} else {
		log.Debugf("no proxy configured (HTTP_PROXY/HTTPS_PROXY not set)")
	}
}

// InitProvider creates a tracer provider exporting over OTLP/HTTP.
// The exporter connects lazily; an unreachable collector shows up as export
// errors, not as a failure here.
//
// Note: The HTTP client honors HTTP_PROXY, HTTPS_PROXY and NO_PROXY through
// Go's standard net/http transport.
func InitProvider(cfg *config.OTELConfig, version string) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	target, err := cfg.Target()
	if err != nil {
		return nil, err
	}
	endpoint := target.Host + target.Path

	log.Debugf("OTEL configuration:")
	log.Debugf("  service name: %s", cfg.ServiceName)
	log.Debugf("  endpoint: %s (insecure: %t)", endpoint, target.Insecure)
	log.Debugf("  OTEL_EXPORTER_OTLP_ENDPOINT: %q", cfg.ExporterEndpoint)
	log.Debugf("  OTEL_EXPORTER_OTLP_TRACES_ENDPOINT: %q", cfg.TracesEndpoint)
	if cfg.ResourceAttributes != "" {
		log.Debugf("  resource attributes: %s", cfg.ResourceAttributes)
	}
	if len(cfg.Headers) > 0 {
		log.Debugf("  %d export headers", len(cfg.Headers))
	}
	logProxyConfig()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(target.Host),
		otlptracehttp.WithURLPath(target.Path),
		otlptracehttp.WithTimeout(exportTimeout),
	}
	if target.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	resourceAttrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if version != "" {
		resourceAttrs = append(resourceAttrs, resource.WithAttributes(semconv.ServiceVersion(version)))
	}
	if customAttrs := cfg.ParseResourceAttributes(); len(customAttrs) > 0 {
		resourceAttrs = append(resourceAttrs, resource.WithAttributes(customAttrs...))
	}

	res, err := resource.New(ctx, resourceAttrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	log.Infof("exporting traces to %s as %s", endpoint, cfg.ServiceName)
	return tp, nil
}

// ShutdownProvider gracefully shuts down the tracer provider, flushing any remaining spans.
func ShutdownProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}

	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	return nil
}

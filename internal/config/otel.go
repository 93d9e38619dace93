package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// tracesPath is appended to the generic OTLP endpoint for HTTP trace export.
const tracesPath = "/v1/traces"

// OTELConfig is the subset of the OpenTelemetry SDK environment the exporter honours.
type OTELConfig struct {
	ServiceName        string            `env:"OTEL_SERVICE_NAME" envDefault:"matrix-streamer"`
	ResourceAttributes string            `env:"OTEL_RESOURCE_ATTRIBUTES"`
	ExporterEndpoint   string            `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TracesEndpoint     string            `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	Headers            map[string]string `env:"OTEL_EXPORTER_OTLP_HEADERS" envSeparator:"," envKeyValSeparator:"="`
	SDKDisabled        bool              `env:"OTEL_SDK_DISABLED"`
}

// OTLPTarget is where spans are sent.
type OTLPTarget struct {
	Host     string // host:port
	Path     string
	Insecure bool
}

// ParseOTELConfig reads the OTEL_* environment.
func ParseOTELConfig() (*OTELConfig, error) {
	var cfg OTELConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return &cfg, nil
}

// Enabled reports whether an endpoint is configured and the SDK is not disabled.
func (c *OTELConfig) Enabled() bool {
	return !c.SDKDisabled && (c.TracesEndpoint != "" || c.ExporterEndpoint != "")
}

// GetEndpoint returns the configured endpoint as given, traces-specific first.
func (c *OTELConfig) GetEndpoint() string {
	switch {
	case c.TracesEndpoint != "":
		return c.TracesEndpoint
	case c.ExporterEndpoint != "":
		return c.ExporterEndpoint
	default:
		return "localhost:4318"
	}
}

// Target resolves the endpoint into host, path and transport security.
// A bare host:port is plain HTTP. The traces endpoint is used as a full URL;
// the generic endpoint gets /v1/traces appended.
func (c *OTELConfig) Target() (OTLPTarget, error) {
	raw := c.GetEndpoint()
	if !strings.Contains(raw, "://") {
		return OTLPTarget{Host: raw, Path: tracesPath, Insecure: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return OTLPTarget{}, fmt.Errorf("invalid OTLP endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return OTLPTarget{}, fmt.Errorf("invalid OTLP endpoint %q: scheme must be http or https", raw)
	}

	path := u.Path
	if c.TracesEndpoint == "" {
		path = strings.TrimSuffix(path, "/") + tracesPath
	} else if path == "" {
		path = tracesPath
	}
	return OTLPTarget{Host: u.Host, Path: path, Insecure: u.Scheme == "http"}, nil
}

// ParseResourceAttributes parses OTEL_RESOURCE_ATTRIBUTES (key1=value1,key2=value2).
// Values may be percent-encoded. Entries without a key are skipped.
func (c *OTELConfig) ParseResourceAttributes() []attribute.KeyValue {
	if c.ResourceAttributes == "" {
		return nil
	}

	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(c.ResourceAttributes, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		attrs = append(attrs, attribute.String(key, value))
	}
	return attrs
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds settings read from MATRIX_STREAMER_* variables.
// Zero values mean "not set" and leave lower layers untouched.
type EnvConfig struct {
	Address    string        `env:"MATRIX_STREAMER_ADDRESS"`
	ConfigFile string        `env:"MATRIX_STREAMER_CONFIG"`
	TraceID    string        `env:"MATRIX_STREAMER_TRACE_ID"`
	ParentID   string        `env:"MATRIX_STREAMER_PARENT_ID"`
	Attributes string        `env:"MATRIX_STREAMER_ATTRIBUTES"`
	LogLevel   string        `env:"MATRIX_STREAMER_LOG_LEVEL"`
	Queue      string        `env:"MATRIX_STREAMER_QUEUE"`
	Width      int           `env:"MATRIX_STREAMER_WIDTH"`
	Timeout    time.Duration `env:"MATRIX_STREAMER_TIMEOUT"`
	Simulate   bool          `env:"MATRIX_STREAMER_SIMULATE"`
}

// ParseEnvConfig reads the environment.
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}

func (e *EnvConfig) apply(cfg *Config) error {
	if e.Address != "" {
		cfg.Address = e.Address
	}
	if e.TraceID != "" {
		cfg.TraceID = e.TraceID
	}
	if e.ParentID != "" {
		cfg.ParentID = e.ParentID
	}
	if e.LogLevel != "" {
		cfg.LogLevel = e.LogLevel
	}
	if e.Queue != "" {
		cfg.Stream.Queue = e.Queue
	}
	if e.Width != 0 {
		cfg.Stream.Width = e.Width
	}
	if e.Timeout != 0 {
		cfg.Stream.Timeout = e.Timeout
	}
	if e.Simulate {
		cfg.Simulate = true
	}

	attrs, err := ParseAttributeString(e.Attributes)
	if err != nil {
		return fmt.Errorf("MATRIX_STREAMER_ATTRIBUTES: %w", err)
	}
	cfg.CustomAttributes = append(cfg.CustomAttributes, attrs...)
	return nil
}

// ParseAttributeString parses "name1=expr1;name2=expr2". Empty sections are skipped.
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var attrs []CustomAttribute
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		attr, err := parseAttribute(part)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// parseAttribute parses one NAME=EXPR pair. The expression may itself contain '='.
func parseAttribute(s string) (CustomAttribute, error) {
	name, expr, ok := strings.Cut(s, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected NAME=EXPR", s)
	}
	name = strings.TrimSpace(name)
	expr = strings.TrimSpace(expr)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", s)
	}
	if expr == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", s)
	}
	return CustomAttribute{Name: name, Expression: expr}, nil
}

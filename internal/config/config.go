package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/op/go-logging"

	"github.com/mrzor/matrix-streamer/internal/handoff"
)

// ErrHelp is returned by ParseArgs when --help is given.
var ErrHelp = errors.New("help requested")

// CustomAttribute is a span attribute computed from an expression.
type CustomAttribute struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

// StreamConfig controls reassembly and delivery.
type StreamConfig struct {
	Width      int           `yaml:"width"`       // bytes per matrix element, 1 or 2
	Queue      string        `yaml:"queue"`       // latest or ring
	Capacity   int           `yaml:"capacity"`    // ring capacity
	Timeout    time.Duration `yaml:"timeout"`     // partial frame lifetime
	ExpiryTick time.Duration `yaml:"expiry_tick"` // 0 disables periodic expiry
	RateWindow time.Duration `yaml:"rate_window"`
}

// DisplayConfig controls the consumer loop.
type DisplayConfig struct {
	FrameRate float64 `yaml:"frame_rate"` // consumer polls per second
	Threshold int     `yaml:"threshold"`  // values below are shown as zero
	Mirror    bool    `yaml:"mirror"`     // flip columns left-right
}

// SimulatorConfig describes the in-memory peripheral used with --simulate.
type SimulatorConfig struct {
	Name          string        `yaml:"name"`
	Rows          int           `yaml:"rows"`
	Columns       int           `yaml:"columns"`
	MaxPayload    int           `yaml:"max_payload"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	Frames        uint64        `yaml:"frames"`
	LossRate      float64       `yaml:"loss_rate"`
	Shuffle       bool          `yaml:"shuffle"`
	Duplicate     bool          `yaml:"duplicate"`
	Seed          uint64        `yaml:"seed"`
}

// Config holds the merged configuration.
type Config struct {
	Address          string            `yaml:"address"`
	TraceID          string            `yaml:"trace_id"`  // expression or literal, hashed when not a valid trace id
	ParentID         string            `yaml:"parent_id"` // expression yielding a 16-hex-char parent span id
	LogLevel         string            `yaml:"log_level"`
	Simulate         bool              `yaml:"simulate"`
	CustomAttributes []CustomAttribute `yaml:"attributes"`
	Stream           StreamConfig      `yaml:"stream"`
	Display          DisplayConfig     `yaml:"display"`
	Simulator        SimulatorConfig   `yaml:"simulator"`

	// ConfigFile is the YAML profile that was loaded, if any.
	ConfigFile string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Stream: StreamConfig{
			Width:      1,
			Queue:      string(handoff.PolicyLatest),
			Capacity:   8,
			Timeout:    time.Second,
			ExpiryTick: 250 * time.Millisecond,
			RateWindow: 5 * time.Second,
		},
		Display: DisplayConfig{
			FrameRate: 30,
		},
		Simulator: SimulatorConfig{
			Rows:          12,
			Columns:       12,
			MaxPayload:    20,
			FrameInterval: time.Second / 30,
		},
	}
}

// flagValues records which flags were given on the command line.
type flagValues struct {
	address    *string
	configFile *string
	traceID    *string
	parentID   *string
	logLevel   *string
	queue      *string
	width      *int
	capacity   *int
	timeout    *time.Duration
	frameRate  *float64
	simulate   bool
	mirror     bool
	attributes []CustomAttribute
}

// ParseArgs builds the configuration from args (args[0] is the program name),
// the environment and the optional YAML profile.
func ParseArgs(args []string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	flags, err := parseFlags(args[1:])
	if err != nil {
		return nil, err
	}

	envCfg, err := ParseEnvConfig()
	if err != nil {
		return nil, err
	}

	cfg := Default()

	configFile := envCfg.ConfigFile
	if flags.configFile != nil {
		configFile = *flags.configFile
	}
	if configFile != "" {
		if err := LoadFile(configFile, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configFile
	}

	if err := envCfg.apply(cfg); err != nil {
		return nil, err
	}
	flags.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFlags(args []string) (*flagValues, error) {
	f := &flagValues{}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}

		switch arg {
		case "--help", "-h":
			return nil, ErrHelp
		case "--simulate":
			f.simulate = true
		case "--mirror":
			f.mirror = true
		case "--address", "-d":
			v, err := value()
			if err != nil {
				return nil, err
			}
			f.address = &v
		case "--config", "-c":
			v, err := value()
			if err != nil {
				return nil, err
			}
			f.configFile = &v
		case "--trace-id", "-t":
			v, err := value()
			if err != nil {
				return nil, err
			}
			f.traceID = &v
		case "--parent-id", "-p":
			v, err := value()
			if err != nil {
				return nil, err
			}
			f.parentID = &v
		case "--log-level", "-l":
			v, err := value()
			if err != nil {
				return nil, err
			}
			f.logLevel = &v
		case "--queue", "-q":
			v, err := value()
			if err != nil {
				return nil, err
			}
			f.queue = &v
		case "--attribute", "-a":
			v, err := value()
			if err != nil {
				return nil, err
			}
			attr, err := parseAttribute(v)
			if err != nil {
				return nil, err
			}
			f.attributes = append(f.attributes, attr)
		case "--width", "-w", "--capacity":
			v, err := value()
			if err != nil {
				return nil, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", arg, err)
			}
			if arg == "--capacity" {
				f.capacity = &n
			} else {
				f.width = &n
			}
		case "--timeout":
			v, err := value()
			if err != nil {
				return nil, err
			}
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", arg, err)
			}
			f.timeout = &d
		case "--frame-rate":
			v, err := value()
			if err != nil {
				return nil, err
			}
			r, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", arg, err)
			}
			f.frameRate = &r
		default:
			return nil, fmt.Errorf("unknown argument %q", arg)
		}
	}

	return f, nil
}

func (f *flagValues) apply(cfg *Config) {
	if f.address != nil {
		cfg.Address = *f.address
	}
	if f.traceID != nil {
		cfg.TraceID = *f.traceID
	}
	if f.parentID != nil {
		cfg.ParentID = *f.parentID
	}
	if f.logLevel != nil {
		cfg.LogLevel = *f.logLevel
	}
	if f.queue != nil {
		cfg.Stream.Queue = *f.queue
	}
	if f.width != nil {
		cfg.Stream.Width = *f.width
	}
	if f.capacity != nil {
		cfg.Stream.Capacity = *f.capacity
	}
	if f.timeout != nil {
		cfg.Stream.Timeout = *f.timeout
	}
	if f.frameRate != nil {
		cfg.Display.FrameRate = *f.frameRate
	}
	if f.simulate {
		cfg.Simulate = true
	}
	if f.mirror {
		cfg.Display.Mirror = true
	}
	cfg.CustomAttributes = append(cfg.CustomAttributes, f.attributes...)
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.Address == "" && !c.Simulate {
		return fmt.Errorf("no device address given (use --address or --simulate)")
	}
	if c.Stream.Width != 1 && c.Stream.Width != 2 {
		return fmt.Errorf("element width must be 1 or 2, got %d", c.Stream.Width)
	}
	policy, err := handoff.ParsePolicy(c.Stream.Queue)
	if err != nil {
		return err
	}
	if policy == handoff.PolicyRing && c.Stream.Capacity < 1 {
		return fmt.Errorf("ring queue capacity must be at least 1, got %d", c.Stream.Capacity)
	}
	if c.Stream.Timeout <= 0 {
		return fmt.Errorf("reassembly timeout must be positive, got %s", c.Stream.Timeout)
	}
	if c.Display.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %v", c.Display.FrameRate)
	}
	if _, err := logging.LogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.Simulate {
		if c.Simulator.LossRate < 0 || c.Simulator.LossRate >= 1 {
			return fmt.Errorf("simulator loss rate must be in [0, 1), got %v", c.Simulator.LossRate)
		}
	}
	for _, attr := range c.CustomAttributes {
		if strings.TrimSpace(attr.Name) == "" {
			return fmt.Errorf("invalid attribute: name cannot be empty")
		}
		if strings.TrimSpace(attr.Expression) == "" {
			return fmt.Errorf("invalid attribute %q: expression cannot be empty", attr.Name)
		}
	}
	return nil
}

// QueuePolicy returns the validated queue policy.
func (c *Config) QueuePolicy() handoff.Policy {
	p, _ := handoff.ParsePolicy(c.Stream.Queue)
	return p
}

// Usage returns the help text for program.
func Usage(program string) string {
	return fmt.Sprintf(`Usage: %s [options]

Options:
  -d, --address <addr>       device address to connect to
  -c, --config <file>        YAML profile
  -t, --trace-id <expr>      trace id or expression over the session
  -p, --parent-id <expr>     parent span id or expression over the session
  -a, --attribute NAME=EXPR  span attribute computed from the last matrix (repeatable)
  -w, --width <1|2>          bytes per matrix element
  -q, --queue <latest|ring>  delivery queue policy
      --capacity <n>         ring queue capacity
      --timeout <duration>   partial frame timeout (e.g. 1s)
      --frame-rate <hz>      consumer refresh rate
      --mirror               flip the rendered matrix left-right
      --simulate             stream from a simulated peripheral
  -l, --log-level <level>    DEBUG, INFO, WARNING, ERROR
  -h, --help                 show this help

Environment:
  MATRIX_STREAMER_ADDRESS, MATRIX_STREAMER_CONFIG, MATRIX_STREAMER_TRACE_ID,
  MATRIX_STREAMER_PARENT_ID,
  MATRIX_STREAMER_ATTRIBUTES ("a=x;b=y"), MATRIX_STREAMER_LOG_LEVEL,
  MATRIX_STREAMER_QUEUE, MATRIX_STREAMER_WIDTH, MATRIX_STREAMER_TIMEOUT,
  MATRIX_STREAMER_SIMULATE, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_SERVICE_NAME
`, program)
}

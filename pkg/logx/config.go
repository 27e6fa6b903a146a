package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Format represents the output format
type Format string

const (
	// FormatConsole outputs human readable, optionally colored lines (default)
	FormatConsole Format = "console"
	// FormatJSON outputs one JSON object per line
	FormatJSON Format = "json"
)

// Config holds the logger configuration
type Config struct {
	Level  Level
	Format Format

	// Service is added to every record as the "service" field when set
	Service string

	// EnableColors only applies to FormatConsole
	EnableColors bool

	// EnableCaller adds file:line of the call site
	EnableCaller bool

	EnableTimestamp bool

	// TimeFormat is a time layout, or "unix" / "unixmilli"
	TimeFormat string

	// Output defaults to os.Stdout
	Output io.Writer
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Level:           LevelInfo,
		Format:          FormatConsole,
		EnableColors:    true,
		EnableTimestamp: true,
		TimeFormat:      time.RFC3339,
		Output:          os.Stdout,
	}
}

type envConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"console"`
	Service    string `env:"LOG_SERVICE"`
	Color      bool   `env:"LOG_COLOR" envDefault:"true"`
	Caller     bool   `env:"LOG_CALLER" envDefault:"false"`
	Timestamp  bool   `env:"LOG_TIMESTAMP" envDefault:"true"`
	TimeFormat string `env:"LOG_TIME_FORMAT" envDefault:"RFC3339"`
}

// LoadFromEnv builds a Config from the LOG_* variables. A malformed value is
// reported on stderr and the defaults are used instead.
func LoadFromEnv() *Config {
	cfg, err := parseEnv(env.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logx: %v, using defaults\n", err)
		return DefaultConfig()
	}
	return cfg
}

// LoadFromMap is LoadFromEnv over an explicit set of variables.
func LoadFromMap(vars map[string]string) (*Config, error) {
	return parseEnv(env.Options{Environment: vars})
}

func parseEnv(opts env.Options) (*Config, error) {
	var raw envConfig
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return nil, fmt.Errorf("parse log config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Level = ParseLevel(raw.Level)
	cfg.Format = ParseFormat(raw.Format)
	cfg.Service = strings.TrimSpace(raw.Service)
	cfg.EnableColors = raw.Color
	cfg.EnableCaller = raw.Caller
	cfg.EnableTimestamp = raw.Timestamp
	cfg.TimeFormat = timeLayout(raw.TimeFormat)
	return cfg, nil
}

// ParseFormat maps a format name to a Format, defaulting to console
func ParseFormat(format string) Format {
	if strings.EqualFold(strings.TrimSpace(format), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatConsole
}

func timeLayout(name string) string {
	switch strings.ToUpper(name) {
	case "", "RFC3339":
		return time.RFC3339
	case "RFC3339NANO":
		return time.RFC3339Nano
	case "KITCHEN":
		return time.Kitchen
	case "UNIX":
		return "unix"
	case "UNIXMILLI":
		return "unixmilli"
	default:
		return name
	}
}

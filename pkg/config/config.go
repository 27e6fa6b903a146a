// Package config loads process configuration from environment variables.
// Logging is configured separately by logx.LoadFromEnv.
package config

import (
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/errx"
	"github.com/caarlos0/env/v11"
)

var configErrors = errx.NewRegistry("CONFIG")

var (
	ErrParse   = configErrors.Register("PARSE", errx.TypeValidation, "Failed to parse environment")
	ErrInvalid = configErrors.Register("INVALID", errx.TypeValidation, "Invalid configuration value")
)

// Config is the root configuration.
type Config struct {
	Redis    RedisConfig
	Jobx     JobxConfig
	Profile  ProfileConfig
	Snapshot SnapshotConfig
	Server   ServerConfig
}

// ServerConfig configures the health and metrics listener.
type ServerConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8081"`
}

// ProfileConfig configures the profile API client.
type ProfileConfig struct {
	BaseURL string        `env:"PROFILE_API_URL"     envDefault:"https://api.github.com"`
	Token   string        `env:"PROFILE_API_TOKEN"`
	Timeout time.Duration `env:"PROFILE_API_TIMEOUT" envDefault:"10s"`

	// RatePerSecond <= 0 disables client side rate limiting
	RatePerSecond float64 `env:"PROFILE_API_RATE"  envDefault:"0"`
	Burst         int     `env:"PROFILE_API_BURST" envDefault:"1"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, configErrors.NewWithCause(ErrParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and combinations env tags cannot express.
func (c *Config) Validate() error {
	if err := c.Redis.validate(); err != nil {
		return err
	}
	if err := c.Jobx.validate(); err != nil {
		return err
	}
	if err := c.Snapshot.validate(); err != nil {
		return err
	}
	if c.Profile.BaseURL == "" {
		return invalid("PROFILE_API_URL", "must not be empty")
	}
	if c.Profile.Timeout <= 0 {
		return invalid("PROFILE_API_TIMEOUT", "must be positive")
	}
	if c.Profile.RatePerSecond > 0 && c.Profile.Burst < 1 {
		return invalid("PROFILE_API_BURST", "must be at least 1 when PROFILE_API_RATE is set")
	}
	return nil
}

func invalid(field, reason string) error {
	return configErrors.New(ErrInvalid).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

package config

import (
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/jobx/jobxredis"
)

// RedisConfig configures the broker connection and its reconnect policy.
type RedisConfig struct {
	Host           string        `env:"REDIS_HOST"            envDefault:"localhost"`
	Port           int           `env:"REDIS_PORT"            envDefault:"6379"`
	Username       string        `env:"REDIS_USERNAME"`
	Password       string        `env:"REDIS_PASSWORD"`
	DB             int           `env:"REDIS_DB"              envDefault:"0"`
	TLS            bool          `env:"REDIS_TLS"             envDefault:"false"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"5s"`
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX"      envDefault:"profilejobs"`

	ReconnectUnit time.Duration `env:"REDIS_RECONNECT_UNIT" envDefault:"500ms"`
	ReconnectCap  time.Duration `env:"REDIS_RECONNECT_CAP"  envDefault:"10s"`

	// ReconnectMaxAttempts of 0 retries forever.
	ReconnectMaxAttempts int           `env:"REDIS_RECONNECT_MAX_ATTEMPTS" envDefault:"20"`
	HealthInterval       time.Duration `env:"REDIS_HEALTH_INTERVAL"        envDefault:"5s"`
}

// ConnectionConfig maps to the jobxredis dial settings.
func (c RedisConfig) ConnectionConfig() jobxredis.ConnectionConfig {
	return jobxredis.ConnectionConfig{
		Host:           c.Host,
		Port:           c.Port,
		Username:       c.Username,
		Password:       c.Password,
		DB:             c.DB,
		TLS:            c.TLS,
		ConnectTimeout: c.ConnectTimeout,
	}
}

// ConnectionOptions maps to the jobxredis reconnect settings.
func (c RedisConfig) ConnectionOptions() []jobxredis.ConnectionOption {
	return []jobxredis.ConnectionOption{
		jobxredis.WithReconnectBackoff(c.ReconnectUnit, c.ReconnectCap),
		jobxredis.WithMaxReconnectAttempts(c.ReconnectMaxAttempts),
		jobxredis.WithHealthInterval(c.HealthInterval),
	}
}

func (c RedisConfig) validate() error {
	switch {
	case c.Host == "":
		return invalid("REDIS_HOST", "must not be empty")
	case c.Port <= 0 || c.Port > 65535:
		return invalid("REDIS_PORT", "must be between 1 and 65535")
	case c.DB < 0:
		return invalid("REDIS_DB", "must not be negative")
	case c.ReconnectUnit <= 0:
		return invalid("REDIS_RECONNECT_UNIT", "must be positive")
	case c.ReconnectCap < c.ReconnectUnit:
		return invalid("REDIS_RECONNECT_CAP", "must not be below REDIS_RECONNECT_UNIT")
	case c.ReconnectMaxAttempts < 0:
		return invalid("REDIS_RECONNECT_MAX_ATTEMPTS", "must not be negative")
	case c.HealthInterval <= 0:
		return invalid("REDIS_HEALTH_INTERVAL", "must be positive")
	}
	return nil
}

package config

import (
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/jobx"
)

// JobxConfig configures the worker pool and the retry policy of new jobs.
type JobxConfig struct {
	Concurrency     int           `env:"JOBX_CONCURRENCY"      envDefault:"5"`
	PollInterval    time.Duration `env:"JOBX_POLL_INTERVAL"    envDefault:"500ms"`
	JobTimeout      time.Duration `env:"JOBX_JOB_TIMEOUT"      envDefault:"2m"`
	ShutdownTimeout time.Duration `env:"JOBX_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	// HeartbeatInterval of zero renews leases at a quarter of the stall
	// threshold, which is twice the job timeout.
	HeartbeatInterval time.Duration `env:"JOBX_HEARTBEAT_INTERVAL" envDefault:"0s"`

	RetryMaxAttempts   int           `env:"JOBX_RETRY_MAX_ATTEMPTS"   envDefault:"5"`
	RetryBaseDelay     time.Duration `env:"JOBX_RETRY_BASE_DELAY"     envDefault:"2s"`
	RetryMaxDelay      time.Duration `env:"JOBX_RETRY_MAX_DELAY"      envDefault:"10m"`
	CompletedRetention time.Duration `env:"JOBX_COMPLETED_RETENTION"  envDefault:"1h"`
	FailedRetention    time.Duration `env:"JOBX_FAILED_RETENTION"     envDefault:"24h"`
}

// RetryPolicy builds the validated policy attached to submitted jobs.
func (c JobxConfig) RetryPolicy() (jobx.RetryPolicy, error) {
	return jobx.NewRetryPolicy(c.RetryMaxAttempts, c.RetryBaseDelay, c.RetryMaxDelay, jobx.Retention{
		CompletedAge: c.CompletedRetention,
		FailedAge:    c.FailedRetention,
	})
}

// PoolOptions maps to the pool settings.
func (c JobxConfig) PoolOptions() []jobx.PoolOption {
	return []jobx.PoolOption{
		jobx.WithConcurrency(c.Concurrency),
		jobx.WithPollInterval(c.PollInterval),
		jobx.WithJobTimeout(c.JobTimeout),
		jobx.WithHeartbeatInterval(c.HeartbeatInterval),
	}
}

func (c JobxConfig) validate() error {
	switch {
	case c.Concurrency <= 0:
		return invalid("JOBX_CONCURRENCY", "must be positive")
	case c.PollInterval <= 0:
		return invalid("JOBX_POLL_INTERVAL", "must be positive")
	case c.JobTimeout < 0:
		return invalid("JOBX_JOB_TIMEOUT", "must not be negative")
	case c.ShutdownTimeout <= 0:
		return invalid("JOBX_SHUTDOWN_TIMEOUT", "must be positive")
	case c.HeartbeatInterval < 0:
		return invalid("JOBX_HEARTBEAT_INTERVAL", "must not be negative")
	case c.JobTimeout > 0 && c.HeartbeatInterval >= 2*c.JobTimeout:
		return invalid("JOBX_HEARTBEAT_INTERVAL", "must be shorter than the stall threshold (twice JOBX_JOB_TIMEOUT)")
	}
	if _, err := c.RetryPolicy(); err != nil {
		return err
	}
	return nil
}

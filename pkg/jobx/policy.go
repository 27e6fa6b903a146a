package jobx

import (
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/backoffx"
)

const (
	maxPolicyAttempts  = 100
	maxPolicyBaseDelay = time.Hour
)

// RetryPolicy is attached to a job at submission time and evaluated by the
// store when an attempt fails.
type RetryPolicy struct {
	MaxAttempts int       `json:"max_attempts"`
	Backoff     Backoff   `json:"backoff"`
	Retention   Retention `json:"retention"`
}

// DefaultRetryPolicy returns 5 attempts, 2s exponential base capped at 10m,
// completed jobs kept 1h and failed jobs 24h.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     backoffx.NewExponential(2*time.Second, 10*time.Minute),
		Retention: Retention{
			CompletedAge: time.Hour,
			FailedAge:    24 * time.Hour,
		},
	}
}

// NewRetryPolicy builds and validates a policy.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, retention Retention) (RetryPolicy, error) {
	p := RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     backoffx.NewExponential(baseDelay, maxDelay),
		Retention:   retention,
	}
	if err := p.Validate(); err != nil {
		return RetryPolicy{}, err
	}
	return p, nil
}

// Validate checks the policy ranges.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1 || p.MaxAttempts > maxPolicyAttempts:
		return jobxErrors.New(ErrInvalidPolicy).
			WithDetail("field", "max_attempts").
			WithDetail("value", p.MaxAttempts)
	case p.Backoff.Base < 0 || p.Backoff.Base > maxPolicyBaseDelay:
		return jobxErrors.New(ErrInvalidPolicy).
			WithDetail("field", "base_delay").
			WithDetail("value", p.Backoff.Base.String())
	case p.Backoff.Max < 0 || (p.Backoff.Max > 0 && p.Backoff.Max < p.Backoff.Base):
		return jobxErrors.New(ErrInvalidPolicy).
			WithDetail("field", "max_delay").
			WithDetail("value", p.Backoff.Max.String())
	case p.Retention.CompletedAge < 0 || p.Retention.FailedAge < 0:
		return jobxErrors.New(ErrInvalidPolicy).WithDetail("field", "retention")
	}
	return nil
}

// ShouldRetry reports whether a job that has failed attemptsMade times gets
// another attempt.
func (p RetryPolicy) ShouldRetry(attemptsMade int) bool {
	return attemptsMade < p.MaxAttempts
}

// RetryDelay is the delay after the attemptsMade-th failure.
func (p RetryPolicy) RetryDelay(attemptsMade int) time.Duration {
	return p.Backoff.Delay(attemptsMade)
}

// RetentionFor returns how long a job in a terminal status is kept.
func (p RetryPolicy) RetentionFor(status JobStatus) time.Duration {
	if status == JobStatusFailed {
		return p.Retention.FailedAge
	}
	return p.Retention.CompletedAge
}

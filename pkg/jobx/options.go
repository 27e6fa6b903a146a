package jobx

import "time"

// PoolOptions configures the worker pool.
type PoolOptions struct {
	Concurrency  int
	PollInterval time.Duration
	// JobTimeout bounds a single attempt. Zero disables it.
	JobTimeout time.Duration
	// StalledAfter is how long a job may stay active before the scheduler
	// returns it to waiting. Zero disables stalled recovery.
	StalledAfter    time.Duration
	StalledInterval time.Duration
	// HeartbeatInterval is how often a running attempt renews its lease.
	// Zero means a quarter of StalledAfter.
	HeartbeatInterval time.Duration
	// ReportTimeout bounds the Complete/Fail call made after an attempt.
	ReportTimeout time.Duration
	Events        EventHandler
	State         StateSource
}

func defaultPoolOptions() PoolOptions {
	return PoolOptions{
		Concurrency:     5,
		PollInterval:    500 * time.Millisecond,
		JobTimeout:      2 * time.Minute,
		StalledAfter:    4 * time.Minute,
		StalledInterval: 30 * time.Second,
		ReportTimeout:   5 * time.Second,
		Events:          LogHandler{},
	}
}

// PoolOption is a functional option for configuring the pool.
type PoolOption func(*PoolOptions)

// WithConcurrency sets the number of jobs processed at once.
func WithConcurrency(n int) PoolOption {
	return func(o *PoolOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithPollInterval sets the wait between claims when the queue is idle.
func WithPollInterval(d time.Duration) PoolOption {
	return func(o *PoolOptions) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// WithJobTimeout bounds each attempt. Stalled recovery follows at twice
// the timeout.
func WithJobTimeout(d time.Duration) PoolOption {
	return func(o *PoolOptions) {
		if d < 0 {
			return
		}
		o.JobTimeout = d
		o.StalledAfter = 2 * d
	}
}

// WithStalledRecovery overrides when and how often active jobs are
// treated as stalled.
func WithStalledRecovery(after, every time.Duration) PoolOption {
	return func(o *PoolOptions) {
		o.StalledAfter = after
		if every > 0 {
			o.StalledInterval = every
		}
	}
}

// WithHeartbeatInterval sets how often running attempts renew their lease.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(o *PoolOptions) {
		if d > 0 {
			o.HeartbeatInterval = d
		}
	}
}

// heartbeatEvery resolves the effective lease renewal period. No stalled
// recovery means nothing to renew against.
func (o PoolOptions) heartbeatEvery() time.Duration {
	if o.StalledAfter <= 0 {
		return 0
	}
	if o.HeartbeatInterval > 0 {
		return o.HeartbeatInterval
	}
	return o.StalledAfter / 4
}

// WithReportTimeout bounds the result report for each attempt.
func WithReportTimeout(d time.Duration) PoolOption {
	return func(o *PoolOptions) {
		if d > 0 {
			o.ReportTimeout = d
		}
	}
}

// WithEventHandler replaces the event handler. Use MultiHandler to keep logging.
func WithEventHandler(h EventHandler) PoolOption {
	return func(o *PoolOptions) {
		if h != nil {
			o.Events = h
		}
	}
}

// WithConnection attaches the broker connection. Claims pause while it
// is not ready and the pool reports ErrBrokerFatal when it errors.
func WithConnection(s StateSource) PoolOption {
	return func(o *PoolOptions) {
		o.State = s
	}
}

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	Policy RetryPolicy
}

// SubmitterOption is a functional option for configuring the submitter.
type SubmitterOption func(*SubmitterOptions)

// WithRetryPolicy sets the policy attached to submitted jobs. The policy
// must already be validated.
func WithRetryPolicy(p RetryPolicy) SubmitterOption {
	return func(o *SubmitterOptions) {
		o.Policy = p
	}
}

// InlineOptions configures an InlineExecutor.
type InlineOptions struct {
	Timeout time.Duration
	Events  EventHandler
}

// InlineOption is a functional option for configuring inline execution.
type InlineOption func(*InlineOptions)

// WithInlineTimeout bounds inline executions. Zero disables it.
func WithInlineTimeout(d time.Duration) InlineOption {
	return func(o *InlineOptions) {
		if d >= 0 {
			o.Timeout = d
		}
	}
}

// WithInlineEvents sets the handler for inline job events.
func WithInlineEvents(h EventHandler) InlineOption {
	return func(o *InlineOptions) {
		if h != nil {
			o.Events = h
		}
	}
}

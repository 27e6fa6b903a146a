package jobxredis

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/backoffx"
	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/redis/go-redis/v9"
)

// ConnectionConfig describes how to reach Redis.
type ConnectionConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	DB             int
	TLS            bool
	ConnectTimeout time.Duration
}

// Options builds go-redis client options.
func (c ConnectionConfig) Options() *redis.Options {
	opts := &redis.Options{
		Addr:        net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.ConnectTimeout,
		// The connection loop owns retrying.
		MaxRetries: -1,
	}
	if c.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: c.Host}
	}
	return opts
}

// ConnectionOptions tunes the reconnect loop.
type ConnectionOptions struct {
	Backoff backoffx.Linear
	// MaxAttempts is the number of consecutive failures before the loop
	// gives up and enters errored. Zero retries forever.
	MaxAttempts    int
	HealthInterval time.Duration
	PingTimeout    time.Duration
}

func defaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		Backoff:        backoffx.NewLinear(500*time.Millisecond, 10*time.Second),
		MaxAttempts:    20,
		HealthInterval: 5 * time.Second,
		PingTimeout:    5 * time.Second,
	}
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*ConnectionOptions)

// WithReconnectBackoff sets the linear reconnect delay min(n*unit, maxDelay).
func WithReconnectBackoff(unit, maxDelay time.Duration) ConnectionOption {
	return func(o *ConnectionOptions) {
		if unit > 0 {
			o.Backoff = backoffx.NewLinear(unit, maxDelay)
		}
	}
}

// WithMaxReconnectAttempts sets the give-up budget. Zero retries forever.
func WithMaxReconnectAttempts(n int) ConnectionOption {
	return func(o *ConnectionOptions) {
		if n >= 0 {
			o.MaxAttempts = n
		}
	}
}

// WithHealthInterval sets how often a ready connection is pinged.
func WithHealthInterval(d time.Duration) ConnectionOption {
	return func(o *ConnectionOptions) {
		if d > 0 {
			o.HealthInterval = d
		}
	}
}

// WithPingTimeout bounds each connection attempt.
func WithPingTimeout(d time.Duration) ConnectionOption {
	return func(o *ConnectionOptions) {
		if d > 0 {
			o.PingTimeout = d
		}
	}
}

// Connection owns the shared Redis client and tracks whether the broker
// is usable. A background loop pings Redis, retries with linear backoff
// while it is down and parks in errored once the retry budget is spent or
// the server rejects the credentials. Probe wakes a parked loop.
type Connection struct {
	client  redis.UniversalClient
	tracker *jobx.StateTracker
	opts    ConnectionOptions

	ping  func(ctx context.Context) error
	after func(d time.Duration) <-chan time.Time

	probe     chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewConnection builds a client for cfg and starts the connect loop. It
// does not block.
func NewConnection(cfg ConnectionConfig, opts ...ConnectionOption) *Connection {
	if cfg.ConnectTimeout > 0 {
		opts = append([]ConnectionOption{WithPingTimeout(cfg.ConnectTimeout)}, opts...)
	}
	return NewConnectionFromClient(redis.NewClient(cfg.Options()), opts...)
}

// NewConnectionFromClient wraps an existing client and starts the loop.
func NewConnectionFromClient(client redis.UniversalClient, opts ...ConnectionOption) *Connection {
	c := newConnection(client, opts...)
	c.start()
	return c
}

func newConnection(client redis.UniversalClient, opts ...ConnectionOption) *Connection {
	o := defaultConnectionOptions()
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		client:  client,
		tracker: jobx.NewStateTracker("redis", jobx.StateConnecting),
		opts:    o,
		after:   time.After,
		probe:   make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return c
}

var _ jobx.StateSource = (*Connection)(nil)

func (c *Connection) start() {
	c.wg.Add(1)
	go c.run()
}

// Client returns the shared client. It is safe for concurrent use.
func (c *Connection) Client() redis.UniversalClient { return c.client }

// State returns the current connection state.
func (c *Connection) State() jobx.ConnState { return c.tracker.State() }

// Subscribe registers a listener for state transitions.
func (c *Connection) Subscribe(fn jobx.StateListener) func() { return c.tracker.Subscribe(fn) }

// Probe asks a parked loop to try again. It never blocks and is ignored
// while a reconnect cycle is already running.
func (c *Connection) Probe() {
	select {
	case c.probe <- struct{}{}:
	default:
	}
}

// WaitReady blocks until the connection is ready, has errored, or ctx is
// done. It reports whether the connection is ready.
func (c *Connection) WaitReady(ctx context.Context) bool {
	changed := make(chan struct{}, 1)
	unsubscribe := c.tracker.Subscribe(func(jobx.StateChange) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		switch c.State() {
		case jobx.StateReady:
			return true
		case jobx.StateErrored, jobx.StateDisconnected:
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-changed:
		}
	}
}

// Close stops the loop and closes the client.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.closeErr = c.client.Close()
		c.tracker.Set(jobx.StateDisconnected, nil)
	})
	return c.closeErr
}

func (c *Connection) run() {
	defer c.wg.Done()

	failures := 0
	for {
		err := c.attempt()
		if c.ctx.Err() != nil {
			return
		}

		if err == nil {
			failures = 0
			c.tracker.Set(jobx.StateReady, nil)
			if !c.sleep(c.opts.HealthInterval) {
				return
			}
			continue
		}

		if isAuthError(err) {
			c.drainProbe()
			c.tracker.SetFatal(redisErrors.NewWithCause(ErrAuth, err))
			if !c.park() {
				return
			}
			failures = 0
			continue
		}

		failures++
		if c.opts.MaxAttempts > 0 && failures >= c.opts.MaxAttempts {
			c.drainProbe()
			c.tracker.Set(jobx.StateErrored, redisErrors.NewWithCause(ErrGaveUp, err).
				WithDetail("attempts", failures))
			if !c.park() {
				return
			}
			failures = 0
			continue
		}

		if c.tracker.State() != jobx.StateConnecting {
			c.tracker.Set(jobx.StateReconnecting, redisErrors.NewWithCause(ErrConnection, err))
		}
		if !c.sleep(c.opts.Backoff.Delay(failures)) {
			return
		}
	}
}

func (c *Connection) attempt() error {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.PingTimeout)
	defer cancel()
	return c.ping(ctx)
}

func (c *Connection) sleep(d time.Duration) bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-c.after(d):
		return true
	}
}

// drainProbe discards probes sent while a cycle was still running.
func (c *Connection) drainProbe() {
	select {
	case <-c.probe:
	default:
	}
}

// park waits in errored until Probe is called.
func (c *Connection) park() bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-c.probe:
		return true
	}
}

func isAuthError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"NOAUTH", "WRONGPASS", "NOPERM"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

package lifecycle

import (
	"context"
	"os"
	"time"
)

// Exit codes returned by Run.
const (
	ExitOK     = 0
	ExitFatal  = 1
	ExitForced = 2
)

// Cleanup runs after the runner has closed, in registration order.
type Cleanup struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Options configures a Supervisor.
type Options struct {
	// ShutdownTimeout bounds Runner.Close. Cleanups get a fresh budget of
	// the same length.
	ShutdownTimeout time.Duration
	// Signals replaces the SIGINT/SIGTERM subscription.
	Signals  <-chan os.Signal
	Cleanups []Cleanup
}

func defaultOptions() Options {
	return Options{ShutdownTimeout: 5 * time.Second}
}

type Option func(*Options)

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}

// WithSignals feeds shutdown signals from ch instead of the process.
func WithSignals(ch <-chan os.Signal) Option {
	return func(o *Options) {
		o.Signals = ch
	}
}

func WithCleanup(name string, fn func(ctx context.Context) error) Option {
	return func(o *Options) {
		o.Cleanups = append(o.Cleanups, Cleanup{Name: name, Fn: fn})
	}
}

// Package lifecycle runs a long-lived process: it starts a runner, waits
// for a termination signal or a fatal error, and drains within a bounded
// time.
package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Abraxas-365/profilejobs/pkg/asyncx"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
)

// Runner is the supervised component, typically a jobx.Pool.
type Runner interface {
	Start(ctx context.Context) error
	Close(ctx context.Context) error
	// Fatal delivers an error that must end the process without draining.
	Fatal() <-chan error
}

type supervised struct {
	name string
	fn   func(ctx context.Context) error
}

// Supervisor owns the process lifecycle. Run may be called once.
type Supervisor struct {
	runner Runner
	opts   Options

	mu       sync.Mutex
	pending  []supervised
	runCtx   context.Context
	failures chan error

	shuttingDown atomic.Bool
}

func New(runner Runner, options ...Option) *Supervisor {
	opts := defaultOptions()
	for _, opt := range options {
		opt(&opts)
	}
	return &Supervisor{
		runner:   runner,
		opts:     opts,
		failures: make(chan error, 1),
	}
}

// Go runs fn alongside the runner once Run has started it. A panic, or an
// error returned before shutdown began, is fatal. The context passed to fn
// is cancelled after the runner closes; Run does not wait for fn.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		s.pending = append(s.pending, supervised{name: name, fn: fn})
		return
	}
	s.launch(s.runCtx, supervised{name: name, fn: fn})
}

// ShuttingDown reports whether a graceful shutdown is in progress.
func (s *Supervisor) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// Run blocks until the process should exit and returns the exit code.
// Cancelling ctx starts a graceful shutdown like a signal does.
func (s *Supervisor) Run(ctx context.Context) int {
	signals := s.opts.Signals
	if signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.runner.Start(runCtx); err != nil {
		s.fatal(lifecycleErrors.NewWithCause(ErrStart, err))
		return ExitFatal
	}

	s.mu.Lock()
	s.runCtx = runCtx
	for _, g := range s.pending {
		s.launch(runCtx, g)
	}
	s.pending = nil
	s.mu.Unlock()

	logx.Component("lifecycle").Info("running")

	select {
	case sig := <-signals:
		logx.Component("lifecycle").WithField("signal", sig.String()).Info("shutdown requested")
	case <-ctx.Done():
		logx.Component("lifecycle").Info("context cancelled, shutting down")
	case err := <-s.runner.Fatal():
		s.fatal(lifecycleErrors.NewWithCause(ErrFatal, err))
		return ExitFatal
	case err := <-s.failures:
		s.fatal(err)
		return ExitFatal
	}

	return s.shutdown(signals, cancel)
}

func (s *Supervisor) shutdown(signals <-chan os.Signal, cancelRun context.CancelFunc) int {
	s.shuttingDown.Store(true)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case sig := <-signals:
				logx.Component("lifecycle").WithField("signal", sig.String()).Warn("already shutting down, signal ignored")
			case <-done:
				return
			}
		}
	}()

	code := ExitOK
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	err := closeWithin(ctx, s.runner)
	cancel()
	if err != nil {
		logx.Component("lifecycle").WithError(lifecycleErrors.NewWithCause(ErrForced, err).
			WithDetail("timeout", s.opts.ShutdownTimeout.String())).
			Error("forced shutdown")
		code = ExitForced
	}

	// Supervised goroutines stop with the run context.
	cancelRun()

	if len(s.opts.Cleanups) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		for _, c := range s.opts.Cleanups {
			if err := c.Fn(ctx); err != nil {
				logx.Component("lifecycle").WithError(err).WithField("cleanup", c.Name).Warn("cleanup failed")
			}
		}
	}

	if code == ExitOK {
		logx.Component("lifecycle").Info("shutdown complete")
	}
	return code
}

// closeWithin returns when the runner closes or ctx expires, whichever is
// first. A runner that ignores ctx is abandoned.
func closeWithin(ctx context.Context, r Runner) error {
	result := make(chan error, 1)
	go func() {
		var err error
		func() {
			defer asyncx.Recover(&err)
			err = r.Close(ctx)
		}()
		result <- err
	}()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) launch(ctx context.Context, g supervised) {
	go func() {
		var err error
		func() {
			defer asyncx.Recover(&err)
			err = g.fn(ctx)
		}()
		if err == nil || s.shuttingDown.Load() {
			return
		}

		var panicErr *asyncx.PanicError
		code := ErrSupervisedExit
		if errors.As(err, &panicErr) {
			code = ErrSupervisedPanic
		}
		select {
		case s.failures <- lifecycleErrors.NewWithCause(code, err).WithDetail("goroutine", g.name):
		default:
		}
	}()
}

func (s *Supervisor) fatal(err error) {
	entry := logx.Component("lifecycle").WithError(err).WithField("fatal", true)
	var panicErr *asyncx.PanicError
	if errors.As(err, &panicErr) {
		entry = entry.WithField("stack", string(panicErr.Stack))
	}
	entry.Error("fatal error, exiting without drain")
}

package jobx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/asyncx"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
)

// Pool claims jobs from a WorkerQueue and runs them through a Processor.
// At most Concurrency jobs run at once.
type Pool struct {
	queue     WorkerQueue
	processor Processor
	opts      PoolOptions

	mu      sync.Mutex
	running bool
	// stopping is set while Close drains. The pool can only be started
	// again once the loops of the previous run have exited.
	stopping    bool
	stop        context.CancelFunc
	loops       sync.WaitGroup
	unsubscribe func()

	// jobCtx parents every attempt. It is cancelled only when a graceful
	// drain times out.
	jobCtx     context.Context
	cancelJobs context.CancelFunc

	inflight  atomic.Int64
	fatal     chan error
	fatalOnce sync.Once
}

// NewPool creates a worker pool.
func NewPool(queue WorkerQueue, processor Processor, options ...PoolOption) *Pool {
	opts := defaultPoolOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Pool{
		queue:     queue,
		processor: processor,
		opts:      opts,
		fatal:     make(chan error, 1),
	}
}

// Start launches the claim loops and the scheduler and returns. The loops
// stop claiming when ctx is done or Close is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopping {
		return jobxErrors.New(ErrAlreadyRunning).WithDetail("stopping", p.stopping)
	}
	p.running = true

	loopCtx, stop := context.WithCancel(ctx)
	p.stop = stop
	p.jobCtx, p.cancelJobs = context.WithCancel(context.WithoutCancel(ctx))

	if src := p.opts.State; src != nil {
		p.unsubscribe = src.Subscribe(func(c StateChange) {
			if c.To == StateErrored {
				p.reportFatal(jobxErrors.NewWithCause(ErrBrokerFatal, c.Err))
			}
		})
		if src.State() == StateErrored {
			p.reportFatal(jobxErrors.New(ErrBrokerFatal))
		}
	}

	jobLog().WithField("concurrency", p.opts.Concurrency).Info("starting worker pool")

	p.loops.Add(1)
	go p.schedulerLoop(loopCtx)

	for i := range p.opts.Concurrency {
		p.loops.Add(1)
		go p.claimLoop(loopCtx, i)
	}
	return nil
}

// Close stops claiming and waits for in-flight jobs until ctx is done.
// On timeout the remaining attempts are cancelled and ErrShutdownTimeout
// is returned; the pool stays stopping until the last loop exits, so Start
// keeps failing with ErrAlreadyRunning until then. Close is safe to call
// more than once.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopping = true
	stop, cancelJobs, unsubscribe := p.stop, p.cancelJobs, p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	stop()
	jobLog().WithField("in_flight", p.inflight.Load()).Info("draining worker pool")

	stopped := func() {
		p.loops.Wait()
		p.mu.Lock()
		p.stopping = false
		p.mu.Unlock()
	}
	if err := asyncx.WaitContext(ctx, stopped); err != nil {
		inflight := p.inflight.Load()
		cancelJobs()
		jobLog().WithField("in_flight", inflight).Warn("drain timed out, cancelling in-flight jobs")
		return jobxErrors.NewWithCause(ErrShutdownTimeout, err).WithDetail("in_flight", inflight)
	}
	cancelJobs()
	jobLog().Info("worker pool stopped")
	return nil
}

// Fatal delivers at most one unrecoverable error, such as the broker
// connection giving up or a worker loop panicking.
func (p *Pool) Fatal() <-chan error {
	return p.fatal
}

// InFlight returns the number of attempts currently running.
func (p *Pool) InFlight() int64 {
	return p.inflight.Load()
}

func (p *Pool) reportFatal(err error) {
	p.fatalOnce.Do(func() {
		jobLog().WithError(err).Error("worker pool hit a fatal error")
		p.fatal <- err
	})
}

func (p *Pool) guard(name string) {
	if r := recover(); r != nil {
		p.reportFatal(jobxErrors.NewWithCause(ErrWorkerPanic, &asyncx.PanicError{Value: r}).
			WithDetail("loop", name))
	}
}

func (p *Pool) brokerReady() bool {
	return p.opts.State == nil || p.opts.State.State() == StateReady
}

func (p *Pool) schedulerLoop(ctx context.Context) {
	defer p.loops.Done()
	defer p.guard("scheduler")

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()
	var lastStalledCheck time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !p.brokerReady() {
			continue
		}

		if _, err := p.queue.PromoteScheduled(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			jobLog().WithError(err).Warn("failed to promote scheduled jobs")
		}

		if p.opts.StalledAfter > 0 && time.Since(lastStalledCheck) >= p.opts.StalledInterval {
			lastStalledCheck = time.Now()
			out, err := p.queue.RequeueStalled(ctx, p.opts.StalledAfter)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				jobLog().WithError(err).Warn("failed to requeue stalled jobs")
			} else if out.Total() > 0 {
				jobLog().WithFields(logx.Fields{
					"requeued": out.Requeued,
					"failed":   out.Failed,
				}).Warn("recovered stalled jobs")
			}
		}
	}
}

func (p *Pool) claimLoop(ctx context.Context, id int) {
	defer p.loops.Done()
	defer p.guard("worker")

	for {
		if ctx.Err() != nil {
			return
		}
		if !p.brokerReady() {
			p.idle(ctx)
			continue
		}

		job, err := p.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			jobLog().WithError(err).WithField("worker", id).Warn("claim failed")
			p.idle(ctx)
			continue
		}
		if job == nil {
			p.idle(ctx)
			continue
		}

		p.processJob(job)
	}
}

func (p *Pool) idle(ctx context.Context) {
	t := time.NewTimer(p.opts.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// processJob runs one attempt. It does not observe the claim loop context,
// so a graceful stop lets the attempt finish. While the processor runs the
// lease is renewed; losing it cancels the attempt and its result is
// dropped.
func (p *Pool) processJob(job *JobInfo) {
	p.inflight.Add(1)
	defer p.inflight.Add(-1)

	lease := job.Lease()
	ctx, cancelAttempt := context.WithCancelCause(p.jobCtx)
	defer cancelAttempt(nil)
	if p.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	stopHeartbeat := p.keepAlive(lease, cancelAttempt)
	snapshotID, err := runProcessor(ctx, p.processor, job.Payload)
	stopHeartbeat()
	elapsed := time.Since(start)

	reportCtx, cancel := context.WithTimeout(context.Background(), p.opts.ReportTimeout)
	defer cancel()

	ev := Event{
		Mode:         ModeDurable,
		JobID:        job.ID,
		AttemptsMade: job.AttemptsMade,
		MaxAttempts:  job.Policy.MaxAttempts,
		Duration:     elapsed,
	}

	if err != nil {
		outcome, failErr := p.queue.Fail(reportCtx, lease, err.Error())
		if failErr != nil {
			p.reportFailed(job, failErr, "failed to record job failure")
			return
		}
		ev.Err = err
		ev.AttemptsMade = outcome.AttemptsMade
		if outcome.Retrying {
			ev.Type = EventRetrying
			ev.NextRunAt = outcome.NextRunAt
		} else {
			ev.Type = EventFailed
		}
		p.opts.Events.HandleEvent(ev)
		return
	}

	if err := p.queue.Complete(reportCtx, lease, snapshotID); err != nil {
		p.reportFailed(job, err, "failed to complete job")
		return
	}
	ev.Type = EventCompleted
	ev.SnapshotID = snapshotID
	p.opts.Events.HandleEvent(ev)
}

// reportFailed logs a Complete or Fail that did not land. A lost lease
// means another attempt owns the job now, which is expected after a stall.
func (p *Pool) reportFailed(job *JobInfo, err error, msg string) {
	entry := jobLog().WithError(err).WithFields(logx.Fields{
		"job_id":        job.ID,
		"attempts_made": job.AttemptsMade,
	})
	if errors.Is(err, ErrLeaseLost) || errors.Is(err, ErrJobNotActive) {
		entry.Warn("result discarded, job is no longer held by this attempt")
		return
	}
	entry.Error(msg)
}

// keepAlive renews lease until the returned stop function is called. When
// the queue reports the lease lost it cancels the attempt with that cause.
func (p *Pool) keepAlive(lease Lease, lost context.CancelCauseFunc) (stop func()) {
	every := p.opts.heartbeatEvery()
	if every <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			ctx, cancel := context.WithTimeout(context.Background(), p.opts.ReportTimeout)
			err := p.queue.Heartbeat(ctx, lease)
			cancel()
			switch {
			case err == nil:
			case errors.Is(err, ErrLeaseLost):
				jobLog().WithField("job_id", lease.JobID).Warn("lease lost, cancelling attempt")
				lost(err)
				return
			default:
				jobLog().WithError(err).WithField("job_id", lease.JobID).Warn("heartbeat failed")
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

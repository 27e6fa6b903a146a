package jobx

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/asyncx"
	"github.com/Abraxas-365/profilejobs/pkg/errx"
	"github.com/Abraxas-365/profilejobs/pkg/kernel"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
)

// Executor runs or schedules a job.
type Executor interface {
	Execute(ctx context.Context, job Job) (Handle, error)
}

// Prober is implemented by connections that accept a hint to retry now.
type Prober interface {
	Probe()
}

// Submitter is the entry point for requesting an analysis. It dispatches
// to the durable executor while the broker is ready and to the inline
// executor otherwise.
type Submitter struct {
	health  Health
	durable Executor
	inline  Executor
	opts    SubmitterOptions
}

// NewSubmitter creates a submitter over the given executors.
func NewSubmitter(health Health, durable, inline Executor, options ...SubmitterOption) *Submitter {
	opts := SubmitterOptions{Policy: DefaultRetryPolicy()}
	for _, o := range options {
		o(&opts)
	}
	return &Submitter{
		health:  health,
		durable: durable,
		inline:  inline,
		opts:    opts,
	}
}

// Submit requests an analysis of subjectKey on behalf of requesterID.
// Submitting the same pair while a job is outstanding is a no-op that
// returns a handle with Duplicate set.
func (s *Submitter) Submit(ctx context.Context, requesterID, subjectKey string) (Handle, error) {
	job, err := s.newJob(requesterID, subjectKey)
	if err != nil {
		return Handle{}, err
	}

	state := s.health.State()
	if state == StateReady {
		h, err := s.durable.Execute(ctx, job)
		if err == nil {
			return h, nil
		}
		if !isTransportError(err) {
			return Handle{}, err
		}
		jobLog().WithError(err).
			WithField("job_id", job.ID).
			Warn("durable enqueue failed, running job inline without durability")
	} else {
		jobLog().WithFields(logx.Fields{
			"job_id": job.ID,
			"state":  string(state),
		}).Warn("broker not ready, running job inline without durability")
		if p, ok := s.health.(Prober); ok {
			p.Probe()
		}
	}

	return s.inline.Execute(ctx, job)
}

// isTransportError reports whether a durable enqueue failed because of the
// broker rather than the job. Validation and internal errors, such as a
// payload that cannot be encoded, fail the submission instead of running
// inline.
func isTransportError(err error) bool {
	t, ok := errx.TypeOf(err)
	if !ok {
		return true
	}
	return t != errx.TypeValidation && t != errx.TypeInternal
}

// Close waits for in-flight inline work when the inline executor supports
// it.
func (s *Submitter) Close(ctx context.Context) error {
	if c, ok := s.inline.(interface{ Close(context.Context) error }); ok {
		return c.Close(ctx)
	}
	return nil
}

func (s *Submitter) newJob(requesterID, subjectKey string) (Job, error) {
	requester := kernel.NewRequesterID(requesterID)
	subject := kernel.NewSubjectKey(subjectKey)

	switch {
	case requester.IsEmpty():
		return Job{}, jobxErrors.NewWithMessage(ErrInvalidRequest, "requester id is required")
	case subject.IsEmpty():
		return Job{}, jobxErrors.NewWithMessage(ErrInvalidRequest, "subject key is required")
	case strings.Contains(requester.String(), kernel.JobIDSeparator):
		return Job{}, jobxErrors.NewWithMessage(ErrInvalidRequest, "requester id must not contain "+kernel.JobIDSeparator).
			WithDetail("requester_id", requester.String())
	}

	return Job{
		ID: kernel.NewJobID(requester, subject).String(),
		Payload: Payload{
			RequesterID: requester.String(),
			SubjectKey:  subject.String(),
		},
		Policy: s.opts.Policy,
	}, nil
}

// DurableExecutor hands jobs to the broker queue.
type DurableExecutor struct {
	queue JobEnqueuer
}

// NewDurableExecutor creates an executor over queue.
func NewDurableExecutor(queue JobEnqueuer) *DurableExecutor {
	return &DurableExecutor{queue: queue}
}

func (e *DurableExecutor) Execute(ctx context.Context, job Job) (Handle, error) {
	duplicate, err := e.queue.Enqueue(ctx, job)
	if err != nil {
		return Handle{}, err
	}
	if duplicate {
		jobLog().WithField("job_id", job.ID).Debug("job already outstanding, submission absorbed")
	}
	return Handle{JobID: job.ID, Mode: ModeDurable, Duplicate: duplicate}, nil
}

// InlineExecutor runs jobs in the calling process, in the background.
// There is no retry and nothing survives a restart. Concurrent submissions
// of a job that is still running are absorbed.
type InlineExecutor struct {
	processor Processor
	opts      InlineOptions
	tracker   asyncx.Tracker

	mu      sync.Mutex
	running map[string]struct{}
}

// NewInlineExecutor creates an inline executor.
func NewInlineExecutor(processor Processor, options ...InlineOption) *InlineExecutor {
	opts := InlineOptions{Timeout: 2 * time.Minute, Events: LogHandler{}}
	for _, o := range options {
		o(&opts)
	}
	return &InlineExecutor{
		processor: processor,
		opts:      opts,
		running:   make(map[string]struct{}),
	}
}

// Execute starts the job and returns without waiting for it. The job is
// detached from ctx cancellation.
func (e *InlineExecutor) Execute(ctx context.Context, job Job) (Handle, error) {
	e.mu.Lock()
	if _, ok := e.running[job.ID]; ok {
		e.mu.Unlock()
		return Handle{JobID: job.ID, Mode: ModeInline, Duplicate: true}, nil
	}
	e.running[job.ID] = struct{}{}
	e.mu.Unlock()

	e.opts.Events.HandleEvent(Event{Type: EventFallback, Mode: ModeInline, JobID: job.ID})

	runCtx := context.WithoutCancel(ctx)
	e.tracker.Go(func() {
		defer func() {
			e.mu.Lock()
			delete(e.running, job.ID)
			e.mu.Unlock()
		}()
		e.run(runCtx, job)
	})

	return Handle{JobID: job.ID, Mode: ModeInline}, nil
}

func (e *InlineExecutor) run(ctx context.Context, job Job) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	snapshotID, err := runProcessor(ctx, e.processor, job.Payload)
	ev := Event{
		Mode:         ModeInline,
		JobID:        job.ID,
		AttemptsMade: 1,
		MaxAttempts:  1,
		Duration:     time.Since(start),
	}
	if err != nil {
		ev.Type = EventFailed
		ev.Err = err
	} else {
		ev.Type = EventCompleted
		ev.SnapshotID = snapshotID
	}
	e.opts.Events.HandleEvent(ev)
}

// Active returns the number of inline jobs still running.
func (e *InlineExecutor) Active() int {
	return e.tracker.Active()
}

// Close waits for running inline jobs until ctx is done.
func (e *InlineExecutor) Close(ctx context.Context) error {
	if err := e.tracker.Wait(ctx); err != nil {
		return jobxErrors.NewWithCause(ErrShutdownTimeout, err).
			WithDetail("inline_active", e.tracker.Active())
	}
	return nil
}

// runProcessor calls p and turns a panic into an error.
func runProcessor(ctx context.Context, p Processor, payload Payload) (snapshotID string, err error) {
	defer asyncx.Recover(&err)
	return p.Process(ctx, payload)
}

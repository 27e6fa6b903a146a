package jobx_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/errx"
	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/Abraxas-365/profilejobs/pkg/jobx/jobxmemory"
)

// fakeHealth is a settable broker state that counts probes.
type fakeHealth struct {
	state  atomic.Value
	probes atomic.Int32
}

func newFakeHealth(s jobx.ConnState) *fakeHealth {
	h := &fakeHealth{}
	h.state.Store(s)
	return h
}

func (h *fakeHealth) State() jobx.ConnState { return h.state.Load().(jobx.ConnState) }
func (h *fakeHealth) Probe()                { h.probes.Add(1) }

// recordingProcessor records payloads and returns a snapshot id.
type recordingProcessor struct {
	mu    sync.Mutex
	calls []jobx.Payload
	done  chan struct{}
	err   error
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{done: make(chan struct{}, 16)}
}

func (p *recordingProcessor) Process(_ context.Context, payload jobx.Payload) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, payload)
	p.mu.Unlock()
	p.done <- struct{}{}
	if p.err != nil {
		return "", p.err
	}
	return "snap-" + payload.SubjectKey, nil
}

func (p *recordingProcessor) Calls() []jobx.Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]jobx.Payload(nil), p.calls...)
}

type failingEnqueuer struct{ err error }

func (f failingEnqueuer) Enqueue(context.Context, jobx.Job) (bool, error) { return false, f.err }

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestSubmit_ReadyEnqueuesDurably(t *testing.T) {
	captureLogs(t)
	ctx := context.Background()
	queue := jobxmemory.New()
	proc := newRecordingProcessor()
	s := jobx.NewSubmitter(newFakeHealth(jobx.StateReady),
		jobx.NewDurableExecutor(queue), jobx.NewInlineExecutor(proc))

	h, err := s.Submit(ctx, "u1", "octocat")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.JobID != "u1:octocat" || h.Mode != jobx.ModeDurable || h.Duplicate {
		t.Fatalf("unexpected handle %+v", h)
	}

	info, err := queue.GetJob(ctx, "u1:octocat")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if info.Status != jobx.JobStatusWaiting || info.AttemptsMade != 0 {
		t.Fatalf("unexpected job %+v", info)
	}
	if info.Payload.RequesterID != "u1" || info.Payload.SubjectKey != "octocat" {
		t.Fatalf("unexpected payload %+v", info.Payload)
	}
	if info.Policy.MaxAttempts != jobx.DefaultRetryPolicy().MaxAttempts {
		t.Fatalf("policy not attached: %+v", info.Policy)
	}
	if len(proc.Calls()) != 0 {
		t.Fatal("processor must not run on the durable path")
	}
}

func TestSubmit_IdempotentWhileOutstanding(t *testing.T) {
	captureLogs(t)
	ctx := context.Background()
	queue := jobxmemory.New()
	s := jobx.NewSubmitter(newFakeHealth(jobx.StateReady),
		jobx.NewDurableExecutor(queue), jobx.NewInlineExecutor(newRecordingProcessor()))

	if _, err := s.Submit(ctx, "u1", "octocat"); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	h, err := s.Submit(ctx, " u1 ", "octocat ")
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !h.Duplicate {
		t.Fatal("expected duplicate handle")
	}

	stats, _ := queue.Stats(ctx)
	if stats.Waiting != 1 {
		t.Fatalf("expected exactly one waiting job, got %+v", stats)
	}
}

func TestSubmit_NotReadyRunsInline(t *testing.T) {
	captureLogs(t)
	ctx := context.Background()
	health := newFakeHealth(jobx.StateReconnecting)
	proc := newRecordingProcessor()

	var mu sync.Mutex
	var events []jobx.Event
	inline := jobx.NewInlineExecutor(proc, jobx.WithInlineEvents(jobx.EventHandlerFunc(func(e jobx.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})))
	s := jobx.NewSubmitter(health, jobx.NewDurableExecutor(jobxmemory.New()), inline)

	h, err := s.Submit(ctx, "u1", "octocat")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.Mode != jobx.ModeInline {
		t.Fatalf("expected inline handle, got %+v", h)
	}
	waitSignal(t, proc.done, "inline processor")

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if health.probes.Load() != 1 {
		t.Fatalf("expected one probe, got %d", health.probes.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0].Type != jobx.EventFallback || events[1].Type != jobx.EventCompleted {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[1].SnapshotID != "snap-octocat" {
		t.Fatalf("unexpected snapshot id %q", events[1].SnapshotID)
	}
}

func TestSubmit_InlineSurvivesCallerCancellation(t *testing.T) {
	captureLogs(t)
	proc := newRecordingProcessor()
	s := jobx.NewSubmitter(newFakeHealth(jobx.StateErrored),
		jobx.NewDurableExecutor(jobxmemory.New()), jobx.NewInlineExecutor(proc))

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.Submit(ctx, "u1", "octocat"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	cancel()
	waitSignal(t, proc.done, "inline processor")
}

func TestSubmit_EnqueueErrorFallsBackInline(t *testing.T) {
	captureLogs(t)
	proc := newRecordingProcessor()
	s := jobx.NewSubmitter(newFakeHealth(jobx.StateReady),
		jobx.NewDurableExecutor(failingEnqueuer{err: errors.New("broken pipe")}),
		jobx.NewInlineExecutor(proc))

	h, err := s.Submit(context.Background(), "u1", "octocat")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.Mode != jobx.ModeInline {
		t.Fatalf("expected inline fallback, got %+v", h)
	}
	waitSignal(t, proc.done, "inline processor")
}

func TestSubmit_NonTransportEnqueueErrorIsReturned(t *testing.T) {
	captureLogs(t)
	cases := map[string]error{
		"internal":   errx.New("encode payload", errx.TypeInternal),
		"validation": errx.New("bad policy", errx.TypeValidation),
	}
	for name, enqueueErr := range cases {
		t.Run(name, func(t *testing.T) {
			proc := newRecordingProcessor()
			s := jobx.NewSubmitter(newFakeHealth(jobx.StateReady),
				jobx.NewDurableExecutor(failingEnqueuer{err: enqueueErr}),
				jobx.NewInlineExecutor(proc))

			h, err := s.Submit(context.Background(), "u1", "octocat")
			if !errors.Is(err, enqueueErr) {
				t.Fatalf("err = %v, want the enqueue error", err)
			}
			if h != (jobx.Handle{}) {
				t.Fatalf("unexpected handle %+v", h)
			}
			if err := s.Close(context.Background()); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if calls := proc.Calls(); len(calls) != 0 {
				t.Fatalf("processor ran inline %d times", len(calls))
			}
		})
	}
}

func TestSubmit_InlineProcessorFailureIsNotReturned(t *testing.T) {
	captureLogs(t)
	proc := newRecordingProcessor()
	proc.err = errors.New("profile api down")
	s := jobx.NewSubmitter(newFakeHealth(jobx.StateDisconnected),
		jobx.NewDurableExecutor(jobxmemory.New()), jobx.NewInlineExecutor(proc))

	if _, err := s.Submit(context.Background(), "u1", "octocat"); err != nil {
		t.Fatalf("Submit must not surface processor errors: %v", err)
	}
	waitSignal(t, proc.done, "inline processor")
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	s := jobx.NewSubmitter(newFakeHealth(jobx.StateReady),
		jobx.NewDurableExecutor(jobxmemory.New()), jobx.NewInlineExecutor(newRecordingProcessor()))

	cases := []struct{ requester, subject string }{
		{"", "octocat"},
		{"   ", "octocat"},
		{"u1", ""},
		{"u1:x", "octocat"},
	}
	for _, tc := range cases {
		_, err := s.Submit(context.Background(), tc.requester, tc.subject)
		if !errors.Is(err, jobx.ErrInvalidRequest) {
			t.Fatalf("Submit(%q, %q): expected ErrInvalidRequest, got %v", tc.requester, tc.subject, err)
		}
	}
}

func TestInlineExecutor_AbsorbsConcurrentDuplicate(t *testing.T) {
	captureLogs(t)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	proc := jobx.ProcessorFunc(func(ctx context.Context, p jobx.Payload) (string, error) {
		started <- struct{}{}
		<-release
		return "snap", nil
	})
	inline := jobx.NewInlineExecutor(proc)
	job := jobx.Job{ID: "u1:octocat", Payload: jobx.Payload{RequesterID: "u1", SubjectKey: "octocat"}}

	if _, err := inline.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	waitSignal(t, started, "first inline run")

	h, _ := inline.Execute(context.Background(), job)
	if !h.Duplicate {
		t.Fatal("expected the second inline run to be absorbed")
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := inline.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestInlineExecutor_PanicIsReportedAsFailure(t *testing.T) {
	captureLogs(t)
	failed := make(chan jobx.Event, 1)
	proc := jobx.ProcessorFunc(func(context.Context, jobx.Payload) (string, error) {
		panic("nil profile")
	})
	inline := jobx.NewInlineExecutor(proc, jobx.WithInlineEvents(jobx.EventHandlerFunc(func(e jobx.Event) {
		if e.Type == jobx.EventFailed {
			failed <- e
		}
	})))

	_, _ = inline.Execute(context.Background(), jobx.Job{ID: "u1:octocat"})
	select {
	case e := <-failed:
		if e.Err == nil {
			t.Fatal("expected panic error on failed event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for failed event")
	}
}

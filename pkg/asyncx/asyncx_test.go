package asyncx_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/asyncx"
)

func TestTracker_WaitsForGoroutines(t *testing.T) {
	var tr asyncx.Tracker
	var n atomic.Int32

	for range 10 {
		tr.Go(func() {
			time.Sleep(10 * time.Millisecond)
			n.Add(1)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n.Load() != 10 {
		t.Fatalf("expected 10 completions, got %d", n.Load())
	}
	if tr.Active() != 0 {
		t.Fatalf("expected 0 active, got %d", tr.Active())
	}
}

func TestTracker_WaitTimesOut(t *testing.T) {
	var tr asyncx.Tracker
	release := make(chan struct{})
	defer close(release)

	tr.Go(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if tr.Active() != 1 {
		t.Fatalf("expected 1 active, got %d", tr.Active())
	}
}

func TestTracker_RecoversPanics(t *testing.T) {
	got := make(chan *asyncx.PanicError, 1)
	tr := asyncx.Tracker{OnPanic: func(p *asyncx.PanicError) { got <- p }}

	tr.Go(func() { panic("boom") })

	select {
	case p := <-got:
		if p.Value != "boom" || len(p.Stack) == 0 {
			t.Fatalf("unexpected panic error: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestRecover(t *testing.T) {
	run := func() (err error) {
		defer asyncx.Recover(&err)
		panic("kaput")
	}

	var pe *asyncx.PanicError
	if err := run(); !errors.As(err, &pe) || pe.Value != "kaput" {
		t.Fatalf("expected PanicError, got %v", err)
	}
}

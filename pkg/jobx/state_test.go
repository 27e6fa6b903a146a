package jobx_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/Abraxas-365/profilejobs/pkg/logx"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logx.GetDefaultLogger()
	logx.SetDefaultLogger(logx.NewLogger(&logx.Config{
		Level:  logx.LevelInfo,
		Format: logx.FormatJSON,
		Output: &buf,
	}))
	t.Cleanup(func() { logx.SetDefaultLogger(prev) })
	return &buf
}

func TestStateTracker_NotifiesOnlyOnTransitions(t *testing.T) {
	logs := captureLogs(t)
	tracker := jobx.NewStateTracker("redis", jobx.StateConnecting)

	var changes []jobx.StateChange
	tracker.Subscribe(func(c jobx.StateChange) { changes = append(changes, c) })

	down := errors.New("connection refused")
	tracker.Set(jobx.StateReady, nil)
	for range 10 {
		tracker.Set(jobx.StateReconnecting, down)
	}
	tracker.Set(jobx.StateReady, nil)

	if len(changes) != 3 {
		t.Fatalf("expected 3 transitions, got %d: %+v", len(changes), changes)
	}
	if changes[1].From != jobx.StateReady || changes[1].To != jobx.StateReconnecting || changes[1].Err != down {
		t.Fatalf("unexpected transition %+v", changes[1])
	}
	if n := strings.Count(logs.String(), "\n"); n != 3 {
		t.Fatalf("expected 3 log lines for 3 transitions, got %d:\n%s", n, logs.String())
	}
}

func TestStateTracker_ErroredIsRecoverable(t *testing.T) {
	captureLogs(t)
	tracker := jobx.NewStateTracker("redis", jobx.StateReconnecting)

	var last jobx.StateChange
	tracker.Subscribe(func(c jobx.StateChange) { last = c })

	tracker.SetFatal(errors.New("WRONGPASS"))
	if tracker.State() != jobx.StateErrored || !last.Fatal {
		t.Fatalf("expected fatal errored transition, got %+v", last)
	}
	if !tracker.Set(jobx.StateReady, nil) {
		t.Fatal("expected errored -> ready to be allowed")
	}
}

func TestStateTracker_Unsubscribe(t *testing.T) {
	captureLogs(t)
	tracker := jobx.NewStateTracker("redis", jobx.StateConnecting)

	calls := 0
	unsubscribe := tracker.Subscribe(func(jobx.StateChange) { calls++ })
	tracker.Set(jobx.StateReady, nil)
	unsubscribe()
	tracker.Set(jobx.StateReconnecting, nil)

	if calls != 1 {
		t.Fatalf("expected 1 call before unsubscribe, got %d", calls)
	}
}

package jobx

import (
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/logx"
)

// EventType identifies a job lifecycle event.
type EventType string

const (
	EventCompleted EventType = "completed"
	EventRetrying  EventType = "retrying"
	EventFailed    EventType = "failed"
	// EventFallback is emitted when a submission bypasses the broker.
	EventFallback EventType = "fallback"
)

// Event is emitted by the pool and the inline executor.
type Event struct {
	Type         EventType
	Mode         DispatchMode
	JobID        string
	AttemptsMade int
	MaxAttempts  int
	SnapshotID   string
	Err          error
	NextRunAt    time.Time
	Duration     time.Duration
}

// EventHandler receives job events. Handlers are called from worker
// goroutines and must be safe for concurrent use.
type EventHandler interface {
	HandleEvent(Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(Event)

func (f EventHandlerFunc) HandleEvent(e Event) { f(e) }

// MultiHandler fans an event out to several handlers in order.
type MultiHandler []EventHandler

func (m MultiHandler) HandleEvent(e Event) {
	for _, h := range m {
		if h != nil {
			h.HandleEvent(e)
		}
	}
}

func jobLog() *logx.Entry { return logx.Component("jobx") }

// LogHandler writes one line per event through logx.
type LogHandler struct{}

func (LogHandler) HandleEvent(e Event) {
	entry := jobLog().WithFields(logx.Fields{
		"job_id":   e.JobID,
		"mode":     string(e.Mode),
		"attempts": e.AttemptsMade,
	})
	if e.Duration > 0 {
		entry = entry.WithField("duration", e.Duration.String())
	}

	switch e.Type {
	case EventCompleted:
		entry.WithField("snapshot_id", e.SnapshotID).Info("job completed")
	case EventRetrying:
		entry.WithError(e.Err).
			WithField("max_attempts", e.MaxAttempts).
			WithField("next_run_at", e.NextRunAt.Format(time.RFC3339)).
			Warn("job failed, retry scheduled")
	case EventFailed:
		entry.WithError(e.Err).WithField("max_attempts", e.MaxAttempts).Error("job failed permanently")
	case EventFallback:
		entry.Debug("job dispatched inline")
	}
}

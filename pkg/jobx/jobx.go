// Package jobx runs profile analysis jobs through a durable broker queue
// with an inline fallback when the broker is unavailable.
//
// A Submitter turns (requester, subject) pairs into jobs and hands them to
// a DurableExecutor (the queue) or an InlineExecutor (in-process). A Pool
// claims queued jobs and runs them through a Processor with bounded
// concurrency. Retry decisions belong to the store, driven by the
// RetryPolicy attached to each job.
package jobx

import (
	"context"
	"time"
)

// Processor does the actual work of a job. It returns the id of the
// persisted snapshot.
type Processor interface {
	Process(ctx context.Context, payload Payload) (string, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, payload Payload) (string, error)

func (f ProcessorFunc) Process(ctx context.Context, payload Payload) (string, error) {
	return f(ctx, payload)
}

// JobEnqueuer enqueues jobs for processing. Enqueue is idempotent on
// job.ID: when a waiting or active job with the same id exists it returns
// duplicate=true and changes nothing.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job Job) (duplicate bool, err error)
}

// JobStatusReader reads job status.
type JobStatusReader interface {
	GetJob(ctx context.Context, jobID string) (*JobInfo, error)
}

// WorkerQueue provides backend operations for the worker loop.
type WorkerQueue interface {
	// Claim moves the oldest due waiting job to active, increments its
	// attempt count and hands it a fresh claim token. It returns nil, nil
	// when nothing is due.
	Claim(ctx context.Context) (*JobInfo, error)
	// Heartbeat renews the lease of a running attempt so stalled recovery
	// leaves it alone. It returns ErrLeaseLost once the job was recovered
	// or settled by someone else.
	Heartbeat(ctx context.Context, lease Lease) error
	Complete(ctx context.Context, lease Lease, result string) error
	// Fail records a failed attempt and either schedules a retry or marks
	// the job failed, following the job's RetryPolicy.
	Fail(ctx context.Context, lease Lease, errMsg string) (FailOutcome, error)
	// PromoteScheduled makes retry-delayed jobs whose time has come
	// claimable.
	PromoteScheduled(ctx context.Context) (int, error)
	// RequeueStalled recovers active jobs whose lease was not renewed for
	// olderThan. Such jobs belong to a worker that died mid-attempt. A job
	// with attempts left goes back to waiting; one without is failed.
	RequeueStalled(ctx context.Context, olderThan time.Duration) (StalledOutcome, error)
}

// Queue combines all backend operations.
type Queue interface {
	JobEnqueuer
	JobStatusReader
	WorkerQueue
}

// QueueStats counts jobs per status.
type QueueStats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// StatsReader is implemented by queues that can report their depth.
type StatsReader interface {
	Stats(ctx context.Context) (QueueStats, error)
}

// Package jobxmemory is an in-process jobx.Queue. It follows the same
// dedup, retry and retention rules as the Redis queue and is used by tests
// and single-process development runs.
package jobxmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/google/uuid"
)

// Queue implements jobx.Queue in memory.
type Queue struct {
	mu        sync.Mutex
	jobs      map[string]*record
	wait      []string
	now       func() time.Time
	completed int64
	failed    int64
}

type record struct {
	info      jobx.JobInfo
	expiresAt time.Time
	// seen is the claim or last heartbeat time of an active job.
	seen time.Time
}

// Option configures the queue.
type Option func(*Queue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		jobs: make(map[string]*record),
		now:  time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

var _ jobx.Queue = (*Queue)(nil)

func (q *Queue) Enqueue(ctx context.Context, job jobx.Job) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	if r := q.lookup(job.ID, now); r != nil && r.info.Status.Outstanding() {
		return true, nil
	}

	q.jobs[job.ID] = &record{info: jobx.JobInfo{
		ID:        job.ID,
		Payload:   job.Payload,
		Status:    jobx.JobStatusWaiting,
		Policy:    job.Policy,
		CreatedAt: now,
		UpdatedAt: now,
		RunAt:     now,
	}}
	q.wait = append(q.wait, job.ID)
	return false, nil
}

func (q *Queue) GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	r := q.lookup(jobID, q.now())
	if r == nil {
		return nil, jobx.NotFound(jobID)
	}
	info := r.info
	return &info, nil
}

// Claim returns the oldest waiting job whose RunAt has passed.
func (q *Queue) Claim(ctx context.Context) (*jobx.JobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	var claimed *record
	kept := q.wait[:0]
	for _, id := range q.wait {
		r := q.lookup(id, now)
		if r == nil || r.info.Status != jobx.JobStatusWaiting {
			continue
		}
		if claimed != nil || r.info.RunAt.After(now) {
			kept = append(kept, id)
			continue
		}
		claimed = r
	}
	q.wait = kept
	if claimed == nil {
		return nil, nil
	}

	claimed.info.Status = jobx.JobStatusActive
	claimed.info.AttemptsMade++
	claimed.info.StartedAt = &now
	claimed.info.HeartbeatAt = nil
	claimed.info.UpdatedAt = now
	claimed.info.ClaimToken = uuid.NewString()
	claimed.seen = now
	info := claimed.info
	return &info, nil
}

// Heartbeat renews the lease of an active job.
func (q *Queue) Heartbeat(ctx context.Context, lease jobx.Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	r, err := q.held(lease, now)
	if err != nil {
		return jobx.LeaseLost(lease.JobID)
	}
	r.seen = now
	r.info.HeartbeatAt = &now
	return nil
}

func (q *Queue) Complete(ctx context.Context, lease jobx.Lease, result string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	r, err := q.held(lease, now)
	if err != nil {
		return err
	}
	r.info.ClaimToken = ""
	r.info.Status = jobx.JobStatusCompleted
	r.info.Result = result
	r.info.FinishedAt = &now
	r.info.UpdatedAt = now
	r.expiresAt = expiry(now, r.info.Policy.RetentionFor(jobx.JobStatusCompleted))
	q.completed++
	return nil
}

func (q *Queue) Fail(ctx context.Context, lease jobx.Lease, errMsg string) (jobx.FailOutcome, error) {
	if err := ctx.Err(); err != nil {
		return jobx.FailOutcome{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	r, err := q.held(lease, now)
	if err != nil {
		return jobx.FailOutcome{}, err
	}
	r.info.ClaimToken = ""
	r.info.LastError = errMsg
	r.info.UpdatedAt = now
	outcome := jobx.FailOutcome{AttemptsMade: r.info.AttemptsMade}

	if r.info.Policy.ShouldRetry(r.info.AttemptsMade) {
		r.info.Status = jobx.JobStatusWaiting
		r.info.RunAt = now.Add(r.info.Policy.RetryDelay(r.info.AttemptsMade))
		q.wait = append(q.wait, lease.JobID)
		outcome.Retrying = true
		outcome.NextRunAt = r.info.RunAt
		return outcome, nil
	}

	r.info.Status = jobx.JobStatusFailed
	r.info.FinishedAt = &now
	r.expiresAt = expiry(now, r.info.Policy.RetentionFor(jobx.JobStatusFailed))
	q.failed++
	return outcome, nil
}

// PromoteScheduled is a no-op. Claim already skips jobs that are not due.
func (q *Queue) PromoteScheduled(ctx context.Context) (int, error) {
	return 0, ctx.Err()
}

// RequeueStalled recovers active jobs not seen for olderThan. Jobs on
// their last attempt are failed with the failed retention applied.
func (q *Queue) RequeueStalled(ctx context.Context, olderThan time.Duration) (jobx.StalledOutcome, error) {
	if err := ctx.Err(); err != nil {
		return jobx.StalledOutcome{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	cutoff := now.Add(-olderThan)
	var out jobx.StalledOutcome
	for _, id := range q.sortedIDs() {
		r := q.jobs[id]
		if r.info.Status != jobx.JobStatusActive || r.seen.After(cutoff) {
			continue
		}
		r.info.ClaimToken = ""
		r.info.LastError = jobx.StalledError
		r.info.UpdatedAt = now

		if !r.info.Policy.ShouldRetry(r.info.AttemptsMade) {
			r.info.Status = jobx.JobStatusFailed
			r.info.FinishedAt = &now
			r.expiresAt = expiry(now, r.info.Policy.RetentionFor(jobx.JobStatusFailed))
			q.failed++
			out.Failed++
			continue
		}
		r.info.Status = jobx.JobStatusWaiting
		r.info.RunAt = now
		q.wait = append(q.wait, id)
		out.Requeued++
	}
	return out, nil
}

// Stats counts current jobs. Completed and Failed are totals since start.
func (q *Queue) Stats(ctx context.Context) (jobx.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return jobx.QueueStats{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	stats := jobx.QueueStats{Completed: q.completed, Failed: q.failed}
	for _, id := range q.sortedIDs() {
		r := q.lookup(id, now)
		if r == nil {
			continue
		}
		switch {
		case r.info.Status == jobx.JobStatusActive:
			stats.Active++
		case r.info.Status == jobx.JobStatusWaiting && r.info.RunAt.After(now):
			stats.Delayed++
		case r.info.Status == jobx.JobStatusWaiting:
			stats.Waiting++
		}
	}
	return stats, nil
}

// lookup returns the record and reaps it when its retention ran out.
func (q *Queue) lookup(id string, now time.Time) *record {
	r, ok := q.jobs[id]
	if !ok {
		return nil
	}
	if !r.expiresAt.IsZero() && !now.Before(r.expiresAt) {
		delete(q.jobs, id)
		return nil
	}
	return r
}

// held returns the record when lease still owns an active job. A token
// mismatch wins over the status so a stale owner always sees ErrLeaseLost.
func (q *Queue) held(lease jobx.Lease, now time.Time) (*record, error) {
	r := q.lookup(lease.JobID, now)
	if r == nil {
		return nil, jobx.NotFound(lease.JobID)
	}
	if r.info.ClaimToken != lease.Token {
		return nil, jobx.LeaseLost(lease.JobID)
	}
	if r.info.Status != jobx.JobStatusActive {
		return nil, jobx.NotActive(lease.JobID, r.info.Status)
	}
	return r, nil
}

func (q *Queue) sortedIDs() []string {
	ids := make([]string, 0, len(q.jobs))
	for id := range q.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func expiry(now time.Time, age time.Duration) time.Time {
	if age <= 0 {
		return time.Time{}
	}
	return now.Add(age)
}

package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/jobx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const promoteBatch = 100

// RedisQueue implements jobx.Queue backed by Redis. Each job is a hash;
// claimable ids sit in a list, retry-delayed ids in a sorted set scored by
// run time and running ids in a sorted set scored by their last claim or
// heartbeat time.
type RedisQueue struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// QueueOption configures a RedisQueue.
type QueueOption func(*RedisQueue)

// WithKeyPrefix namespaces every key. Defaults to "profilejobs".
func WithKeyPrefix(prefix string) QueueOption {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) QueueOption {
	return func(q *RedisQueue) {
		q.now = now
	}
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(rdb redis.UniversalClient, opts ...QueueOption) *RedisQueue {
	q := &RedisQueue{rdb: rdb, prefix: "profilejobs", now: time.Now}
	for _, o := range opts {
		o(q)
	}
	return q
}

var (
	_ jobx.Queue       = (*RedisQueue)(nil)
	_ jobx.StatsReader = (*RedisQueue)(nil)
)

// Key helpers
func (q *RedisQueue) jobPrefix() string          { return q.prefix + ":job:" }
func (q *RedisQueue) jobKey(id string) string    { return q.jobPrefix() + id }
func (q *RedisQueue) waitKey() string            { return q.prefix + ":wait" }
func (q *RedisQueue) delayedKey() string         { return q.prefix + ":delayed" }
func (q *RedisQueue) activeKey() string          { return q.prefix + ":active" }
func (q *RedisQueue) counterKey(s string) string { return q.prefix + ":stats:" + s }

func (q *RedisQueue) nowMillis() int64 { return q.now().UTC().UnixMilli() }

// Enqueue adds a job unless one with the same id is waiting or active.
func (q *RedisQueue) Enqueue(ctx context.Context, job jobx.Job) (bool, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return false, redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job_id", job.ID)
	}
	policy, err := json.Marshal(job.Policy)
	if err != nil {
		return false, redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job_id", job.ID)
	}

	added, err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.jobKey(job.ID), q.waitKey()},
		job.ID, payload, policy, q.nowMillis(),
		job.Policy.MaxAttempts, job.Policy.RetentionFor(jobx.JobStatusFailed).Milliseconds(),
	).Int()
	if err != nil {
		return false, redisErrors.NewWithCause(ErrEnqueue, err).WithDetail("job_id", job.ID)
	}
	return added == 0, nil
}

// GetJob retrieves job info by ID.
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrGetJob, err).WithDetail("job_id", jobID)
	}
	if len(fields) == 0 {
		return nil, jobx.NotFound(jobID)
	}
	return decodeJob(fields)
}

// Claim atomically pops the next waiting job, marks it active and stores a
// new claim token with it.
func (q *RedisQueue) Claim(ctx context.Context) (*jobx.JobInfo, error) {
	id, err := claimScript.Run(ctx, q.rdb,
		[]string{q.waitKey(), q.activeKey()},
		q.jobPrefix(), q.nowMillis(), uuid.NewString(),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, redisErrors.NewWithCause(ErrClaim, err)
	}
	return q.GetJob(ctx, id)
}

// Heartbeat moves the job's score in the active set to now.
func (q *RedisQueue) Heartbeat(ctx context.Context, lease jobx.Lease) error {
	res, err := heartbeatScript.Run(ctx, q.rdb,
		[]string{q.jobKey(lease.JobID), q.activeKey()},
		lease.JobID, lease.Token, q.nowMillis(),
	).Int()
	if err != nil {
		return redisErrors.NewWithCause(ErrHeartbeat, err).WithDetail("job_id", lease.JobID)
	}
	if res != 1 {
		return jobx.LeaseLost(lease.JobID)
	}
	return nil
}

// Complete marks a job as successfully completed and starts its retention.
func (q *RedisQueue) Complete(ctx context.Context, lease jobx.Lease, result string) error {
	info, err := q.GetJob(ctx, lease.JobID)
	if err != nil {
		return err
	}
	if err := checkLease(info, lease); err != nil {
		return err
	}

	ttl := info.Policy.RetentionFor(jobx.JobStatusCompleted).Milliseconds()
	res, err := completeScript.Run(ctx, q.rdb,
		[]string{q.jobKey(lease.JobID), q.activeKey(), q.counterKey("completed")},
		lease.JobID, result, q.nowMillis(), ttl, lease.Token,
	).Int()
	if err != nil {
		return redisErrors.NewWithCause(ErrComplete, err).WithDetail("job_id", lease.JobID)
	}
	return reportResult(res, info)
}

// Fail records a failed attempt. The retry decision and delay come from
// the policy stored with the job.
func (q *RedisQueue) Fail(ctx context.Context, lease jobx.Lease, errMsg string) (jobx.FailOutcome, error) {
	info, err := q.GetJob(ctx, lease.JobID)
	if err != nil {
		return jobx.FailOutcome{}, err
	}
	if err := checkLease(info, lease); err != nil {
		return jobx.FailOutcome{}, err
	}

	now := q.now().UTC()
	outcome := jobx.FailOutcome{AttemptsMade: info.AttemptsMade}
	retry := "0"
	runAt := now
	if info.Policy.ShouldRetry(info.AttemptsMade) {
		retry = "1"
		runAt = now.Add(info.Policy.RetryDelay(info.AttemptsMade))
		outcome.Retrying = true
		outcome.NextRunAt = runAt
	}
	ttl := info.Policy.RetentionFor(jobx.JobStatusFailed).Milliseconds()

	res, err := failScript.Run(ctx, q.rdb,
		[]string{q.jobKey(lease.JobID), q.activeKey(), q.delayedKey(), q.counterKey("failed")},
		lease.JobID, errMsg, now.UnixMilli(), retry, runAt.UnixMilli(), ttl, lease.Token,
	).Int()
	if err != nil {
		return jobx.FailOutcome{}, redisErrors.NewWithCause(ErrFail, err).WithDetail("job_id", lease.JobID)
	}
	if err := reportResult(res, info); err != nil {
		return jobx.FailOutcome{}, err
	}
	return outcome, nil
}

// checkLease mirrors the token and status checks of the report scripts so
// the retry decision is only computed for the owning attempt.
func checkLease(info *jobx.JobInfo, lease jobx.Lease) error {
	if info.ClaimToken != lease.Token {
		return jobx.LeaseLost(info.ID)
	}
	if info.Status != jobx.JobStatusActive {
		return jobx.NotActive(info.ID, info.Status)
	}
	return nil
}

func reportResult(res int, info *jobx.JobInfo) error {
	switch res {
	case 1:
		return nil
	case -1:
		return jobx.LeaseLost(info.ID)
	default:
		return jobx.NotActive(info.ID, info.Status)
	}
}

// PromoteScheduled moves due retries from the delayed set to the wait list.
func (q *RedisQueue) PromoteScheduled(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.delayedKey(), q.waitKey()},
		q.nowMillis(), promoteBatch,
	).Int()
	if err != nil {
		return 0, redisErrors.NewWithCause(ErrPromote, err)
	}
	return n, nil
}

// RequeueStalled recovers active jobs whose score fell behind olderThan.
func (q *RedisQueue) RequeueStalled(ctx context.Context, olderThan time.Duration) (jobx.StalledOutcome, error) {
	now := q.now().UTC()
	counts, err := stalledScript.Run(ctx, q.rdb,
		[]string{q.activeKey(), q.waitKey(), q.counterKey("failed")},
		now.Add(-olderThan).UnixMilli(), q.jobPrefix(), now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return jobx.StalledOutcome{}, redisErrors.NewWithCause(ErrStalled, err)
	}
	if len(counts) != 2 {
		return jobx.StalledOutcome{}, redisErrors.New(ErrStalled).WithDetail("reply_len", len(counts))
	}
	return jobx.StalledOutcome{Requeued: int(counts[0]), Failed: int(counts[1])}, nil
}

// Stats reports queue depth. Completed and Failed are lifetime counters.
func (q *RedisQueue) Stats(ctx context.Context) (jobx.QueueStats, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.LLen(ctx, q.waitKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	active := pipe.ZCard(ctx, q.activeKey())
	completed := pipe.Get(ctx, q.counterKey("completed"))
	failed := pipe.Get(ctx, q.counterKey("failed"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return jobx.QueueStats{}, redisErrors.NewWithCause(ErrStats, err)
	}

	stats := jobx.QueueStats{
		Waiting: waiting.Val(),
		Delayed: delayed.Val(),
		Active:  active.Val(),
	}
	stats.Completed, _ = completed.Int64()
	stats.Failed, _ = failed.Int64()
	return stats, nil
}

func decodeJob(f map[string]string) (*jobx.JobInfo, error) {
	info := &jobx.JobInfo{
		ID:        f["id"],
		Status:    jobx.JobStatus(f["status"]),
		LastError: f["last_error"],
		Result:    f["result"],
		CreatedAt: millis(f["created_at"]),
		UpdatedAt: millis(f["updated_at"]),
		RunAt:     millis(f["run_at"]),

		ClaimToken: f["token"],
	}
	info.AttemptsMade, _ = strconv.Atoi(f["attempts"])
	if v, ok := f["started_at"]; ok {
		t := millis(v)
		info.StartedAt = &t
	}
	if v, ok := f["heartbeat_at"]; ok {
		t := millis(v)
		info.HeartbeatAt = &t
	}
	if v, ok := f["finished_at"]; ok {
		t := millis(v)
		info.FinishedAt = &t
	}

	if err := json.Unmarshal([]byte(f["payload"]), &info.Payload); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job_id", info.ID)
	}
	if err := json.Unmarshal([]byte(f["policy"]), &info.Policy); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job_id", info.ID)
	}
	return info, nil
}

func millis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

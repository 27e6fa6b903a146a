package jobx

import (
	"time"

	"github.com/Abraxas-365/profilejobs/pkg/backoffx"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Outstanding reports whether a job in this status blocks a new submission
// with the same id.
func (s JobStatus) Outstanding() bool {
	return s == JobStatusWaiting || s == JobStatusActive
}

// Terminal reports whether the job finished, successfully or not.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Payload is the input of a Processor.
type Payload struct {
	RequesterID string `json:"requester_id"`
	SubjectKey  string `json:"subject_key"`
}

// Job is a unit of work to be enqueued.
type Job struct {
	// ID is the idempotency key, requesterID:subjectKey.
	ID      string
	Payload Payload
	Policy  RetryPolicy
}

// JobInfo is the full representation of a job stored in the backend.
type JobInfo struct {
	ID           string      `json:"id"`
	Payload      Payload     `json:"payload"`
	Status       JobStatus   `json:"status"`
	AttemptsMade int         `json:"attempts_made"`
	Policy       RetryPolicy `json:"policy"`
	LastError    string      `json:"last_error,omitempty"`
	// Result holds the snapshot id of a completed job.
	Result     string     `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	RunAt      time.Time  `json:"run_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	// HeartbeatAt is the last time the owning worker renewed its lease.
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	// ClaimToken identifies the attempt that holds the job. It is set by
	// Claim and cleared when the job leaves active.
	ClaimToken string `json:"-"`
}

// Lease returns the handle a worker reports the current attempt with.
func (j *JobInfo) Lease() Lease {
	return Lease{JobID: j.ID, Token: j.ClaimToken}
}

// Lease names one claimed attempt of a job. Heartbeat, Complete and Fail
// only act while the token still matches the one stored with the job.
type Lease struct {
	JobID string
	Token string
}

// StalledOutcome counts what stalled recovery did. Jobs that had no
// attempts left are failed rather than requeued.
type StalledOutcome struct {
	Requeued int
	Failed   int
}

// Total is the number of jobs recovered.
func (o StalledOutcome) Total() int {
	return o.Requeued + o.Failed
}

// Retention controls how long finished jobs stay inspectable in the store.
// A zero age keeps the record until it is replaced.
type Retention struct {
	CompletedAge time.Duration `json:"completed_age"`
	FailedAge    time.Duration `json:"failed_age"`
}

// FailOutcome is what the store decided after a failed attempt.
type FailOutcome struct {
	Retrying     bool
	AttemptsMade int
	NextRunAt    time.Time
}

// DispatchMode tells which path a submission took.
type DispatchMode string

const (
	ModeDurable DispatchMode = "durable"
	ModeInline  DispatchMode = "inline"
)

// Handle is returned by Submit. For inline dispatch the outcome is only
// observable through logs, events and the persisted snapshot.
type Handle struct {
	JobID string       `json:"job_id"`
	Mode  DispatchMode `json:"mode"`
	// Duplicate is set when an outstanding job with the same id absorbed
	// the submission.
	Duplicate bool `json:"duplicate"`
}

// Backoff is the retry delay strategy attached to every job.
type Backoff = backoffx.Exponential

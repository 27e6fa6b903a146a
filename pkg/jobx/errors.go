package jobx

import "github.com/Abraxas-365/profilejobs/pkg/errx"

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrJobNotFound     = jobxErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, "Job not found")
	ErrEnqueueFailed   = jobxErrors.Register("ENQUEUE_FAILED", errx.TypeExternal, "Failed to enqueue job")
	ErrInvalidRequest  = jobxErrors.Register("INVALID_REQUEST", errx.TypeValidation, "Invalid submission")
	ErrInvalidPolicy   = jobxErrors.Register("INVALID_POLICY", errx.TypeValidation, "Invalid retry policy")
	ErrJobExecution    = jobxErrors.Register("JOB_EXECUTION", errx.TypeExternal, "Job processor failed")
	ErrAlreadyRunning  = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, "Worker pool is already running")
	ErrBrokerFatal     = jobxErrors.Register("BROKER_FATAL", errx.TypeExternal, "Broker connection failed unrecoverably")
	ErrWorkerPanic     = jobxErrors.Register("WORKER_PANIC", errx.TypeInternal, "Worker loop panicked")
	ErrShutdownTimeout = jobxErrors.Register("SHUTDOWN_TIMEOUT", errx.TypeTimeout, "Graceful shutdown timed out")
)

var (
	ErrJobNotActive = jobxErrors.Register("JOB_NOT_ACTIVE", errx.TypeConflict, "Job is not active")
	ErrLeaseLost    = jobxErrors.Register("LEASE_LOST", errx.TypeConflict, "Job is held by another attempt")
)

// StalledError is the last_error recorded on a job recovered from a worker
// that stopped renewing its lease.
const StalledError = "stalled"

// NotFound builds the error queues return for an unknown job id.
func NotFound(jobID string) error {
	return jobxErrors.New(ErrJobNotFound).WithDetail("job_id", jobID)
}

// NotActive builds the error queues return when a result is reported for
// a job that is not running.
func NotActive(jobID string, status JobStatus) error {
	return jobxErrors.New(ErrJobNotActive).
		WithDetail("job_id", jobID).
		WithDetail("status", string(status))
}

// LeaseLost builds the error queues return when a report or heartbeat
// carries a claim token that no longer owns the job.
func LeaseLost(jobID string) error {
	return jobxErrors.New(ErrLeaseLost).WithDetail("job_id", jobID)
}

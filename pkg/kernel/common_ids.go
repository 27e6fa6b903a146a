package kernel

import "strings"

// RequesterID identifies the user who asked for an analysis.
type RequesterID string

func NewRequesterID(id string) RequesterID { return RequesterID(strings.TrimSpace(id)) }
func (r RequesterID) String() string       { return string(r) }
func (r RequesterID) IsEmpty() bool        { return string(r) == "" }

// SubjectKey identifies the external profile being analyzed, e.g. a login.
type SubjectKey string

func NewSubjectKey(key string) SubjectKey { return SubjectKey(strings.TrimSpace(key)) }
func (s SubjectKey) String() string       { return string(s) }
func (s SubjectKey) IsEmpty() bool        { return string(s) == "" }

// JobIDSeparator joins requester and subject in a job id.
const JobIDSeparator = ":"

// JobID is the deterministic idempotency key of an analysis job.
type JobID string

// NewJobID derives the job id for a requester/subject pair.
func NewJobID(requester RequesterID, subject SubjectKey) JobID {
	return JobID(requester.String() + JobIDSeparator + subject.String())
}

func (j JobID) String() string { return string(j) }
func (j JobID) IsEmpty() bool  { return string(j) == "" }

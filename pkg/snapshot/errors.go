package snapshot

import "github.com/Abraxas-365/profilejobs/pkg/errx"

var snapshotErrors = errx.NewRegistry("SNAPSHOT")

var (
	ErrInvalid  = snapshotErrors.Register("INVALID", errx.TypeValidation, "Invalid snapshot")
	ErrNotFound = snapshotErrors.Register("NOT_FOUND", errx.TypeNotFound, "Snapshot not found")
	ErrConflict = snapshotErrors.Register("CONFLICT", errx.TypeConflict, "Snapshot already exists")
	ErrSave     = snapshotErrors.Register("SAVE", errx.TypeExternal, "Failed to save snapshot")
	ErrLoad     = snapshotErrors.Register("LOAD", errx.TypeExternal, "Failed to load snapshot")
	ErrEncode   = snapshotErrors.Register("ENCODE", errx.TypeInternal, "Failed to encode snapshot")
	ErrDecode   = snapshotErrors.Register("DECODE", errx.TypeInternal, "Failed to decode snapshot")
)

func invalid(field string) error {
	return snapshotErrors.New(ErrInvalid).WithDetail("field", field)
}

// NotFound is returned by Latest when a pair has no snapshots.
func NotFound(requesterID, subjectKey string) error {
	return snapshotErrors.New(ErrNotFound).
		WithDetail("requester_id", requesterID).
		WithDetail("subject_key", subjectKey)
}

// Wrap attaches a registry code to a backend error.
func Wrap(code *errx.ErrorCode, err error) *errx.Error {
	return snapshotErrors.NewWithCause(code, err)
}

package errx

// Type represents the category of error
type Type string

const (
	// TypeInternal represents bugs and invariant violations
	TypeInternal Type = "INTERNAL"

	// TypeValidation represents malformed input or configuration
	TypeValidation Type = "VALIDATION"

	// TypeNotFound represents missing resources
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict represents state conflicts (already running, duplicate)
	TypeConflict Type = "CONFLICT"

	// TypeExternal represents failures of brokers, databases and remote APIs
	TypeExternal Type = "EXTERNAL"

	// TypeTimeout represents exceeded deadlines
	TypeTimeout Type = "TIMEOUT"
)

// String returns the string representation of the error type
func (t Type) String() string {
	return string(t)
}

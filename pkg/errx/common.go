package errx

// Common error constructors for convenience

func Validation(message string) *Error { return New(message, TypeValidation) }
func External(message string) *Error   { return New(message, TypeExternal) }

package errx

import "fmt"

// ErrorCode is a registered error code. It implements error so it can be
// used as an errors.Is target.
type ErrorCode struct {
	Code    string
	Type    Type
	Message string
}

func (c *ErrorCode) Error() string {
	return fmt.Sprintf("[%s] %s", c.Code, c.Message)
}

// Registry namespaces the error codes of one package. Codes are declared
// once, as package variables, and used both to build errors and as
// errors.Is targets.
type Registry struct {
	prefix string
}

// NewRegistry creates a new error registry with a prefix
func NewRegistry(prefix string) *Registry {
	return &Registry{prefix: prefix}
}

// Register declares code as PREFIX_CODE
func (r *Registry) Register(code string, errType Type, message string) *ErrorCode {
	return &ErrorCode{
		Code:    r.prefix + "_" + code,
		Type:    errType,
		Message: message,
	}
}

// New creates a new error from a registered code
func (r *Registry) New(code *ErrorCode) *Error {
	return &Error{
		Code:    code.Code,
		Message: code.Message,
		Type:    code.Type,
		Details: make(map[string]interface{}),
	}
}

// NewWithMessage creates a new error with a custom message
func (r *Registry) NewWithMessage(code *ErrorCode, message string) *Error {
	e := r.New(code)
	e.Message = message
	return e
}

// NewWithCause creates a new error from a registered code wrapping cause
func (r *Registry) NewWithCause(code *ErrorCode, cause error) *Error {
	e := r.New(code)
	e.Err = cause
	return e
}

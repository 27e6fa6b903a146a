package errx

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error type to the suggested HTTP status code
func (t Type) HTTPStatus() int {
	switch t {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExternal:
		return http.StatusBadGateway
	case TypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus returns the status for the first *Error in err's chain, or
// 500 when there is none
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Type.HTTPStatus()
	}
	return http.StatusInternalServerError
}

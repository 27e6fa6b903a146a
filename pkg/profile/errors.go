package profile

import (
	"encoding/json"
	"net/http"

	"github.com/Abraxas-365/profilejobs/pkg/errx"
)

var profileErrors = errx.NewRegistry("PROFILE")

var (
	ErrNotFound     = profileErrors.Register("NOT_FOUND", errx.TypeNotFound, "Profile not found")
	ErrRateLimited  = profileErrors.Register("RATE_LIMITED", errx.TypeExternal, "Profile API rate limit reached")
	ErrUnauthorized = profileErrors.Register("UNAUTHORIZED", errx.TypeExternal, "Profile API rejected the token")
	ErrUpstream     = profileErrors.Register("UPSTREAM", errx.TypeExternal, "Profile API request failed")
	ErrDecode       = profileErrors.Register("DECODE", errx.TypeInternal, "Failed to decode profile response")
	ErrInvalidKey   = profileErrors.Register("INVALID_KEY", errx.TypeValidation, "Invalid subject key")
)

func statusError(status int, body []byte) *errx.Error {
	var code *errx.ErrorCode
	switch {
	case status == http.StatusNotFound:
		code = ErrNotFound
	case status == http.StatusUnauthorized:
		code = ErrUnauthorized
	case status == http.StatusTooManyRequests, status == http.StatusForbidden:
		code = ErrRateLimited
	default:
		code = ErrUpstream
	}

	e := profileErrors.New(code).WithDetail("status_code", status)
	var apiErr struct {
		Message string `json:"message"`
	}
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Message != "" {
		e = e.WithDetail("api_message", apiErr.Message)
	}
	return e
}

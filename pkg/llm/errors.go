package llm

import (
	"errors"

	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
)

// ErrorCode identifies the type of provider error.
type ErrorCode string

const (
	ErrTimeout        ErrorCode = "timeout"
	ErrUnavailable    ErrorCode = "unavailable"
	ErrRateLimit      ErrorCode = "rate_limit"
	ErrAuth           ErrorCode = "auth"
	ErrParseFailure   ErrorCode = "parse_failure"
	ErrContentTooLong ErrorCode = "content_too_long"
	ErrTokenLimit     ErrorCode = "token_limit"
)

// Error is an error returned by a provider.
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// QueryCode maps the provider error onto the shared error codes.
func (e *Error) QueryCode() vqerrors.ErrorCode {
	switch e.Code {
	case ErrTimeout:
		return vqerrors.ErrTimeout
	case ErrUnavailable:
		return vqerrors.ErrModelUnavailable
	case ErrRateLimit:
		return vqerrors.ErrRateLimit
	case ErrAuth:
		return vqerrors.ErrAuthFailed
	case ErrParseFailure:
		return vqerrors.ErrMalformedOutput
	case ErrContentTooLong, ErrTokenLimit:
		return vqerrors.ErrContentTooLarge
	}
	return ""
}

// CodeOf returns the provider error code carried by err.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// codeForStatus maps an HTTP status from a completion endpoint to an error code.
func codeForStatus(status int) ErrorCode {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 408 || status == 504:
		return ErrTimeout
	case status == 413:
		return ErrContentTooLong
	case status == 429:
		return ErrRateLimit
	default:
		return ErrUnavailable
	}
}

// Package errors provides the domain error types used across vidq.
//
// Sentinel errors cover conditions callers branch on with errors.Is. Stage
// failures inside a question-answering run are wrapped in a *QueryError that
// carries a classified ErrorCode.
//
// Usage:
//
//	import vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
//
//	if vqerrors.IsNotFound(err) {
//	    // no such video
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested video or record was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized indicates a missing or rejected model API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoVideo indicates no video identifier could be resolved.
	ErrNoVideo = errors.New("no video identifier")

	// ErrNotConfigured indicates an optional backend was not configured.
	ErrNotConfigured = errors.New("not configured")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthorized reports whether any error in err's chain is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNoVideo reports whether any error in err's chain is ErrNoVideo.
func IsNoVideo(err error) bool {
	return errors.Is(err, ErrNoVideo)
}

// IsNotConfigured reports whether any error in err's chain is ErrNotConfigured.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

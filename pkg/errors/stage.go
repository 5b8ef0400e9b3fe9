package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified stage failure.
type ErrorCode string

const (
	ErrTimeout          ErrorCode = "timeout"
	ErrRateLimit        ErrorCode = "rate_limit"
	ErrModelUnavailable ErrorCode = "model_unavailable"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrRetrievalFailed  ErrorCode = "retrieval_failed"
	ErrMalformedOutput  ErrorCode = "malformed_output"
	ErrEmptyTranscript  ErrorCode = "empty_transcript"
	ErrScrapeFailed     ErrorCode = "scrape_failed"
	ErrContentTooLarge  ErrorCode = "content_too_large"
	ErrAuthFailed       ErrorCode = "auth_failed"
	ErrProcessingError  ErrorCode = "processing_error"
)

// Stage names used when classifying errors.
const (
	StageRetrieve    = "retrieve"
	StageMetadata    = "metadata"
	StageScrape      = "scrape"
	StageAnalyze     = "analyze"
	StageSummarize   = "summarize"
	StagePassthrough = "passthrough"
	StageIngest      = "ingest"
)

// QueryError is a structured error for a failed stage of a question.
type QueryError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Cause    error
}

func (e *QueryError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError builds a QueryError with an explicit code.
func NewQueryError(code ErrorCode, stage, message string, cause error) *QueryError {
	return &QueryError{Code: code, Stage: stage, Message: message, Cause: cause}
}

// Coder is implemented by errors that know their own classification,
// such as model provider errors.
type Coder interface {
	QueryCode() ErrorCode
}

// stageDefaults is the code used for unrecognised errors in a stage.
var stageDefaults = map[string]ErrorCode{
	StageRetrieve: ErrRetrievalFailed,
	StageMetadata: ErrRetrievalFailed,
	StageScrape:   ErrScrapeFailed,
}

// ClassifyError inspects an error and returns a *QueryError with the
// appropriate code. An error that already is a *QueryError is returned as is.
func ClassifyError(err error, stage string) *QueryError {
	if err == nil {
		return nil
	}

	var existing *QueryError
	if errors.As(err, &existing) {
		return existing
	}

	qe := &QueryError{Stage: stage, Cause: err, Message: err.Error()}

	var coded Coder
	if errors.As(err, &coded) {
		if code := coded.QueryCode(); code != "" {
			qe.Code = code
			return qe
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		qe.Code = ErrTimeout
		qe.Message = "operation timed out"
		return qe
	case errors.Is(err, context.Canceled):
		qe.Code = ErrContextCancelled
		qe.Message = "operation cancelled"
		return qe
	case errors.Is(err, ErrUnauthorized):
		qe.Code = ErrAuthFailed
		return qe
	}

	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, "rate limit", "429", "too many requests", "quota exceeded"):
		qe.Code = ErrRateLimit
	case containsAny(lower, "401", "invalid api key", "incorrect api key", "unauthorized"):
		qe.Code = ErrAuthFailed
	case containsAny(lower, "context length", "maximum context", "too long", "too large", "token limit"):
		qe.Code = ErrContentTooLarge
	case containsAny(lower, "connection refused", "unavailable", "503", "502", "no such host"):
		qe.Code = ErrModelUnavailable
	case containsAny(lower, "invalid character", "unexpected end of json", "cannot unmarshal"):
		qe.Code = ErrMalformedOutput
	case containsAny(lower, "timeout", "timed out", "deadline"):
		qe.Code = ErrTimeout
	default:
		if code, ok := stageDefaults[stage]; ok {
			qe.Code = code
		} else {
			qe.Code = ErrProcessingError
		}
	}
	return qe
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CodeOf returns the classified code of err, or "" when err is not a
// *QueryError.
func CodeOf(err error) ErrorCode {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	return CodeOf(err) == ErrTimeout
}

// IsErrorRetryable returns true if the error is likely transient and worth retrying.
func IsErrorRetryable(err error) bool {
	return IsRetryable(CodeOf(err))
}

package errors

import "net/http"

// CodeInfo describes how an ErrorCode is surfaced to users and API clients.
type CodeInfo struct {
	Retryable   bool
	HTTPStatus  int
	Description string
	Action      string
}

// statusClientClosed is nginx's "client closed request".
const statusClientClosed = 499

const defaultAction = "Re-run with --debug and check the logs"

var codeInfo = map[ErrorCode]CodeInfo{
	ErrTimeout:          {true, http.StatusGatewayTimeout, "Operation exceeded time limit", "Raise the limit with --timeout or llm.timeout in config"},
	ErrRateLimit:        {true, http.StatusTooManyRequests, "Model API rate limit exceeded", "Wait and retry, or lower llm.requests_per_second"},
	ErrModelUnavailable: {true, http.StatusBadGateway, "Model endpoint unreachable or unavailable", "Check llm.base_url: vidq config show"},
	ErrContextCancelled: {false, statusClientClosed, "Operation cancelled by user or system", "Check if cancellation was intentional"},
	ErrRetrievalFailed:  {true, http.StatusInternalServerError, "Transcript store query failed", "Check store settings and connectivity: vidq config show"},
	ErrMalformedOutput:  {false, http.StatusInternalServerError, "Model returned output that is not the expected JSON", "No action needed; the raw text is used as the answer"},
	ErrEmptyTranscript:  {false, http.StatusInternalServerError, "Transcript exists but contains no text", "Re-ingest the captions: vidq ingest <file> --video <id>"},
	ErrScrapeFailed:     {true, http.StatusInternalServerError, "Could not queue the transcript fetch", "Check redis settings: vidq config show"},
	ErrContentTooLarge:  {false, http.StatusRequestEntityTooLarge, "Selected transcript exceeds the model context", "Ask about a narrower time range"},
	ErrAuthFailed:       {false, http.StatusBadGateway, "Model API key missing or rejected", "Store a key: vidq auth set-key"},
	ErrProcessingError:  {false, http.StatusInternalServerError, "Unclassified processing error", defaultAction},
}

// Lookup returns the metadata for code. Unknown codes are reported as
// non-retryable internal errors.
func Lookup(code ErrorCode) CodeInfo {
	if info, ok := codeInfo[code]; ok {
		return info
	}
	return CodeInfo{HTTPStatus: http.StatusInternalServerError, Description: "Unknown error", Action: defaultAction}
}

// IsRetryable reports whether code is a transient failure.
func IsRetryable(code ErrorCode) bool { return Lookup(code).Retryable }

// GetSuggestedAction returns what the user can do about code.
func GetSuggestedAction(code ErrorCode) string { return Lookup(code).Action }

// HTTPStatus returns the API status for code.
func HTTPStatus(code ErrorCode) int { return Lookup(code).HTTPStatus }

package edgegate

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrUnauthorized is matched by 401 answers (missing or rejected token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is matched by 403 answers (role not allowed).
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited is matched by 429 answers.
	ErrRateLimited = errors.New("rate limited")

	// ErrJobTimeout is returned when WaitForJob gives up.
	ErrJobTimeout = errors.New("job wait timeout")

	// ErrServerUnreachable is returned when the gateway cannot be contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// APIError is a gateway error answer. Every gateway failure, whether raised
// by the gateway itself or by a backend, has this shape.
type APIError struct {
	// StatusCode is both the HTTP status and the body's statusCode.
	StatusCode int `json:"statusCode"`
	// Message is the client-facing description.
	Message string `json:"message"`
	// Details is the backend's "errors" value, usually a list. Null when absent.
	Details json.RawMessage `json:"errors"`
	// Timestamp is when the gateway rendered the error (ISO-8601).
	Timestamp string `json:"timestamp"`
}

// Error returns the error message.
func (e *APIError) Error() string {
	return fmt.Sprintf("edgegate: %d %s", e.StatusCode, e.Message)
}

// Is reports whether this error matches one of the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// DetailStrings returns Details as a list of strings when it is one.
func (e *APIError) DetailStrings() []string {
	var out []string
	if err := json.Unmarshal(e.Details, &out); err != nil {
		return nil
	}
	return out
}

// decodeAPIError builds an APIError from a non-2xx answer. Bodies that are
// not in the gateway's shape (a load balancer page, say) keep the status
// and use the body as message.
func decodeAPIError(status int, body []byte) *APIError {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.StatusCode == 0 {
		msg := string(body)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &APIError{StatusCode: status, Message: msg}
	}
	return &apiErr
}

// JobTimeoutError is returned when a job is still running after the wait
// deadline.
type JobTimeoutError struct {
	JobID string
	// Last is the last status seen, nil if none was.
	Last *JobStatus
}

// Error returns a human-readable description of the timeout.
func (e *JobTimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("job %s still %s after wait timeout", e.JobID, e.Last.Status)
	}
	return fmt.Sprintf("job %s: wait timeout", e.JobID)
}

// Is supports errors.Is(err, ErrJobTimeout).
func (e *JobTimeoutError) Is(target error) bool {
	return target == ErrJobTimeout
}

// ServerUnreachableError is returned when the gateway cannot be contacted.
type ServerUnreachableError struct {
	// Cause is the transport error.
	Cause error
}

// Error returns a human-readable description of the server unreachable error.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}

// Package apierr defines the uniform error contract returned to HTTP clients.
//
// Every failure that reaches a client, whatever its origin (gate rejection,
// backend error reply, broker timeout, router miss, panic), is rendered as:
//
//	{"statusCode": <int>, "message": <string>, "errors": <details|null>, "timestamp": <ISO-8601>}
//
// with the HTTP status line set to statusCode.
package apierr

import (
	"encoding/json"
	"net/http"
	"time"
)

// Default messages used when a backend or transport error carries none.
const (
	MessageInternal         = "Internal server error"
	MessageUnhandled        = "Unhandled internal server error"
	MessageGatewayTimeout   = "Upstream service did not respond in time"
	MessageBadGateway       = "Upstream service unavailable"
	MessageClientClosed     = "Client closed request"
	MessageTooManyRequests  = "Rate limit exceeded"
	MessageMethodNotAllowed = "Method not allowed"
	MessageValidationFailed = "Validation failed"
)

// StatusClientClosedRequest is the non-standard status used when the inbound
// client disconnected before the backend replied.
const StatusClientClosedRequest = 499

// Error is the normalized error shape. It is constructed once at the
// boundary (Normalize or one of the constructors) and rendered as-is.
type Error struct {
	// StatusCode doubles as the HTTP status of the response.
	StatusCode int
	// Message is the client-facing description.
	Message string
	// Details is the raw JSON of the backend details (usually an ordered list
	// of strings or validation entries). Nil renders as null.
	Details json.RawMessage
}

// Body is the wire form of an Error.
type Body struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Errors     json.RawMessage `json:"errors"`
	Timestamp  string          `json:"timestamp"`
}

// TimestampLayout renders UTC timestamps with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Status returns the HTTP status to write. Codes that net/http cannot send
// are coerced to 500.
func (e *Error) Status() int {
	if e.StatusCode < 100 || e.StatusCode > 599 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

// Body renders the error for the response, stamped with now.
func (e *Error) Body(now time.Time) Body {
	var details json.RawMessage
	if len(e.Details) > 0 {
		details = e.Details
	}
	return Body{
		StatusCode: e.Status(),
		Message:    e.Message,
		Errors:     details,
		Timestamp:  now.UTC().Format(TimestampLayout),
	}
}

// New creates an Error with the given status and message.
func New(status int, message string) *Error {
	return &Error{StatusCode: status, Message: message}
}

// BadRequest is a validation error whose details are the ordered messages.
func BadRequest(message string, details ...string) *Error {
	e := New(http.StatusBadRequest, message)
	if len(details) > 0 {
		e.Details, _ = json.Marshal(details)
	}
	return e
}

// Unauthorized is an authentication failure.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// Forbidden is an authorization failure.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

// NotFound reports a missing route or resource.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// MethodNotAllowed reports a path served under a different method.
func MethodNotAllowed() *Error {
	return New(http.StatusMethodNotAllowed, MessageMethodNotAllowed)
}

// TooManyRequests reports a rate limit rejection.
func TooManyRequests() *Error {
	return New(http.StatusTooManyRequests, MessageTooManyRequests)
}

// BadGateway reports an unreachable broker or backend.
func BadGateway() *Error {
	return New(http.StatusBadGateway, MessageBadGateway)
}

// ServiceUnavailable reports a backend that answered but is not healthy.
func ServiceUnavailable(message string) *Error {
	return New(http.StatusServiceUnavailable, message)
}

// GatewayTimeout reports a backend that did not reply within its deadline.
func GatewayTimeout() *Error {
	return New(http.StatusGatewayTimeout, MessageGatewayTimeout)
}

// ClientClosed reports a call abandoned because the inbound request went away.
func ClientClosed() *Error {
	return New(StatusClientClosedRequest, MessageClientClosed)
}

// Internal is the generic unclassified failure.
func Internal() *Error {
	return New(http.StatusInternalServerError, MessageInternal)
}

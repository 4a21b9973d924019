package apierr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Shaped is implemented by errors that carry a backend error payload as it
// arrived on the wire (see command.RemoteError).
type Shaped interface {
	error
	Payload() json.RawMessage
}

// Normalize is the per-call layer: it turns any error returned by a route's
// backend-calling logic into an *Error.
//
//   - *Error values pass through untouched.
//   - Shaped errors are decoded with FromPayload.
//   - Deadline expiry becomes 504, cancellation 499.
//   - Anything else gets the defaults (500, generic message, no details).
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var shaped Shaped
	if errors.As(err, &shaped) {
		return FromPayload(shaped.Payload())
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return GatewayTimeout()
	case errors.Is(err, context.Canceled):
		return ClientClosed()
	default:
		return Internal()
	}
}

// Filter is the global last-resort layer. It accepts only errors that are
// already normalized; everything else becomes a fixed 500 so that no
// internal detail reaches the client.
func Filter(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return New(http.StatusInternalServerError, MessageUnhandled)
}

// FromPayload decodes a backend error payload.
//
// An object with a truthy "error" property is unwrapped one level first
// (transport layers sometimes wrap the backend error). A string payload is a
// bare message with status 500. Otherwise statusCode, message and details
// are extracted, each falling back to its default when missing or falsy.
func FromPayload(raw json.RawMessage) *Error {
	raw = unwrapNested(raw)

	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		if msg == "" {
			msg = MessageInternal
		}
		return New(http.StatusInternalServerError, msg)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Internal()
	}

	out := Internal()

	var status float64
	if err := json.Unmarshal(fields["statusCode"], &status); err == nil && status != 0 && status == float64(int(status)) {
		out.StatusCode = int(status)
	}

	if m := decodeMessage(fields["message"]); m != "" {
		out.Message = m
	}

	if details := fields["details"]; Truthy(details) {
		out.Details = compact(details)
	}

	return out
}

// Truthy reports whether a raw JSON value is considered set: anything but
// absent, null, false, 0 and "".
func Truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch string(v) {
	case "null", "false", `""`:
		return false
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n != 0
	}
	return true
}

func unwrapNested(raw json.RawMessage) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw
	}
	if inner, ok := fields["error"]; ok && Truthy(inner) {
		return inner
	}
	return raw
}

// decodeMessage accepts a string, or a list of strings which is joined.
func decodeMessage(raw json.RawMessage) string {
	if !Truthy(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

package http

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
)

// maxRequestBodySize is the maximum JSON body accepted by forwarding routes (1 MB).
const maxRequestBodySize = 1 << 20

// now is the clock used for error timestamps.
var now = time.Now

// HandlerFunc is a route's logic. It returns the success payload, written
// as JSON, or an error that is normalized before it reaches the client.
type HandlerFunc func(r *http.Request) (any, error)

// Intercept adapts a HandlerFunc into an http.Handler. Every error it
// returns goes through apierr.Normalize; successful POSTs answer 201 and
// everything else 200.
func Intercept(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := h(r)
		if err != nil {
			apiErr := apierr.Normalize(err)
			logHandlerError(r, apiErr, err)
			WriteError(w, r, apiErr)
			return
		}

		status := http.StatusOK
		if r.Method == http.MethodPost {
			status = http.StatusCreated
		}
		writeJSON(w, status, result)
	})
}

// ErrorFilter is the outermost error layer. It recovers panics from any
// handler or middleware below it. A panic value that is already an
// *apierr.Error is rendered as such; anything else becomes a fixed 500.
func ErrorFilter(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				// The filter runs outside RequestIDMiddleware; the id is only
				// visible on the response header.
				requestID := RequestIDFromContext(r.Context())
				if requestID == "" {
					requestID = w.Header().Get("X-Request-ID")
				}
				logger.Error("unhandled error in request handler",
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestID,
					"error", err,
				)
				if tw.wroteHeader {
					return
				}
				WriteError(w, r, apierr.Filter(err))
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

// Fail renders err through the global filter. Middleware that rejects a
// request before any route logic runs uses it.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, r, apierr.Filter(err))
}

// WriteError writes the uniform error body with the error's status.
func WriteError(w http.ResponseWriter, _ *http.Request, err *apierr.Error) {
	writeJSON(w, err.Status(), err.Body(now()))
}

// writeJSON writes v as JSON. json.RawMessage values are written verbatim.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var data []byte
	switch body := v.(type) {
	case json.RawMessage:
		data = body
		if len(data) == 0 {
			data = []byte("null")
		}
	default:
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			status = http.StatusInternalServerError
			data, _ = json.Marshal(apierr.Internal().Body(now()))
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// logHandlerError logs 5xx answers at error level and the rest at debug.
// Only the cause's metadata is logged, never request payloads.
func logHandlerError(r *http.Request, apiErr *apierr.Error, cause error) {
	logger := LoggerFromContext(r.Context())
	attrs := []any{"method", r.Method, "path", r.URL.Path, "status", apiErr.Status()}
	var shaped apierr.Shaped
	if !errors.As(cause, &shaped) {
		attrs = append(attrs, "error", cause)
	}
	if apiErr.Status() >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
		return
	}
	logger.Debug("request rejected", attrs...)
}

// trackingWriter remembers whether the header was sent.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

// Flush delegates to the underlying ResponseWriter if it supports http.Flusher.
func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack delegates to the underlying writer for websocket upgrades.
func (t *trackingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	t.wroteHeader = true
	return hijack(t.ResponseWriter)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

func hijack(w http.ResponseWriter) (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

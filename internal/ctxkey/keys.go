// Package ctxkey defines context key types shared by packages that must
// not import each other.
package ctxkey

// LoggerKey is the context key of the request-scoped logger. The stored
// *slog.Logger carries request_id, and user_id once the caller is known.
type LoggerKey struct{}

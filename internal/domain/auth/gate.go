package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/Sentinel-Gate/edgegate/internal/domain/command"
)

// Error types for authentication failures.
var (
	// ErrMissingToken means no usable bearer credential was sent. It is
	// decided locally, before any backend call.
	ErrMissingToken = errors.New("authentication token not provided")
	// ErrInvalidToken covers every verification failure, including transport
	// errors and timeouts, so callers cannot tell them apart.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// VerifyTokenPattern is the auth backend operation that resolves a token.
var VerifyTokenPattern = command.Cmd("verify_token")

// BearerToken extracts the credential from an Authorization header value.
// The scheme must be exactly "Bearer" followed by a single space and a
// non-empty token.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" || strings.Contains(token, " ") {
		return "", false
	}
	return token, true
}

// Gate authenticates requests by delegating token verification to the auth
// backend.
//
// SECURITY: tokens are NEVER logged.
type Gate struct {
	sender command.Sender
	logger *slog.Logger
}

// NewGate creates a Gate that verifies tokens through sender.
func NewGate(sender command.Sender, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{sender: sender, logger: logger}
}

// Authenticate resolves the Authorization header into an Identity.
// It blocks until the auth backend answers or the call fails.
func (g *Gate) Authenticate(ctx context.Context, authorization string) (*Identity, error) {
	token, ok := BearerToken(authorization)
	if !ok {
		return nil, ErrMissingToken
	}

	result, err := g.sender.Send(ctx, VerifyTokenPattern, map[string]string{"token": token})
	if err != nil {
		g.logger.Debug("token verification failed", "error", err)
		return nil, ErrInvalidToken
	}
	if !command.Truthy(result) {
		return nil, ErrInvalidToken
	}

	var identity Identity
	if err := json.Unmarshal(result, &identity); err != nil {
		g.logger.Debug("token verification returned an unexpected payload", "error", err)
		return nil, ErrInvalidToken
	}
	return &identity, nil
}

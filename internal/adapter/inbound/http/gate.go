package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/domain/auth"
)

// identityContextKey is the type for the identity context key.
type identityContextKey struct{}

// IdentityKey is the context key for the resolved caller.
var IdentityKey = identityContextKey{}

// IdentityFromContext returns the identity attached by AuthGateMiddleware.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(*auth.Identity)
	return id, ok && id != nil
}

// WithIdentity returns ctx carrying identity.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// Authenticator resolves an Authorization header into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (*auth.Identity, error)
}

// AuthGateMiddleware rejects requests without a valid bearer token with 401.
// Nothing downstream runs until verification has completed.
func AuthGateMiddleware(gate Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				msg := auth.ErrInvalidToken.Error()
				if errors.Is(err, auth.ErrMissingToken) {
					msg = auth.ErrMissingToken.Error()
				}
				Fail(w, r, apierr.Unauthorized(msg))
				return
			}

			logger := LoggerFromContext(r.Context()).With("user_id", identity.ID)
			ctx := WithIdentity(r.Context(), identity)
			ctx = context.WithValue(ctx, LoggerKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoleGateMiddleware allows the request iff the identity's role is in
// required. An empty set only requires that the gate be reached.
func RoleGateMiddleware(required []auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(required) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := IdentityFromContext(r.Context())
			if err := auth.Authorize(identity, required); err != nil {
				LoggerFromContext(r.Context()).Debug("role check failed", "path", r.URL.Path, "error", err)
				Fail(w, r, apierr.Forbidden(err.Error()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenQueryMiddleware copies an access_token query parameter into the
// Authorization header when the header is absent. Browsers cannot set
// headers on websocket handshakes.
func TokenQueryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("access_token"); token != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

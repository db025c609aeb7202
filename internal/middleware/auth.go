package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/meomeo/backend/internal/auth"
	"github.com/meomeo/backend/internal/logging"
	"github.com/meomeo/backend/internal/models"
)

type identityKey struct{}

// TokenVerifier validates a bearer token and returns the identity it carries.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// IdentityFromContext returns the authenticated identity stored by RequireAuth
// or OptionalAuth, if any.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// WithIdentity stores an identity on the context. Exported for handler tests.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// verified identity on the request context.
func RequireAuth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := bearerIdentity(r, tokens)
			if err != nil {
				message := "Authentication required"
				if errors.Is(err, auth.ErrTokenExpired) {
					message = "Access token expired"
				}
				logging.FromContext(r.Context()).Warn("request rejected", "error", err)
				rejectUnauthorized(w, message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalAuth stores the identity when a valid bearer token is present and
// otherwise lets the request through anonymously. Invalid tokens degrade to
// anonymous rather than failing, so public views keep working with a stale
// token cached client-side.
func OptionalAuth(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity, err := bearerIdentity(r, tokens); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

var errMissingBearer = errors.New("missing bearer token")

func bearerIdentity(r *http.Request, tokens TokenVerifier) (auth.Identity, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return auth.Identity{}, errMissingBearer
	}
	return tokens.Verify(strings.TrimSpace(raw))
}

func rejectUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:      "Unauthorized",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	})
}

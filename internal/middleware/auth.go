package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/token"
)

type identityKey struct{}

// WithIdentity returns ctx carrying id.
func WithIdentity(ctx context.Context, id token.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by RequireIdentity.
func IdentityFromContext(ctx context.Context) (token.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(token.Identity)
	return id, ok
}

// AuthConfig configures RequireIdentity.
type AuthConfig struct {
	Secret []byte
	TTL    time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// RequireIdentity rejects requests without a valid "Authorization: Bearer"
// token and attaches the verified identity to the request context. With an
// empty secret every request is rejected, since anyone could sign a token.
func RequireIdentity(cfg AuthConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(cfg.Secret) == 0 {
				LoggerFromContext(r.Context(), logger).Error("api request rejected: no token secret configured",
					zap.String("path", r.URL.Path))
				http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="portalads"`)
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			id, err := token.Verify(strings.TrimSpace(raw), cfg.Secret, cfg.TTL, now())
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, token.ErrExpired) {
					msg = "token expired"
				}
				LoggerFromContext(r.Context(), logger).Debug("rejected api request",
					zap.Error(err), zap.String("path", r.URL.Path))
				http.Error(w, msg, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireEditor rejects identities that may not change banners. Safe methods
// pass for every authenticated identity.
func RequireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		id, ok := IdentityFromContext(r.Context())
		if !ok || !id.CanEdit() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

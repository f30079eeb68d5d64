package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalads/internal/observability"
	"github.com/patrickwarner/portalads/internal/ratelimit"
	"github.com/patrickwarner/portalads/internal/token"
)

var (
	secret = []byte("test-secret")
	issued = time.Unix(1_750_000_000, 0)
)

func authHandler() http.Handler {
	cfg := AuthConfig{Secret: secret, TTL: time.Hour, Now: func() time.Time { return issued.Add(time.Minute) }}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(id.Subject))
	})
	return RequireIdentity(cfg, zap.NewNop())(RequireEditor(inner))
}

func bearer(t *testing.T, id token.Identity, at time.Time) string {
	t.Helper()
	tok, err := token.Generate(id, secret, at)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRequireIdentity(t *testing.T) {
	h := authHandler()

	tests := []struct {
		name   string
		method string
		auth   string
		want   int
	}{
		{"missing", http.MethodGet, "", http.StatusUnauthorized},
		{"garbage", http.MethodGet, "Bearer nope", http.StatusUnauthorized},
		{"expired", http.MethodGet, bearer(t, token.Identity{Subject: "a", Role: token.RoleEditor}, issued.Add(-2*time.Hour)), http.StatusUnauthorized},
		{"editor write", http.MethodPost, bearer(t, token.Identity{Subject: "a", Role: token.RoleEditor}, issued), http.StatusOK},
		{"viewer read", http.MethodGet, bearer(t, token.Identity{Subject: "v", Role: "viewer"}, issued), http.StatusOK},
		{"viewer write", http.MethodPost, bearer(t, token.Identity{Subject: "v", Role: "viewer"}, issued), http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/banners", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestRequireIdentityWithoutSecret(t *testing.T) {
	cfg := AuthConfig{TTL: time.Hour, Now: func() time.Time { return issued.Add(time.Minute) }}
	h := RequireIdentity(cfg, zap.NewNop())(RequireEditor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	// A token signed with the empty key must not get through.
	tok, err := token.Generate(token.Identity{Subject: "mallory", Role: token.RoleAdmin}, nil, issued)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/deactivateConflicts", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRecordMetricsUsesRouteTemplate(t *testing.T) {
	metrics := observability.NewMockMetricsRegistry()
	r := mux.NewRouter()
	r.Use(RecordMetrics(metrics))
	r.HandleFunc("/api/banners/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/banners/7", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, 1, metrics.Count("request:/api/banners/{id}:404"))
}

func TestRateLimitByIP(t *testing.T) {
	limiter := ratelimit.NewKeyedLimiter(ratelimit.Config{Capacity: 1, RefillRate: 1, Enabled: true}, observability.NewNoOpRegistry(), func() time.Time { return issued })
	h := RateLimitByIP(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/event", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:1001"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000"))
}

func TestLoggerFromRequestWithoutTrace(t *testing.T) {
	logger := zap.NewNop()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Same(t, logger, LoggerFromRequest(req, logger))
}

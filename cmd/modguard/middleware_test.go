package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/modguard/config"
	"github.com/BaSui01/modguard/internal/metrics"
	"github.com/BaSui01/modguard/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	w := serve(SecurityHeaders()(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
}

func TestChain_OrderAndNilSkip(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mark("a"), nil, mark("b"))
	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})

	t.Run("preserved", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "client-id-1")
		w := serve(h, r)
		assert.Equal(t, "client-id-1", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "client-id-1", seen)
	})

	t.Run("oversized replaced", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
		w := serve(h, r)
		assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	})
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recovery(zap.NewNop()))

	w := serve(h, httptest.NewRequest(http.MethodPost, "/submit", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrInternalError))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/submit", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := serve(h, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	})

	t.Run("preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/submit", nil)
		r.Header.Set("Origin", "https://app.example.com")
		r.Header.Set("Access-Control-Request-Method", "POST")
		w := serve(h, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("unknown origin preflight rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/submit", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		r.Header.Set("Access-Control-Request-Method", "POST")
		w := serve(h, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin simple request has no cors headers", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := serve(h, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("no origin", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Nil(t, RateLimiter(ctx, 0, 10, zap.NewNop()))

	h := RateLimiter(ctx, 0.001, 1, zap.NewNop())(okHandler())
	req := func(addr string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		return r
	}

	assert.Equal(t, http.StatusOK, serve(h, req("10.0.0.1:1000")).Code)

	w := serve(h, req("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), string(types.ErrRateLimited))

	// 不同 IP 独立计数
	assert.Equal(t, http.StatusOK, serve(h, req("10.0.0.2:1000")).Code)
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{"secret-key"}, []string{"/health"}, zap.NewNop())(okHandler())

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"skip path", http.MethodGet, "/health", "", http.StatusOK},
		{"missing key", http.MethodPost, "/submit", "", http.StatusUnauthorized},
		{"wrong key", http.MethodPost, "/submit", "nope", http.StatusUnauthorized},
		{"valid key", http.MethodPost, "/submit", "secret-key", http.StatusOK},
		{"preflight", http.MethodOptions, "/submit", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				r.Header.Set("X-API-Key", tt.key)
			}
			assert.Equal(t, tt.want, serve(h, r).Code)
		})
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "jwt-secret", JWTIssuer: "modguard", JWTAudience: "moderation"}

	var user, tenant string
	h := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ = types.UserID(r.Context())
		tenant, _ = types.TenantID(r.Context())
	}))

	valid := jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "tenant-1",
		"iss":       "modguard",
		"aud":       "moderation",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}
	call := func(header string) int {
		r := httptest.NewRequest(http.MethodPost, "/submit", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		return serve(h, r).Code
	}

	t.Run("valid token", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, call("Bearer "+signToken(t, "jwt-secret", valid)))
		assert.Equal(t, "user-1", user)
		assert.Equal(t, "tenant-1", tenant)
	})

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call(""))
		assert.Equal(t, http.StatusUnauthorized, call("Basic abc"))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call("Bearer "+signToken(t, "other", valid)))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := jwt.MapClaims{}
		for k, v := range valid {
			claims[k] = v
		}
		claims["iss"] = "someone-else"
		assert.Equal(t, http.StatusUnauthorized, call("Bearer "+signToken(t, "jwt-secret", claims)))
	})

	t.Run("expired", func(t *testing.T) {
		claims := jwt.MapClaims{"sub": "u", "iss": "modguard", "aud": "moderation", "exp": time.Now().Add(-time.Minute).Unix()}
		assert.Equal(t, http.StatusUnauthorized, call("Bearer "+signToken(t, "jwt-secret", claims)))
	})

	t.Run("missing exp", func(t *testing.T) {
		claims := jwt.MapClaims{"sub": "u", "iss": "modguard", "aud": "moderation"}
		assert.Equal(t, http.StatusUnauthorized, call("Bearer "+signToken(t, "jwt-secret", claims)))
	})

	t.Run("skip path", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuth_Combinations(t *testing.T) {
	assert.Nil(t, Auth(config.AuthConfig{}, nil, zap.NewNop()))

	cfg := config.AuthConfig{APIKeys: []string{"k1"}, JWTSecret: "s"}
	h := Auth(cfg, nil, zap.NewNop())(okHandler())

	byKey := httptest.NewRequest(http.MethodPost, "/submit", nil)
	byKey.Header.Set("X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, serve(h, byKey).Code)

	badKey := httptest.NewRequest(http.MethodPost, "/submit", nil)
	badKey.Header.Set("X-API-Key", "k2")
	assert.Equal(t, http.StatusUnauthorized, serve(h, badKey).Code)

	byToken := httptest.NewRequest(http.MethodPost, "/submit", nil)
	byToken.Header.Set("Authorization", "Bearer "+signToken(t, "s", jwt.MapClaims{
		"sub": "u", "exp": time.Now().Add(time.Minute).Unix(),
	}))
	assert.Equal(t, http.StatusOK, serve(h, byToken).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodPost, "/submit", nil)).Code)
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	h := MetricsMiddleware(collector, []string{"/submit"})(okHandler())

	serve(h, httptest.NewRequest(http.MethodPost, "/submit", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/does-not-exist/123", nil))

	n, err := testutil.GatherAndCount(reg, "test_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	families, err := reg.Gather()
	require.NoError(t, err)
	var paths []string
	for _, mf := range families {
		if mf.GetName() != "test_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "path" {
					paths = append(paths, l.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{"/submit", "other"}, paths)
}

func TestOTelTracing_PassesThrough(t *testing.T) {
	w := serve(OTelTracing()(okHandler()), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

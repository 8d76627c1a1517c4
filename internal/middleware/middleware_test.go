package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EmpoweredVote/rep-lookup/internal/middleware"
	"github.com/EmpoweredVote/rep-lookup/internal/ratelimit"
	"github.com/EmpoweredVote/rep-lookup/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// serve wraps a 200-OK handler in mw and records one request.
func serve(t *testing.T, mw func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	mw(inner).ServeHTTP(rec, req)
	return rec
}

func TestCORS_AllowedOrigin(t *testing.T) {
	mw := middleware.CORS([]string{"https://essentials.empowered.vote"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://essentials.empowered.vote")

	rec := serve(t, mw, req)

	assert.Equal(t, "https://essentials.empowered.vote", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_UnknownOrigin(t *testing.T) {
	mw := middleware.CORS([]string{"https://essentials.empowered.vote"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")

	rec := serve(t, mw, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}

func TestCORS_Preflight(t *testing.T) {
	mw := middleware.CORS([]string{"http://localhost:5173/"})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/representatives", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	rec := serve(t, mw, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	rec := serve(t, middleware.SecurityHeaders, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = utils.GetRequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestClientKey_StripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:52311"
	assert.Equal(t, "203.0.113.9", middleware.ClientKey(req))

	req.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", middleware.ClientKey(req))
}

func TestRateLimit_RejectsOverBudget(t *testing.T) {
	limiter := ratelimit.New(time.Minute, 2)
	var rejected []string
	mw := middleware.RateLimit(limiter, zap.NewNop(), func(key string) { rejected = append(rejected, key) })

	req := func(addr string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/representatives?zip=11354", nil)
		r.RemoteAddr = addr
		return r
	}

	rec := serve(t, mw, req("198.51.100.1:1000"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	// Same host, different source port.
	assert.Equal(t, http.StatusOK, serve(t, mw, req("198.51.100.1:1001")).Code)

	rec = serve(t, mw, req("198.51.100.1:1002"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests", body["error"])
	assert.EqualValues(t, 60, body["retryAfter"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, []string{"198.51.100.1"}, rejected)

	assert.Equal(t, http.StatusOK, serve(t, mw, req("198.51.100.2:1000")).Code)
}

func TestRateLimit_ForwardedHeadersIgnoredWithoutTrustedProxy(t *testing.T) {
	limiter := ratelimit.New(15*time.Minute, 100)
	rl := middleware.RateLimit(limiter, zap.NewNop(), nil)
	mw := func(next http.Handler) http.Handler { return middleware.ClientIP(false)(rl(next)) }

	rejected := 0
	for i := 0; i < 500; i++ {
		r := httptest.NewRequest(http.MethodGet, "/stats", nil)
		r.RemoteAddr = "203.0.113.7:5555"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.%d.%d", i/256, i%256))
		r.Header.Set("X-Real-IP", fmt.Sprintf("10.1.%d.%d", i/256, i%256))
		r.Header.Set("True-Client-IP", fmt.Sprintf("10.2.%d.%d", i/256, i%256))
		if serve(t, mw, r).Code == http.StatusTooManyRequests {
			rejected++
		}
	}
	assert.Equal(t, 400, rejected)
	assert.Equal(t, 1, limiter.Len())
}

func TestClientIP_TrustedProxy(t *testing.T) {
	var seen string
	h := middleware.ClientIP(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.ClientKey(r)
	}))
	r := httptest.NewRequest(http.MethodGet, "/stats", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "198.51.100.4", seen)

	h = middleware.ClientIP(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.ClientKey(r)
	}))
	r = httptest.NewRequest(http.MethodGet, "/stats", nil)
	r.RemoteAddr = "10.0.0.1:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "10.0.0.1", seen)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis: connection refused")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mw := middleware.RateLimit(failingLimiter{}, zap.NewNop(), nil)

	rec := serve(t, mw, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	h := middleware.RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

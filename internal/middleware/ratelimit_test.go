package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func ownerRequest(owner, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/rewrite", nil)
	req.RemoteAddr = remoteAddr
	if owner != "" {
		req = req.WithContext(WithOwnerID(req.Context(), owner))
	}
	return req
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	handler := RateLimiter(t.Context(), RateLimitConfig{RequestsPerSecond: 100, Burst: 10})(okHandler())

	for range 5 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, ownerRequest("42", "10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_RejectsOverBurst(t *testing.T) {
	handler := RateLimiter(t.Context(), RateLimitConfig{RequestsPerSecond: 1, Burst: 2})(okHandler())

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, ownerRequest("42", "10.0.0.1:1"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ownerRequest("42", "10.0.0.9:1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "owner is limited regardless of address")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.InDelta(t, float64(429), body["code"], 0.001)
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimiter_PerOwnerIsolation(t *testing.T) {
	handler := RateLimiter(t.Context(), RateLimitConfig{RequestsPerSecond: 1, Burst: 1})(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ownerRequest("a", "10.0.0.1:1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, ownerRequest("a", "10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, ownerRequest("b", "10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, rec.Code, "another owner on the same address is unaffected")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, ownerRequest("", "10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, rec.Code, "anonymous requests are keyed by address")
}

func TestRateLimiter_StopsSweeperWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := RateLimiter(ctx, RateLimitConfig{RequestsPerSecond: 1, Burst: 1})(okHandler())
	cancel()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, ownerRequest("42", "10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLimiterKey(t *testing.T) {
	tests := []struct {
		name       string
		owner      string
		remoteAddr string
		want       string
	}{
		{"owner wins", "42", "10.0.0.1:1234", "owner:42"},
		{"ipv4 with port", "", "192.168.1.1:12345", "ip:192.168.1.1"},
		{"ipv6 with port", "", "[::1]:12345", "ip:::1"},
		{"no port", "", "192.168.1.1", "ip:192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ownerRequest(tt.owner, tt.remoteAddr)
			req.Header.Set("X-Forwarded-For", "203.0.113.50")
			assert.Equal(t, tt.want, limiterKey(req))
		})
	}
}

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(perWindow, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: perWindow,
		WindowDuration:    time.Minute,
		BurstSize:         burst,
	})
	limiter.now = clock.Now
	return limiter, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter, clock := newTestLimiter(2, 1)

	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("a"), "burst allows one more")
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"), "keys have separate buckets")

	clock.Advance(30 * time.Second)
	assert.True(t, limiter.Allow("a"), "half a window refills one token")
	assert.False(t, limiter.Allow("a"))

	clock.Advance(time.Hour)
	assert.Equal(t, 3, limiter.Remaining("a"), "refill is capped at rate plus burst")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter, clock := newTestLimiter(1, 0)
	limiter.Allow("a")

	clock.Advance(90 * time.Second)
	limiter.Allow("b")
	clock.Advance(60 * time.Second)
	limiter.Cleanup()

	assert.NotContains(t, limiter.buckets, "a")
	assert.Contains(t, limiter.buckets, "b")
}

func TestRateLimiter_StartCleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Millisecond})
	limiter.Allow("a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter.StartCleanup(ctx)

	assert.Eventually(t, func() bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		return len(limiter.buckets) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(1, 0)
	handler := NewRateLimitMiddleware(limiter).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	request := func(remote, forwarded string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/load", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := request("10.0.0.1:5000", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = request("10.0.0.1:6000", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "the port does not identify the client")
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")

	w = request("10.0.0.1:7000", "192.168.1.9, 10.0.0.1")
	assert.Equal(t, http.StatusAccepted, w.Code, "forwarded clients are limited separately")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{name: "remote with port", remote: "10.1.1.1:1234", want: "10.1.1.1"},
		{name: "remote without port", remote: "10.1.1.1", want: "10.1.1.1"},
		{name: "forwarded chain", remote: "10.1.1.1:1", headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.1.1.1"}, want: "203.0.113.5"},
		{name: "real ip", remote: "10.1.1.1:1", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, want: "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

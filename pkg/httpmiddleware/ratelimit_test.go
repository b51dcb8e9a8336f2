package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doFrom(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i := range 3 {
		w := doFrom(h, "10.0.0.1:1234")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}

	w := doFrom(h, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"message":"Too many requests"}`, w.Body.String())

	// Other clients have their own bucket.
	assert.Equal(t, http.StatusOK, doFrom(h, "10.0.0.2:1234").Code)
}

func TestRateLimit_Refills(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, RateLimitConfig{Max: 1, Window: 50 * time.Millisecond})(okHandler())

	require.Equal(t, http.StatusOK, doFrom(h, "10.0.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, doFrom(h, "10.0.0.1:1").Code)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, http.StatusOK, doFrom(h, "10.0.0.1:1").Code)
}

func TestRateLimit_Skip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ctx, RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Skip:   func(r *http.Request) bool { return r.Method == http.MethodPost },
	})(okHandler())

	for range 5 {
		assert.Equal(t, http.StatusOK, doFrom(h, "10.0.0.1:1").Code)
	}
}

func TestLimiterSet_Evict(t *testing.T) {
	s := newLimiterSet(RateLimitConfig{Max: 1, Window: time.Second})
	now := time.Now()
	s.get("a", now)
	s.get("b", now.Add(2*time.Second))

	s.evict(now.Add(2500 * time.Millisecond))
	assert.NotContains(t, s.clients, "a")
	assert.Contains(t, s.clients, "b")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "1.1.1.1, 2.2.2.2"}, "9.9.9.9:1", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "9.9.9.9:1", "3.3.3.3"},
		{"remote addr", nil, "9.9.9.9:1", "9.9.9.9"},
		{"remote without port", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func limiterWithClock(perMinute, perHour, perDay int, data int64) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perMinute, perHour, perDay, data)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_MinuteWindow(t *testing.T) {
	rl, clock := limiterWithClock(2, 0, 0, 0)

	require.NoError(t, rl.CheckRateLimit("a", 0))
	clock.advance(10 * time.Second)
	require.NoError(t, rl.CheckRateLimit("a", 0))

	err := rl.CheckRateLimit("a", 0)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, 50*time.Second, rle.RetryAfter)

	// other clients are independent
	require.NoError(t, rl.CheckRateLimit("b", 0))

	// the window slides: the first request ages out after a minute
	clock.advance(51 * time.Second)
	require.NoError(t, rl.CheckRateLimit("a", 0))
}

func TestRateLimiter_HourWindow(t *testing.T) {
	rl, clock := limiterWithClock(0, 3, 0, 0)
	for range 3 {
		require.NoError(t, rl.CheckRateLimit("a", 0))
		clock.advance(5 * time.Minute)
	}
	var rle *RateLimitError
	require.ErrorAs(t, rl.CheckRateLimit("a", 0), &rle)
	assert.Equal(t, "hour", rle.Type)
	assert.Equal(t, 45*time.Minute, rle.RetryAfter)

	clock.advance(46 * time.Minute)
	assert.NoError(t, rl.CheckRateLimit("a", 0))
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	rl, clock := limiterWithClock(0, 0, 2, 100)

	require.NoError(t, rl.CheckRateLimit("a", 60))
	var qe *QuotaExceededError
	require.ErrorAs(t, rl.CheckRateLimit("a", 50), &qe)
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(60), qe.Used)

	require.NoError(t, rl.CheckRateLimit("a", 40))
	require.ErrorAs(t, rl.CheckRateLimit("a", 0), &qe)
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), qe.Resets)

	usage := rl.GetUsage("a")
	assert.Equal(t, Usage{LastMinute: 2, LastHour: 2, Today: 2, DataToday: 100}, usage)

	clock.advance(12 * time.Hour)
	assert.NoError(t, rl.CheckRateLimit("a", 100))
	assert.Equal(t, Usage{}, rl.GetUsage("unknown"))
}

func TestRateLimitMiddleware(t *testing.T) {
	server := newTestServer(&stubPipeline{}, func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 1}
	})
	handler := server.rateLimitMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/extract", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")

	w := httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "minute", w.Header().Get("X-RateLimit-Type"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])

	// a different client still gets through
	other := httptest.NewRequest(http.MethodPost, "/extract", nil)
	other.RemoteAddr = "192.0.2.9:4000"
	w = httptest.NewRecorder()
	handler(w, other)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleRateLimitError_Quota(t *testing.T) {
	w := httptest.NewRecorder()
	(&Server{}).handleRateLimitError(w, &QuotaExceededError{Type: "data", Limit: 10, Used: 9, Resets: time.Now()})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-Quota-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-Quota-Used"))
}

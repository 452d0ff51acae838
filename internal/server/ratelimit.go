package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter tracks per-client request windows and daily quotas.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64 // bytes

	clients map[string]*clientUsage
	now     func() time.Time
}

// clientUsage holds the request times of the last hour and the day's totals.
type clientUsage struct {
	recent    []time.Time
	day       time.Time
	dayCount  int
	dataToday int64
}

// Usage is a snapshot of one client's consumption.
type Usage struct {
	LastMinute int
	LastHour   int
	Today      int
	DataToday  int64
}

// NewRateLimiter creates a limiter. A zero limit is not enforced.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*clientUsage),
		now:               time.Now,
	}
}

// CheckRateLimit admits a request of dataSize bytes from clientID or returns
// a *RateLimitError or *QuotaExceededError. Rejected requests are not counted.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.usage(clientID, now)

	if err := rl.checkWindows(u, now); err != nil {
		return err
	}
	if err := rl.checkDailyQuotas(u, dataSize, now); err != nil {
		return err
	}

	u.recent = append(u.recent, now)
	u.dayCount++
	u.dataToday += dataSize
	return nil
}

func (rl *RateLimiter) usage(clientID string, now time.Time) *clientUsage {
	u, ok := rl.clients[clientID]
	if !ok {
		u = &clientUsage{day: startOfDay(now)}
		rl.clients[clientID] = u
	}

	if day := startOfDay(now); !day.Equal(u.day) {
		u.day, u.dayCount, u.dataToday = day, 0, 0
	}
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(u.recent) && !u.recent[i].After(cutoff) {
		i++
	}
	u.recent = u.recent[i:]
	return u
}

func (rl *RateLimiter) checkWindows(u *clientUsage, now time.Time) error {
	if rl.requestsPerMinute > 0 {
		inMinute := countSince(u.recent, now.Add(-time.Minute))
		if inMinute >= rl.requestsPerMinute {
			oldest := u.recent[len(u.recent)-inMinute]
			return &RateLimitError{Type: "minute", Limit: rl.requestsPerMinute, RetryAfter: oldest.Add(time.Minute).Sub(now)}
		}
	}
	if rl.requestsPerHour > 0 && len(u.recent) >= rl.requestsPerHour {
		return &RateLimitError{Type: "hour", Limit: rl.requestsPerHour, RetryAfter: u.recent[0].Add(time.Hour).Sub(now)}
	}
	return nil
}

func (rl *RateLimiter) checkDailyQuotas(u *clientUsage, dataSize int64, now time.Time) error {
	resets := startOfDay(now).AddDate(0, 0, 1)
	if rl.maxRequestsPerDay > 0 && u.dayCount >= rl.maxRequestsPerDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.maxRequestsPerDay), Used: int64(u.dayCount), Resets: resets}
	}
	if rl.maxDataPerDay > 0 && u.dataToday+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.maxDataPerDay, Used: u.dataToday, Resets: resets}
	}
	return nil
}

// GetUsage returns current usage statistics for a client.
func (rl *RateLimiter) GetUsage(clientID string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if _, ok := rl.clients[clientID]; !ok {
		return Usage{}
	}
	now := rl.now()
	u := rl.usage(clientID, now)
	return Usage{
		LastMinute: countSince(u.recent, now.Add(-time.Minute)),
		LastHour:   len(u.recent),
		Today:      u.dayCount,
		DataToday:  u.dataToday,
	}
}

// countSince counts sorted timestamps strictly after t.
func countSince(times []time.Time, t time.Time) int {
	n := 0
	for i := len(times) - 1; i >= 0 && times[i].After(t); i-- {
		n++
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}

package server

import (
	"fmt"
	"sync"
	"time"
)

// Limit types reported in RateLimitError and QuotaExceededError.
const (
	limitMinute   = "minute"
	limitHour     = "hour"
	quotaRequests = "requests"
	quotaData     = "data"
)

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // in bytes
}

// RateLimiter manages fixed-window request limits and daily quotas per client.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	requestsPerHour   int
	maxRequestsPerDay int
	maxDataPerDay     int64

	clients map[string]*ClientUsage
	now     func() time.Time
}

// ClientUsage tracks usage for one client IP.
type ClientUsage struct {
	RequestsThisMinute int
	RequestsThisHour   int
	RequestsToday      int
	DataToday          int64

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
	lastSeen    time.Time
}

// NewRateLimiter creates a rate limiter with the given limits.
func NewRateLimiter(requestsPerMinute, requestsPerHour, maxRequestsPerDay int, maxDataPerDay int64) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		maxRequestsPerDay: maxRequestsPerDay,
		maxDataPerDay:     maxDataPerDay,
		clients:           make(map[string]*ClientUsage),
		now:               time.Now,
	}
}

// NewRateLimiterFromConfig returns nil when limiting is disabled.
func NewRateLimiterFromConfig(cfg RateLimitConfig) *RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	return NewRateLimiter(cfg.RequestsPerMinute, cfg.RequestsPerHour, cfg.MaxRequestsPerDay, cfg.MaxDataPerDay)
}

// CheckRateLimit records a request of dataSize bytes from clientID or returns the limit
// it would exceed. Rejected requests are not counted.
func (rl *RateLimiter) CheckRateLimit(clientID string, dataSize int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	usage := rl.getOrCreate(clientID, now)
	rl.rollWindows(usage, now)

	if err := rl.checkRateLimits(usage, now); err != nil {
		return err
	}
	if err := rl.checkDailyQuotas(usage, dataSize, now); err != nil {
		return err
	}

	usage.RequestsThisMinute++
	usage.RequestsThisHour++
	usage.RequestsToday++
	usage.DataToday += dataSize
	usage.lastSeen = now
	return nil
}

// rollWindows starts new windows once the current ones have elapsed.
func (rl *RateLimiter) rollWindows(usage *ClientUsage, now time.Time) {
	if now.Sub(usage.minuteStart) >= time.Minute {
		usage.RequestsThisMinute = 0
		usage.minuteStart = now
	}
	if now.Sub(usage.hourStart) >= time.Hour {
		usage.RequestsThisHour = 0
		usage.hourStart = now
	}
	if !sameDay(now, usage.dayStart) {
		usage.RequestsToday = 0
		usage.DataToday = 0
		usage.dayStart = now
	}
}

func (rl *RateLimiter) checkRateLimits(usage *ClientUsage, now time.Time) error {
	if rl.requestsPerMinute > 0 && usage.RequestsThisMinute >= rl.requestsPerMinute {
		return &RateLimitError{
			Type:       limitMinute,
			Limit:      rl.requestsPerMinute,
			RetryAfter: usage.minuteStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.requestsPerHour > 0 && usage.RequestsThisHour >= rl.requestsPerHour {
		return &RateLimitError{
			Type:       limitHour,
			Limit:      rl.requestsPerHour,
			RetryAfter: usage.hourStart.Add(time.Hour).Sub(now),
		}
	}
	return nil
}

func (rl *RateLimiter) checkDailyQuotas(usage *ClientUsage, dataSize int64, now time.Time) error {
	resets := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	if rl.maxRequestsPerDay > 0 && usage.RequestsToday >= rl.maxRequestsPerDay {
		return &QuotaExceededError{
			Type:   quotaRequests,
			Limit:  int64(rl.maxRequestsPerDay),
			Used:   int64(usage.RequestsToday),
			Resets: resets,
		}
	}
	if rl.maxDataPerDay > 0 && usage.DataToday+dataSize > rl.maxDataPerDay {
		return &QuotaExceededError{
			Type:   quotaData,
			Limit:  rl.maxDataPerDay,
			Used:   usage.DataToday,
			Resets: resets,
		}
	}
	return nil
}

func (rl *RateLimiter) getOrCreate(clientID string, now time.Time) *ClientUsage {
	usage, ok := rl.clients[clientID]
	if !ok {
		usage = &ClientUsage{minuteStart: now, hourStart: now, dayStart: now, lastSeen: now}
		rl.clients[clientID] = usage
	}
	return usage
}

// GetUsage returns a copy of the usage counters for clientID.
func (rl *RateLimiter) GetUsage(clientID string) ClientUsage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if usage, ok := rl.clients[clientID]; ok {
		return *usage
	}
	return ClientUsage{}
}

// Prune drops clients not seen for longer than idle and returns how many were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	removed := 0
	for id, usage := range rl.clients {
		if now.Sub(usage.lastSeen) > idle {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string        // "minute" or "hour"
	Limit      int           // the limit that was exceeded
	RetryAfter time.Duration // how long to wait before retrying
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter)
}

// QuotaExceededError represents a quota violation.
type QuotaExceededError struct {
	Type   string    // "requests" or "data"
	Limit  int64     // the limit that was exceeded
	Used   int64     // current usage
	Resets time.Time // when the quota resets
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}

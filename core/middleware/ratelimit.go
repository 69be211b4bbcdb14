package middleware

import (
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// RateLimitConfig configures the three sliding windows of a RateLimiter.
type RateLimitConfig struct {
	BurstLimit        int           `yaml:"burst_limit" json:"burst_limit" split_words:"true"`
	BurstWindow       time.Duration `yaml:"burst_window" json:"burst_window" split_words:"true"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute" split_words:"true"`
	RequestsPerHour   int           `yaml:"requests_per_hour" json:"requests_per_hour" split_words:"true"`
	BlockDuration     time.Duration `yaml:"block_duration" json:"block_duration" split_words:"true"`
}

// DefaultRateLimitConfig returns the stock limits: 30 requests per 2s,
// 120 per minute, 2000 per hour, 60s block.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		BurstLimit:        30,
		BurstWindow:       2 * time.Second,
		RequestsPerMinute: 120,
		RequestsPerHour:   2000,
		BlockDuration:     60 * time.Second,
	}
}

// ipState holds the samples of one client. requests covers the hour
// window, burst the burst window; both are kept in time order.
type ipState struct {
	requests     []time.Time
	burst        []time.Time
	blockedUntil time.Time
}

// RateLimiter admits requests per client IP using a burst window, a
// one-minute window and a one-hour window. Exceeding any window blocks the
// client for BlockDuration.
type RateLimiter struct {
	cfg   RateLimitConfig
	clock clock.PassiveClock

	mu         sync.Mutex
	ips        map[string]*ipState
	limitedIPs map[string]struct{}
	total      uint64
	blocked    uint64
}

// NewRateLimiter creates a limiter. A nil clock means the wall clock.
func NewRateLimiter(cfg RateLimitConfig, clk clock.PassiveClock) *RateLimiter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &RateLimiter{
		cfg:        cfg,
		clock:      clk,
		ips:        make(map[string]*ipState),
		limitedIPs: make(map[string]struct{}),
	}
}

// Allow records a request from ip, or returns a 429 Violation.
func (rl *RateLimiter) Allow(ip string) error {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.total++
	st, ok := rl.ips[ip]
	if !ok {
		st = &ipState{}
		rl.ips[ip] = st
	}

	if now.Before(st.blockedUntil) {
		rl.reject(ip)
		remaining := st.blockedUntil.Sub(now).Seconds()
		return violation(RateLimited, 429, "Rate limited. Try again in %.1f seconds", remaining)
	}

	st.requests = dropBefore(st.requests, now.Add(-time.Hour))
	st.burst = dropBefore(st.burst, now.Add(-rl.cfg.BurstWindow))

	if len(st.burst) >= rl.cfg.BurstLimit {
		rl.block(ip, st, now)
		return violation(RateLimited, 429, "Burst limit exceeded (%d requests in %s)",
			rl.cfg.BurstLimit, rl.cfg.BurstWindow)
	}
	if countSince(st.requests, now.Add(-time.Minute)) >= rl.cfg.RequestsPerMinute {
		rl.block(ip, st, now)
		return violation(RateLimited, 429, "Rate limit exceeded (%d requests per minute)",
			rl.cfg.RequestsPerMinute)
	}
	if countSince(st.requests, now.Add(-time.Hour)) >= rl.cfg.RequestsPerHour {
		rl.block(ip, st, now)
		return violation(RateLimited, 429, "Rate limit exceeded (%d requests per hour)",
			rl.cfg.RequestsPerHour)
	}

	st.requests = append(st.requests, now)
	st.burst = append(st.burst, now)
	return nil
}

func (rl *RateLimiter) block(ip string, st *ipState, now time.Time) {
	st.blockedUntil = now.Add(rl.cfg.BlockDuration)
	rl.reject(ip)
}

func (rl *RateLimiter) reject(ip string) {
	rl.blocked++
	rl.limitedIPs[ip] = struct{}{}
}

// dropBefore removes samples strictly older than cutoff.
func dropBefore(samples []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(samples), func(i int) bool { return !samples[i].Before(cutoff) })
	if i == 0 {
		return samples
	}
	return append(samples[:0], samples[i:]...)
}

// countSince counts samples strictly newer than cutoff.
func countSince(samples []time.Time, cutoff time.Time) int {
	i := sort.Search(len(samples), func(i int) bool { return samples[i].After(cutoff) })
	return len(samples) - i
}

// RateLimitStats is a snapshot of limiter-wide counters.
type RateLimitStats struct {
	TotalRequests       uint64  `json:"total_requests"`
	BlockedRequests     uint64  `json:"blocked_requests"`
	BlockRate           float64 `json:"block_rate"`
	CurrentlyBlockedIPs int     `json:"currently_blocked_ips"`
	TotalTrackedIPs     int     `json:"total_tracked_ips"`
	RateLimitedIPs      int     `json:"rate_limited_ips_count"`
}

// Stats returns limiter-wide counters.
func (rl *RateLimiter) Stats() RateLimitStats {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	s := RateLimitStats{
		TotalRequests:   rl.total,
		BlockedRequests: rl.blocked,
		TotalTrackedIPs: len(rl.ips),
		RateLimitedIPs:  len(rl.limitedIPs),
	}
	if rl.total > 0 {
		s.BlockRate = float64(rl.blocked) / float64(rl.total) * 100
	}
	for _, st := range rl.ips {
		if now.Before(st.blockedUntil) {
			s.CurrentlyBlockedIPs++
		}
	}
	return s
}

// IPStats describes one client's windows.
type IPStats struct {
	IP            string     `json:"ip"`
	TotalRequests int        `json:"total_requests"`
	LastMinute    int        `json:"recent_requests_1min"`
	LastHour      int        `json:"recent_requests_1hour"`
	BurstRequests int        `json:"burst_requests"`
	Blocked       bool       `json:"is_blocked"`
	BlockedUntil  *time.Time `json:"blocked_until,omitempty"`
}

// IPStats returns the state of ip. ok is false for an unknown client.
func (rl *RateLimiter) IPStats(ip string) (stats IPStats, ok bool) {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.ips[ip]
	if !ok {
		return IPStats{}, false
	}
	stats = IPStats{
		IP:            ip,
		TotalRequests: len(st.requests),
		LastMinute:    countSince(st.requests, now.Add(-time.Minute)),
		LastHour:      countSince(st.requests, now.Add(-time.Hour)),
		BurstRequests: countSince(st.burst, now.Add(-rl.cfg.BurstWindow)),
		Blocked:       now.Before(st.blockedUntil),
	}
	if !st.blockedUntil.IsZero() {
		until := st.blockedUntil
		stats.BlockedUntil = &until
	}
	return stats, true
}

// Unblock lifts the block on ip. It reports whether ip was known.
func (rl *RateLimiter) Unblock(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	st, ok := rl.ips[ip]
	if !ok {
		return false
	}
	st.blockedUntil = time.Time{}
	delete(rl.limitedIPs, ip)
	return true
}

// Prune forgets clients whose last admitted request is older than maxAge,
// unless they are still blocked. It returns the number removed.
func (rl *RateLimiter) Prune(maxAge time.Duration) int {
	now := rl.clock.Now()
	cutoff := now.Add(-maxAge)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, st := range rl.ips {
		if now.Before(st.blockedUntil) {
			continue
		}
		if n := len(st.requests); n == 0 || st.requests[n-1].Before(cutoff) {
			delete(rl.ips, ip)
			delete(rl.limitedIPs, ip)
			removed++
		}
	}
	return removed
}

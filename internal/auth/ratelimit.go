package auth

import (
	"sync"
	"time"
)

const (
	maxCeremonyAttempts = 10 // per IP within the window (begin+finish pairs)
	ceremonyWindow      = 5 * time.Minute
	ceremonyBlockDur    = 15 * time.Minute
)

// attemptState tracks ceremony attempts for an IP.
type attemptState struct {
	Count     int
	FirstAt   time.Time
	BlockedAt time.Time // non-zero if blocked
}

// RateLimiter throttles ceremony attempts per IP.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptState
}

// NewRateLimiter creates a ceremony rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{attempts: make(map[string]*attemptState)}
}

// Allow checks if an attempt from the given IP is allowed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	a, ok := rl.attempts[ip]
	if !ok {
		rl.attempts[ip] = &attemptState{Count: 1, FirstAt: now}
		return true
	}

	if !a.BlockedAt.IsZero() {
		if now.Before(a.BlockedAt.Add(ceremonyBlockDur)) {
			return false
		}
		a.Count = 1
		a.FirstAt = now
		a.BlockedAt = time.Time{}
		return true
	}

	if now.After(a.FirstAt.Add(ceremonyWindow)) {
		a.Count = 1
		a.FirstAt = now
		return true
	}

	a.Count++
	if a.Count > maxCeremonyAttempts {
		a.BlockedAt = now
		return false
	}
	return true
}

// RecordFailure records a failed verification for an IP.
func (rl *RateLimiter) RecordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	a, ok := rl.attempts[ip]
	if !ok {
		rl.attempts[ip] = &attemptState{Count: 1, FirstAt: time.Now()}
		return
	}
	a.Count++
	if a.Count >= maxCeremonyAttempts {
		a.BlockedAt = time.Now()
	}
}

// Reset clears rate limit state for an IP (called on successful sign-in).
func (rl *RateLimiter) Reset(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, ip)
}

// Cleanup removes expired entries. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, a := range rl.attempts {
		if !a.BlockedAt.IsZero() {
			if now.After(a.BlockedAt.Add(ceremonyBlockDur)) {
				delete(rl.attempts, ip)
			}
			continue
		}
		if now.After(a.FirstAt.Add(ceremonyWindow)) {
			delete(rl.attempts, ip)
		}
	}
}

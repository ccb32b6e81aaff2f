package ratelimit

import (
	"sync"
	"time"
)

// LLMRateLimiter tracks per-user LLM usage with an hourly token bucket
// plus an optional daily sliding window. LLM calls are the expensive
// path (intent fallback and KB answers), so they are limited separately
// from regular message processing.
type LLMRateLimiter struct {
	mu         sync.Mutex
	pkl        *PerKeyLimiter
	daily      map[string]*SlidingWindowCounter
	burst      float64
	dailyLimit int
}

// NewLLMRateLimiter creates a multi-layer LLM limiter.
//
// Parameters:
//   - burst: maximum burst tokens per user
//   - refillPerHour: tokens refilled per hour
//   - dailyLimit: maximum requests per user per day (0 = disabled)
//   - cleanup: cleanup interval for inactive limiters
func NewLLMRateLimiter(burst, refillPerHour float64, dailyLimit int, cleanup time.Duration) *LLMRateLimiter {
	return &LLMRateLimiter{
		pkl: NewPerKeyLimiter(PerKeyLimiterConfig{
			MaxTokens:     burst,
			RefillRate:    refillPerHour / 3600.0,
			CleanupPeriod: cleanup,
		}),
		daily:      make(map[string]*SlidingWindowCounter),
		burst:      burst,
		dailyLimit: dailyLimit,
	}
}

// Allow checks both layers. The daily layer only consumes a slot when
// the hourly layer admits the request.
func (llm *LLMRateLimiter) Allow(userID string) bool {
	if !llm.pkl.Allow(userID) {
		return false
	}
	if llm.dailyLimit <= 0 || userID == "" {
		return true
	}

	llm.mu.Lock()
	counter, ok := llm.daily[userID]
	if !ok {
		counter = NewSlidingWindowCounter(llm.dailyLimit, 24*time.Hour)
		llm.daily[userID] = counter
	}
	llm.mu.Unlock()

	return counter.Allow()
}

// GetAvailable returns remaining hourly tokens for a user.
func (llm *LLMRateLimiter) GetAvailable(userID string) float64 {
	if userID == "" {
		return llm.burst
	}
	return llm.pkl.GetAvailable(userID)
}

// Stop stops the cleanup goroutine.
func (llm *LLMRateLimiter) Stop() {
	llm.pkl.Stop()
}

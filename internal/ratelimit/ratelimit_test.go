package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterAllowConsumesTokens(t *testing.T) {
	l := New(2, 0.001) // effectively no refill during the test

	if !l.Allow() {
		t.Fatal("first request should pass")
	}
	if !l.Allow() {
		t.Fatal("second request should pass")
	}
	if l.Allow() {
		t.Error("third request should be rejected")
	}
}

func TestLimiterRefill(t *testing.T) {
	l := New(1, 100) // refills fast

	if !l.Allow() {
		t.Fatal("first request should pass")
	}
	time.Sleep(20 * time.Millisecond)
	if !l.Allow() {
		t.Error("request after refill should pass")
	}
}

func TestLimiterReset(t *testing.T) {
	l := New(1, 0.001)
	_ = l.Allow()
	l.Reset()
	if !l.Allow() {
		t.Error("request after reset should pass")
	}
}

func TestPerKeyLimiterIsolatesKeys(t *testing.T) {
	pkl := NewPerKeyLimiter(PerKeyLimiterConfig{
		MaxTokens:     1,
		RefillRate:    0.001,
		CleanupPeriod: time.Minute,
	})
	defer pkl.Stop()

	if !pkl.Allow("user-a") {
		t.Fatal("user-a first request should pass")
	}
	if pkl.Allow("user-a") {
		t.Error("user-a second request should be rejected")
	}
	if !pkl.Allow("user-b") {
		t.Error("user-b should have an independent bucket")
	}
}

func TestPerKeyLimiterEmptyKeyAlwaysAllowed(t *testing.T) {
	pkl := NewPerKeyLimiter(PerKeyLimiterConfig{MaxTokens: 1, RefillRate: 0.001})
	defer pkl.Stop()

	for i := 0; i < 5; i++ {
		if !pkl.Allow("") {
			t.Fatal("empty key should bypass limiting")
		}
	}
}

func TestPerKeyLimiterOnDrop(t *testing.T) {
	pkl := NewPerKeyLimiter(PerKeyLimiterConfig{MaxTokens: 1, RefillRate: 0.001})
	defer pkl.Stop()

	dropped := 0
	pkl.OnDrop(func() { dropped++ })

	_ = pkl.Allow("u")
	_ = pkl.Allow("u")
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestSlidingWindowCounter(t *testing.T) {
	swc := NewSlidingWindowCounter(2, time.Hour)

	if !swc.Allow() || !swc.Allow() {
		t.Fatal("first two requests should pass")
	}
	if swc.Allow() {
		t.Error("third request should be rejected")
	}
	if got := swc.GetRemaining(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestSlidingWindowCounterDisabled(t *testing.T) {
	var swc *SlidingWindowCounter
	if !swc.Allow() {
		t.Error("nil counter should allow everything")
	}
	if swc.GetRemaining() != -1 {
		t.Error("nil counter should report unlimited")
	}
}

func TestLLMRateLimiterDailyLayer(t *testing.T) {
	llm := NewLLMRateLimiter(10, 10, 2, time.Minute)
	defer llm.Stop()

	if !llm.Allow("u1") || !llm.Allow("u1") {
		t.Fatal("first two LLM calls should pass")
	}
	if llm.Allow("u1") {
		t.Error("third call should hit the daily cap")
	}
	if !llm.Allow("u2") {
		t.Error("daily cap is per user")
	}
}

func TestLLMRateLimiterHourlyLayer(t *testing.T) {
	llm := NewLLMRateLimiter(1, 1, 0, time.Minute)
	defer llm.Stop()

	if !llm.Allow("u1") {
		t.Fatal("first call should pass")
	}
	if llm.Allow("u1") {
		t.Error("second call should hit the hourly burst")
	}
}

package genai

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"strings"
	"time"

	apperrors "github.com/chaintara/shopchat-linebot-go/internal/errors"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
)

// ErrorAction is what the chain does with a provider failure.
type ErrorAction int

const (
	// ActionRetry retries the same provider after backoff.
	ActionRetry ErrorAction = iota
	// ActionFallback moves to the next provider immediately.
	ActionFallback
	// ActionFail stops the chain.
	ActionFail
)

// RetryConfig bounds per-provider retries.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig keeps the chain fast enough for a chat reply.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 300 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}
}

// Chain tries providers in order. It implements Provider itself so
// callers never care how many backends stand behind it, and is
// nil-receiver safe for deployments with no LLM configured.
type Chain struct {
	providers []Provider
	retry     RetryConfig
	log       *logger.Logger
}

// NewChain builds a fallback chain, skipping nil (disabled) providers.
// Returns nil when every provider is disabled.
func NewChain(log *logger.Logger, retry RetryConfig, providers ...Provider) *Chain {
	var active []Provider
	for _, p := range providers {
		if p != nil {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return &Chain{providers: active, retry: retry, log: log.WithModule("genai")}
}

func (c *Chain) Name() string {
	if c == nil {
		return "disabled"
	}
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ">")
}

// Enabled reports whether any provider is configured.
func (c *Chain) Enabled() bool { return c != nil && len(c.providers) > 0 }

func (c *Chain) Intent(ctx context.Context, text string, snap *Snapshot) (*IntentResult, error) {
	if c == nil {
		return nil, apperrors.ErrProviderUnavailable
	}
	var out *IntentResult
	err := c.run(ctx, func(p Provider) error {
		r, err := p.Intent(ctx, text, snap)
		if err == nil {
			out = r
		}
		return err
	})
	return out, err
}

func (c *Chain) Answer(ctx context.Context, text string, snap *Snapshot) (string, error) {
	if c == nil {
		return "", apperrors.ErrProviderUnavailable
	}
	var out string
	err := c.run(ctx, func(p Provider) error {
		r, err := p.Answer(ctx, text, snap)
		if err == nil {
			out = r
		}
		return err
	})
	return out, err
}

// run walks the provider list, retrying transient failures per
// provider and falling through on everything else.
func (c *Chain) run(ctx context.Context, fn func(Provider) error) error {
	var lastErr error
	for _, p := range c.providers {
		var err error
		for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err = fn(p)
			if err == nil {
				return nil
			}
			if ClassifyError(err) != ActionRetry || attempt == c.retry.MaxAttempts-1 {
				break
			}
			delay := Backoff(attempt+1, c.retry.InitialDelay, c.retry.MaxDelay)
			c.log.WithError(err).WithField("provider", p.Name()).Warnf("llm call failed, retrying in %v", delay)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		lastErr = err
		if ClassifyError(err) == ActionFail {
			break
		}
		c.log.WithError(err).WithField("provider", p.Name()).Warnf("llm provider exhausted, falling through")
	}
	if lastErr == nil {
		lastErr = apperrors.ErrProviderUnavailable
	}
	return lastErr
}

func (c *Chain) Close() error {
	if c == nil {
		return nil
	}
	var first error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ClassifyError sorts a provider failure into retry, fallback, or
// fail. Transient statuses (429, 5xx, network) retry; quota and every
// other provider-side error fall through to the next provider;
// cancellation fails the chain.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionFail
	}
	if errors.Is(err, context.Canceled) {
		return ActionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ActionRetry
	}

	var provErr *apperrors.ProviderError
	if errors.As(err, &provErr) {
		switch {
		case provErr.StatusCode == 429:
			return ActionRetry
		case provErr.StatusCode >= 500:
			return ActionRetry
		case provErr.StatusCode >= 400:
			return ActionFallback
		}
	}

	msg := strings.ToLower(err.Error())
	if hasAny(msg, "quota", "billing", "daily limit") {
		return ActionFallback
	}
	if hasAny(msg, "rate limit", "too many requests", "resource_exhausted",
		"unavailable", "connection", "timeout", "500", "502", "503", "504") {
		return ActionRetry
	}
	return ActionFallback
}

// Backoff returns the delay before retry number attempt, using full
// jitter so concurrent retries spread out:
//
//	delay = random(0, min(maxDelay, initial * 2^(attempt-1)))
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if delay > max {
		delay = max
	}
	if delay <= 0 {
		return 0
	}
	jitter, err := rand.Int(rand.Reader, big.NewInt(int64(delay)))
	if err != nil {
		return delay / 2
	}
	return time.Duration(jitter.Int64())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

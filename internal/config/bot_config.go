package config

import (
	"fmt"
	"time"
)

// RepeatAction selects what the bot does when a user repeats the same
// message past the threshold.
type RepeatAction string

const (
	// RepeatActionTemplate replies with a rotating variation template.
	RepeatActionTemplate RepeatAction = "template"
	// RepeatActionSilent suppresses the reply entirely.
	RepeatActionSilent RepeatAction = "silent"
	// RepeatActionHandoff escalates the conversation to a human.
	RepeatActionHandoff RepeatAction = "handoff"
)

// BotConfig holds message-pipeline thresholds and windows.
type BotConfig struct {
	// Message buffering (debounce)
	BufferWindow     time.Duration // How long to wait for follow-up fragments (default: 8s)
	BufferMaxWait    time.Duration // Ceiling on how long a pending set may age before a forced flush (default: 30s)
	BufferMaxPending int           // Force a flush once this many fragments are pending (default: 5)

	// Duplicate webhook delivery suppression
	DedupeWindow time.Duration // Identical text inside this window is a duplicate delivery (default: 3s)
	DedupeDepth  int           // How many recent user messages to inspect (default: 3)

	// Repeated-message guard
	RepeatThreshold int           // Identical messages before triggering (default: 3, clamped 2-10)
	RepeatWindow    time.Duration // Window for counting repeats (default: 60s, clamped 5s-300s)
	RepeatAction    RepeatAction  // template | silent | handoff (default: template)

	// Admin takeover
	AdminHandoffTimeout time.Duration // Bot resumes after admin inactivity (default: 1h)

	// Knowledge base pending hold
	KBPendingWindow      time.Duration // Combine follow-up messages within this window (default: 25s)
	KBPendingMaxMessages int           // Max extra user messages joined for a retry (default: 2)
	KBPartialMinScore    float64       // Minimum BM25 score for the partial fallback (default: 1.2)

	// Gatekeeper
	GatekeeperSkipThreshold  float64       // Informational score below which messages are skipped (default: 0.3)
	GatekeeperQuestionWindow time.Duration // Lower the threshold after a bot question (default: 60s)
	GatekeeperRapidTyping    time.Duration // Arrivals faster than this lean on the buffer (default: 3s)

	// Follow-up from last media
	MediaFollowupWindow time.Duration // Bare confirmations refer to the last image within this window (default: 10m)

	// Rate Limits (Token Bucket Algorithm)
	UserRateLimitBurst        float64 // Maximum burst tokens per user (default: 15)
	UserRateLimitRefillPerSec float64 // Tokens refilled per second (default: 0.1 = 1 per 10s)

	// LLM Rate Limits (Multi-Layer: Hourly + Daily)
	LLMBurstTokens   float64 // Maximum burst tokens for LLM (default: 40)
	LLMRefillPerHour float64 // LLM tokens refilled per hour (default: 20)
	LLMDailyLimit    int     // Maximum LLM requests per day (default: 200, 0 = disabled)

	GlobalRateLimitRPS float64 // Global webhook rate limit in requests per second (default: 100)

	// LINE API Constraints
	WebhookTimeout      time.Duration // Per-event processing budget (default: 25s)
	MaxMessagesPerReply int           // Maximum messages per reply (LINE API limit: 5)
	MaxEventsPerWebhook int           // Maximum events per webhook (default: 100)
	MinReplyTokenLength int           // Minimum reply token length (default: 10)
	MaxMessageLength    int           // Maximum message length (LINE API limit: 20000)
}

// DefaultBotConfig returns the pipeline defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		BufferWindow:     8 * time.Second,
		BufferMaxWait:    30 * time.Second,
		BufferMaxPending: 5,

		DedupeWindow: 3 * time.Second,
		DedupeDepth:  3,

		RepeatThreshold: 3,
		RepeatWindow:    60 * time.Second,
		RepeatAction:    RepeatActionTemplate,

		AdminHandoffTimeout: time.Hour,

		KBPendingWindow:      25 * time.Second,
		KBPendingMaxMessages: 2,
		KBPartialMinScore:    1.2,

		GatekeeperSkipThreshold:  0.3,
		GatekeeperQuestionWindow: 60 * time.Second,
		GatekeeperRapidTyping:    3 * time.Second,

		MediaFollowupWindow: 10 * time.Minute,

		UserRateLimitBurst:        15.0,
		UserRateLimitRefillPerSec: 0.1,

		LLMBurstTokens:   40.0,
		LLMRefillPerHour: 20.0,
		LLMDailyLimit:    200,

		GlobalRateLimitRPS: 100.0,

		WebhookTimeout:      25 * time.Second,
		MaxMessagesPerReply: 5,
		MaxEventsPerWebhook: 100,
		MinReplyTokenLength: 10,
		MaxMessageLength:    20000,
	}
}

// LoadBotConfig returns DefaultBotConfig with environment overrides applied.
func LoadBotConfig() BotConfig {
	cfg := DefaultBotConfig()

	cfg.BufferWindow = getDurationEnv("BUFFER_WINDOW", cfg.BufferWindow)
	cfg.BufferMaxWait = getDurationEnv("BUFFER_MAX_WAIT", cfg.BufferMaxWait)
	cfg.BufferMaxPending = getIntEnv("BUFFER_MAX_PENDING", cfg.BufferMaxPending)

	cfg.DedupeWindow = getDurationEnv("DEDUPE_WINDOW", cfg.DedupeWindow)
	cfg.DedupeDepth = getIntEnv("DEDUPE_DEPTH", cfg.DedupeDepth)

	cfg.RepeatThreshold = getIntEnv("REPEAT_THRESHOLD", cfg.RepeatThreshold)
	cfg.RepeatWindow = getDurationEnv("REPEAT_WINDOW", cfg.RepeatWindow)
	if action := getEnv("REPEAT_ACTION", ""); action != "" {
		cfg.RepeatAction = RepeatAction(action)
	}

	cfg.AdminHandoffTimeout = getDurationEnv("ADMIN_HANDOFF_TIMEOUT", cfg.AdminHandoffTimeout)

	cfg.KBPendingWindow = getDurationEnv("KB_PENDING_WINDOW", cfg.KBPendingWindow)
	cfg.KBPendingMaxMessages = getIntEnv("KB_PENDING_MAX_MESSAGES", cfg.KBPendingMaxMessages)
	cfg.KBPartialMinScore = getFloatEnv("KB_PARTIAL_MIN_SCORE", cfg.KBPartialMinScore)

	cfg.GatekeeperSkipThreshold = getFloatEnv("GATEKEEPER_SKIP_THRESHOLD", cfg.GatekeeperSkipThreshold)
	cfg.GatekeeperQuestionWindow = getDurationEnv("GATEKEEPER_QUESTION_WINDOW", cfg.GatekeeperQuestionWindow)
	cfg.GatekeeperRapidTyping = getDurationEnv("GATEKEEPER_RAPID_TYPING", cfg.GatekeeperRapidTyping)

	cfg.MediaFollowupWindow = getDurationEnv("MEDIA_FOLLOWUP_WINDOW", cfg.MediaFollowupWindow)

	cfg.UserRateLimitBurst = getFloatEnv("USER_RATE_LIMIT_BURST", cfg.UserRateLimitBurst)
	cfg.UserRateLimitRefillPerSec = getFloatEnv("USER_RATE_LIMIT_REFILL_PER_SEC", cfg.UserRateLimitRefillPerSec)

	cfg.LLMBurstTokens = getFloatEnv("LLM_BURST_TOKENS", cfg.LLMBurstTokens)
	cfg.LLMRefillPerHour = getFloatEnv("LLM_REFILL_PER_HOUR", cfg.LLMRefillPerHour)
	cfg.LLMDailyLimit = getIntEnv("LLM_DAILY_LIMIT", cfg.LLMDailyLimit)

	cfg.GlobalRateLimitRPS = getFloatEnv("GLOBAL_RATE_LIMIT_RPS", cfg.GlobalRateLimitRPS)

	cfg.WebhookTimeout = getDurationEnv("WEBHOOK_TIMEOUT", cfg.WebhookTimeout)

	cfg.Clamp()
	return cfg
}

// Clamp forces guard thresholds into their safe operating ranges.
// Merchant-supplied values outside the range are pulled to the nearest bound.
func (c *BotConfig) Clamp() {
	if c.RepeatThreshold < 2 {
		c.RepeatThreshold = 2
	}
	if c.RepeatThreshold > 10 {
		c.RepeatThreshold = 10
	}
	if c.RepeatWindow < 5*time.Second {
		c.RepeatWindow = 5 * time.Second
	}
	if c.RepeatWindow > 300*time.Second {
		c.RepeatWindow = 300 * time.Second
	}
}

// Validate checks bot config invariants.
func (c *BotConfig) Validate() error {
	if c.BufferWindow <= 0 {
		return fmt.Errorf("BUFFER_WINDOW must be positive, got %v", c.BufferWindow)
	}
	if c.BufferMaxPending < 1 {
		return fmt.Errorf("BUFFER_MAX_PENDING must be at least 1, got %d", c.BufferMaxPending)
	}
	if c.BufferMaxWait < c.BufferWindow {
		return fmt.Errorf("BUFFER_MAX_WAIT must be at least BUFFER_WINDOW, got %v < %v", c.BufferMaxWait, c.BufferWindow)
	}
	if c.DedupeWindow <= 0 {
		return fmt.Errorf("DEDUPE_WINDOW must be positive, got %v", c.DedupeWindow)
	}
	if c.DedupeDepth < 1 {
		return fmt.Errorf("DEDUPE_DEPTH must be at least 1, got %d", c.DedupeDepth)
	}
	switch c.RepeatAction {
	case RepeatActionTemplate, RepeatActionSilent, RepeatActionHandoff:
	default:
		return fmt.Errorf("REPEAT_ACTION must be template, silent, or handoff, got %q", c.RepeatAction)
	}
	if c.AdminHandoffTimeout <= 0 {
		return fmt.Errorf("ADMIN_HANDOFF_TIMEOUT must be positive, got %v", c.AdminHandoffTimeout)
	}
	if c.KBPendingMaxMessages < 0 {
		return fmt.Errorf("KB_PENDING_MAX_MESSAGES cannot be negative, got %d", c.KBPendingMaxMessages)
	}
	if c.GatekeeperSkipThreshold < 0 || c.GatekeeperSkipThreshold > 1 {
		return fmt.Errorf("GATEKEEPER_SKIP_THRESHOLD must be in [0,1], got %v", c.GatekeeperSkipThreshold)
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", c.WebhookTimeout)
	}
	if c.MaxMessagesPerReply < 1 || c.MaxMessagesPerReply > 5 {
		return fmt.Errorf("MaxMessagesPerReply must be 1-5 (LINE API limit), got %d", c.MaxMessagesPerReply)
	}
	return nil
}

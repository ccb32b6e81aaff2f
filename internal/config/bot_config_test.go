package config

import (
	"testing"
	"time"
)

func TestDefaultBotConfigIsValid(t *testing.T) {
	cfg := DefaultBotConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default bot config rejected: %v", err)
	}
}

func TestClampRepeatThreshold(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"below minimum", 1, 2},
		{"at minimum", 2, 2},
		{"normal", 5, 5},
		{"above maximum", 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBotConfig()
			cfg.RepeatThreshold = tt.input
			cfg.Clamp()
			if cfg.RepeatThreshold != tt.expected {
				t.Errorf("RepeatThreshold = %d, want %d", cfg.RepeatThreshold, tt.expected)
			}
		})
	}
}

func TestClampRepeatWindow(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected time.Duration
	}{
		{"too short", time.Second, 5 * time.Second},
		{"normal", 90 * time.Second, 90 * time.Second},
		{"too long", time.Hour, 300 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBotConfig()
			cfg.RepeatWindow = tt.input
			cfg.Clamp()
			if cfg.RepeatWindow != tt.expected {
				t.Errorf("RepeatWindow = %v, want %v", cfg.RepeatWindow, tt.expected)
			}
		})
	}
}

func TestValidateRejectsBadRepeatAction(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.RepeatAction = "shout"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown repeat action")
	}
}

func TestValidateRejectsBadBufferWindow(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.BufferWindow = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero buffer window")
	}
}

func TestValidateRejectsTooManyMessagesPerReply(t *testing.T) {
	cfg := DefaultBotConfig()
	cfg.MaxMessagesPerReply = 6
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for LINE reply limit violation")
	}
}

func TestDefaultCheckoutPolicyIsValid(t *testing.T) {
	p := DefaultCheckoutPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("default checkout policy rejected: %v", err)
	}
}

func TestCheckoutPolicyOffsetsMustMatchPeriods(t *testing.T) {
	p := DefaultCheckoutPolicy()
	p.InstallmentPeriods = 4
	if err := p.Validate(); err == nil {
		t.Error("expected error when due offsets do not match periods")
	}
}

func TestCheckoutPolicyRejectsBadDeposit(t *testing.T) {
	p := DefaultCheckoutPolicy()
	p.DepositPercent = 100
	if err := p.Validate(); err == nil {
		t.Error("expected error for 100% deposit")
	}
}

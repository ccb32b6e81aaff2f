package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("New() returned nil")
	}

	// Verify all metric fields are initialized
	if m.MessagesTotal == nil {
		t.Error("MessagesTotal is nil")
	}
	if m.PipelineDuration == nil {
		t.Error("PipelineDuration is nil")
	}
	if m.BufferFlushesTotal == nil {
		t.Error("BufferFlushesTotal is nil")
	}
	if m.DedupeHitsTotal == nil {
		t.Error("DedupeHitsTotal is nil")
	}
	if m.RepeatGuardTotal == nil {
		t.Error("RepeatGuardTotal is nil")
	}
	if m.GatekeeperTotal == nil {
		t.Error("GatekeeperTotal is nil")
	}
	if m.HandoffsTotal == nil {
		t.Error("HandoffsTotal is nil")
	}
	if m.CheckoutTransitionsTotal == nil {
		t.Error("CheckoutTransitionsTotal is nil")
	}
	if m.OrdersTotal == nil {
		t.Error("OrdersTotal is nil")
	}
	if m.KBMatchesTotal == nil {
		t.Error("KBMatchesTotal is nil")
	}
	if m.PolicyBlocksTotal == nil {
		t.Error("PolicyBlocksTotal is nil")
	}
	if m.LLMRequestsTotal == nil {
		t.Error("LLMRequestsTotal is nil")
	}
	if m.WebhookRequestsTotal == nil {
		t.Error("WebhookRequestsTotal is nil")
	}
	if m.CatalogRefreshTotal == nil {
		t.Error("CatalogRefreshTotal is nil")
	}
	if m.RateLimiterDropped == nil {
		t.Error("RateLimiterDropped is nil")
	}
}

func TestRecordMessage(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	// Should not panic
	m.RecordMessage("checkout", 0.2)
	m.RecordMessage("kb", 0.05)
	m.RecordMessage("llm", 3.1)
}

func TestRecordPipelineEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	// Should not panic
	m.RecordBufferFlush("window")
	m.RecordDedupeHit()
	m.RecordRepeatGuard("template")
	m.RecordGatekeeper("skip")
	m.RecordHandoff("command")
}

func TestRecordCheckout(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	// Should not panic
	m.RecordCheckoutTransition("empty", "ask_payment")
	m.RecordCheckoutTransition("ask_address", "completed")
	m.RecordOrder("installment")
}

func TestRecordLLMRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	// Should not panic
	m.RecordLLMRequest("openai", "success", 1.5)
	m.RecordLLMRequest("gemini", "error", 2.0)
	m.RecordLLMRequest("openai", "rate_limited", 0)
}

func TestRecordWebhook(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	// Should not panic
	m.RecordWebhook("message", "success", 0.05)
	m.RecordWebhook("postback", "error", 0.1)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	_ = New(registry)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = New(registry)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Message pipeline metrics
	MessagesTotal      *prometheus.CounterVec
	PipelineDuration   *prometheus.HistogramVec
	BufferFlushesTotal *prometheus.CounterVec
	DedupeHitsTotal    prometheus.Counter
	RepeatGuardTotal   *prometheus.CounterVec
	GatekeeperTotal    *prometheus.CounterVec

	// Handoff metrics
	HandoffsTotal *prometheus.CounterVec

	// Checkout metrics
	CheckoutTransitionsTotal *prometheus.CounterVec
	OrdersTotal              *prometheus.CounterVec

	// Knowledge base metrics
	KBMatchesTotal *prometheus.CounterVec

	// Policy metrics
	PolicyBlocksTotal *prometheus.CounterVec

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMDurationSeconds *prometheus.HistogramVec

	// Webhook metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec

	// Catalog metrics
	CatalogRefreshTotal    *prometheus.CounterVec
	SingleflightDedupTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// Message pipeline metrics
		MessagesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_messages_total",
				Help: "Total number of handled messages by resolution stage",
			},
			[]string{"stage"}, // stage: checkout, kb, llm, handoff, guard, fallback
		),

		PipelineDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopchat_pipeline_duration_seconds",
				Help:    "Message pipeline duration in seconds by resolution stage",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20}, // LLM calls dominate the tail
			},
			[]string{"stage"},
		),

		BufferFlushesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_buffer_flushes_total",
				Help: "Total number of message buffer flushes by reason",
			},
			[]string{"reason"}, // reason: window, max_pending, forced
		),

		DedupeHitsTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "shopchat_dedupe_hits_total",
				Help: "Total number of duplicate deliveries dropped",
			},
		),

		RepeatGuardTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_repeat_guard_total",
				Help: "Total number of repeat guard activations by action",
			},
			[]string{"action"}, // action: template, silent, handoff
		),

		GatekeeperTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_gatekeeper_total",
				Help: "Total number of gatekeeper decisions by outcome",
			},
			[]string{"outcome"}, // outcome: pass, skip, gibberish, rapid_typing
		),

		// Handoff metrics
		HandoffsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_handoffs_total",
				Help: "Total number of admin handoff events by trigger",
			},
			[]string{"trigger"}, // trigger: command, repeat_guard, policy, intent, expired
		),

		// Checkout metrics
		CheckoutTransitionsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_checkout_transitions_total",
				Help: "Total number of checkout state transitions",
			},
			[]string{"from", "to"},
		),

		OrdersTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_orders_total",
				Help: "Total number of orders by payment method",
			},
			[]string{"payment_method"}, // payment_method: full, installment, deposit, cod
		),

		// Knowledge base metrics
		KBMatchesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_kb_matches_total",
				Help: "Total number of knowledge base lookups by match kind",
			},
			[]string{"kind"}, // kind: legacy, advanced, partial, pending, miss
		),

		// Policy metrics
		PolicyBlocksTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_policy_blocks_total",
				Help: "Total number of replies blocked or rewritten by policy guard",
			},
			[]string{"rule"}, // rule: backend_required, hallucinated_product, unverified_price
		),

		// LLM metrics
		LLMRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_llm_requests_total",
				Help: "Total number of LLM requests by provider and status",
			},
			[]string{"provider", "status"}, // status: success, error, rate_limited, fallback
		),

		LLMDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopchat_llm_duration_seconds",
				Help:    "LLM request duration in seconds by provider",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30}, // Matches provider timeout
			},
			[]string{"provider"},
		),

		// Webhook metrics
		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shopchat_webhook_duration_seconds",
				Help:    "Webhook processing duration in seconds by event type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5}, // Faster buckets for webhook
			},
			[]string{"event_type"}, // event_type: message, postback, follow
		),

		WebhookRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_webhook_requests_total",
				Help: "Total number of webhook requests by event type and status",
			},
			[]string{"event_type", "status"}, // status: success, error
		),

		// Catalog metrics
		CatalogRefreshTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_catalog_refresh_total",
				Help: "Total number of catalog refresh runs by status",
			},
			[]string{"status"}, // status: success, error
		),

		SingleflightDedupTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"}, // module: catalog, media
		),

		// Rate limiter metrics
		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shopchat_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user, global, llm
		),
	}

	return m
}

// RecordMessage records a resolved message and its pipeline duration
func (m *Metrics) RecordMessage(stage string, duration float64) {
	m.MessagesTotal.WithLabelValues(stage).Inc()
	m.PipelineDuration.WithLabelValues(stage).Observe(duration)
}

// RecordBufferFlush records a message buffer flush
func (m *Metrics) RecordBufferFlush(reason string) {
	m.BufferFlushesTotal.WithLabelValues(reason).Inc()
}

// RecordDedupeHit records a dropped duplicate delivery
func (m *Metrics) RecordDedupeHit() {
	m.DedupeHitsTotal.Inc()
}

// RecordRepeatGuard records a repeat guard activation
func (m *Metrics) RecordRepeatGuard(action string) {
	m.RepeatGuardTotal.WithLabelValues(action).Inc()
}

// RecordGatekeeper records a gatekeeper decision
func (m *Metrics) RecordGatekeeper(outcome string) {
	m.GatekeeperTotal.WithLabelValues(outcome).Inc()
}

// RecordHandoff records an admin handoff event
func (m *Metrics) RecordHandoff(trigger string) {
	m.HandoffsTotal.WithLabelValues(trigger).Inc()
}

// RecordCheckoutTransition records a checkout state transition
func (m *Metrics) RecordCheckoutTransition(from, to string) {
	m.CheckoutTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordOrder records a created order
func (m *Metrics) RecordOrder(paymentMethod string) {
	m.OrdersTotal.WithLabelValues(paymentMethod).Inc()
}

// RecordKBMatch records a knowledge base lookup outcome
func (m *Metrics) RecordKBMatch(kind string) {
	m.KBMatchesTotal.WithLabelValues(kind).Inc()
}

// RecordPolicyBlock records a policy guard intervention
func (m *Metrics) RecordPolicyBlock(rule string) {
	m.PolicyBlocksTotal.WithLabelValues(rule).Inc()
}

// RecordLLMRequest records an LLM request with status and duration
func (m *Metrics) RecordLLMRequest(provider, status string, duration float64) {
	m.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	m.LLMDurationSeconds.WithLabelValues(provider).Observe(duration)
}

// RecordWebhook records a webhook request
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordCatalogRefresh records a catalog refresh run
func (m *Metrics) RecordCatalogRefresh(status string) {
	m.CatalogRefreshTotal.WithLabelValues(status).Inc()
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

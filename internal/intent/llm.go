package intent

import (
	"context"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/ratelimit"
)

// ClassifyRequest is what the LLM sees for a fallthrough message.
type ClassifyRequest struct {
	Text    string
	History []string // recent conversation lines, oldest first
	Slots   map[string]any
}

// ClassifyResult is the LLM's answer.
type ClassifyResult struct {
	Intent string
	Params map[string]any
	Reply  string
}

// Classifier is the LLM behind the cascade's last layer. Implemented
// by the genai provider chain.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResult, error)
}

// LLMLayer is the cascade's bottom: everything no rule claimed goes to
// the model, budgeted by the LLM rate limiter.
type LLMLayer struct {
	classifier Classifier
	limiter    *ratelimit.LLMRateLimiter
	log        *logger.Logger
}

// NewLLMLayer creates the fallback layer. A nil classifier disables
// it; the cascade then resolves to unknown.
func NewLLMLayer(classifier Classifier, limiter *ratelimit.LLMRateLimiter, log *logger.Logger) *LLMLayer {
	return &LLMLayer{
		classifier: classifier,
		limiter:    limiter,
		log:        log.WithModule("intent.llm"),
	}
}

func (*LLMLayer) Name() string { return "llm_fallback" }

// Match asks the model. Provider errors resolve to unknown rather than
// propagating; the router downgrades unknown to the fallback template.
func (l *LLMLayer) Match(ctx context.Context, req *Request) (*Result, error) {
	if l.classifier == nil {
		return nil, nil
	}
	if l.limiter != nil && !l.limiter.Allow(req.UserID) {
		return &Result{
			Intent: IntentUnknown,
			Params: map[string]any{"rate_limited": true},
		}, nil
	}

	var slots map[string]any
	if req.Session != nil {
		slots = req.Session.Slots
	}
	res, err := l.classifier.Classify(ctx, ClassifyRequest{Text: req.Text, Slots: slots})
	if err != nil {
		l.log.WithError(err).Errorf("classification failed, resolving to unknown")
		return &Result{Intent: IntentUnknown, Params: map[string]any{"llm_error": true}}, nil
	}

	intentName := res.Intent
	if intentName == "" {
		intentName = IntentLLMAnswer
	}
	return &Result{
		Intent:     intentName,
		Confidence: 0.5,
		Params:     res.Params,
		Reply:      res.Reply,
	}, nil
}

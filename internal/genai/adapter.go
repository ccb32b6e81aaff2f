package genai

import (
	"context"

	"github.com/chaintara/shopchat-linebot-go/internal/intent"
)

// Adapter exposes a provider chain as the cascade's Classifier.
type Adapter struct {
	chain *Chain
}

// NewAdapter wraps a chain for the intent cascade. Returns nil when
// the chain is disabled so the cascade skips the LLM layer entirely.
func NewAdapter(chain *Chain) *Adapter {
	if chain == nil {
		return nil
	}
	return &Adapter{chain: chain}
}

// Classify maps the cascade's request onto the provider API. The
// model's direct_reply intent becomes a ready llm_answer; every other
// name passes through unchanged, matching the cascade's vocabulary.
func (a *Adapter) Classify(ctx context.Context, req intent.ClassifyRequest) (*intent.ClassifyResult, error) {
	snap := &Snapshot{Slots: req.Slots}
	for _, line := range req.History {
		snap.History = append(snap.History, Turn{Text: line})
	}

	res, err := a.chain.Intent(ctx, req.Text, snap)
	if err != nil {
		return nil, err
	}

	out := &intent.ClassifyResult{Intent: res.Intent, Reply: res.Reply}
	if res.Intent == "direct_reply" {
		out.Intent = intent.IntentLLMAnswer
		if out.Reply == "" {
			// The model chose to answer but returned no text: generate
			// one instead of emitting an empty reply.
			answer, err := a.chain.Answer(ctx, req.Text, snap)
			if err != nil {
				return nil, err
			}
			out.Reply = answer
		}
	}
	if res.ProductCode != "" {
		out.Params = map[string]any{"product_code": res.ProductCode}
	}
	return out, nil
}

package genai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	apperrors "github.com/chaintara/shopchat-linebot-go/internal/errors"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
)

const defaultGeminiModel = "gemini-2.0-flash"

// geminiProvider implements Provider on the Gemini API.
type geminiProvider struct {
	client *genai.Client
	model  string
	tools  []*genai.Tool
	log    *logger.Logger
	mtr    *metrics.Metrics
}

// NewGeminiProvider creates a Gemini-backed provider. Returns nil when
// apiKey is empty (provider disabled).
func NewGeminiProvider(ctx context.Context, apiKey, model string, log *logger.Logger, mtr *metrics.Metrics) (Provider, error) {
	if apiKey == "" {
		return nil, nil
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiProvider{
		client: client,
		model:  model,
		tools:  buildGeminiTools(),
		log:    log.WithModule("genai.gemini"),
		mtr:    mtr,
	}, nil
}

func (p *geminiProvider) Name() string { return "gemini" }

func buildGeminiTools() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        classifyFunctionName,
			Description: "จำแนกข้อความลูกค้าเป็น intent เดียว",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"intent": {
						Type: genai.TypeString,
						Enum: intentNames,
					},
					"product_code": {
						Type:        genai.TypeString,
						Description: "รหัสสินค้า ถ้าลูกค้าระบุ",
					},
					"reply": {
						Type:        genai.TypeString,
						Description: "คำตอบสำหรับ direct_reply",
					},
				},
				Required: []string{"intent"},
			},
		}},
	}}
}

func (p *geminiProvider) Intent(ctx context.Context, text string, snap *Snapshot) (*IntentResult, error) {
	config := &genai.GenerateContentConfig{
		Tools:             p.tools,
		SystemInstruction: genai.NewContentFromText(classifyPrompt, genai.RoleUser),
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAny,
			},
		},
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 512,
	}

	start := time.Now()
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(buildUserPrompt(text, snap)), config)
	p.record("intent", err, time.Since(start))
	if err != nil {
		return nil, apperrors.NewProviderError(p.Name(), 0, err)
	}
	return p.parseFunctionCall(result)
}

func (p *geminiProvider) parseFunctionCall(result *genai.GenerateContentResponse) (*IntentResult, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from %s", p.model)
	}
	candidate := result.Candidates[0]
	if candidate.Content == nil {
		return nil, fmt.Errorf("no content in response from %s", p.model)
	}

	for _, part := range candidate.Content.Parts {
		fc := part.FunctionCall
		if fc == nil || fc.Name != classifyFunctionName {
			continue
		}
		out := &IntentResult{}
		if v, ok := fc.Args["intent"].(string); ok {
			out.Intent = v
		}
		if v, ok := fc.Args["product_code"].(string); ok {
			out.ProductCode = v
		}
		if v, ok := fc.Args["reply"].(string); ok {
			out.Reply = v
		}
		if !validIntent(out.Intent) {
			return nil, fmt.Errorf("model returned unknown intent %q", out.Intent)
		}
		return out, nil
	}
	return nil, fmt.Errorf("no function call in response from %s", p.model)
}

func (p *geminiProvider) Answer(ctx context.Context, text string, snap *Snapshot) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.6),
		MaxOutputTokens:   512,
	}

	start := time.Now()
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(buildUserPrompt(text, snap)), config)
	p.record("answer", err, time.Since(start))
	if err != nil {
		return "", apperrors.NewProviderError(p.Name(), 0, err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from %s", p.model)
	}

	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", fmt.Errorf("empty completion from %s", p.model)
	}
	return answer, nil
}

func (p *geminiProvider) record(op string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if p.mtr != nil {
		p.mtr.RecordLLMRequest(p.Name(), status, d.Seconds())
	}
	if err != nil {
		p.log.WithError(err).WithField("op", op).Warnf("gemini request failed")
	}
}

func (p *geminiProvider) Close() error { return nil }

package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	apperrors "github.com/chaintara/shopchat-linebot-go/internal/errors"
	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/metrics"
)

const defaultOpenAIModel = "gpt-4o-mini"

// openAIProvider implements Provider on the OpenAI chat completions
// API.
type openAIProvider struct {
	client openai.Client
	model  string
	tools  []openai.ChatCompletionToolUnionParam
	log    *logger.Logger
	mtr    *metrics.Metrics
}

// NewOpenAIProvider creates an OpenAI-backed provider. Returns nil
// when apiKey is empty (provider disabled).
func NewOpenAIProvider(apiKey, model string, log *logger.Logger, mtr *metrics.Metrics) Provider {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &openAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		tools:  buildOpenAITools(),
		log:    log.WithModule("genai.openai"),
		mtr:    mtr,
	}
}

func (p *openAIProvider) Name() string { return "openai" }

// buildOpenAITools declares the single classify function. JSON Schema
// types are lowercase per Draft 2020-12.
func buildOpenAITools() []openai.ChatCompletionToolUnionParam {
	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        classifyFunctionName,
			Description: openai.String("จำแนกข้อความลูกค้าเป็น intent เดียว"),
			Parameters: openai.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"intent": map[string]any{
						"type": "string",
						"enum": intentNames,
					},
					"product_code": map[string]any{
						"type":        "string",
						"description": "รหัสสินค้า ถ้าลูกค้าระบุ",
					},
					"reply": map[string]any{
						"type":        "string",
						"description": "คำตอบสำหรับ direct_reply",
					},
				},
				"required": []string{"intent"},
			},
		}),
	}
}

func (p *openAIProvider) Intent(ctx context.Context, text string, snap *Snapshot) (*IntentResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifyPrompt),
			openai.UserMessage(buildUserPrompt(text, snap)),
		},
		Tools: p.tools,
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoRequired)),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(512),
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	p.record("intent", err, time.Since(start))
	if err != nil {
		return nil, apperrors.NewProviderError(p.Name(), statusCode(err), err)
	}
	return p.parseToolCall(resp)
}

func (p *openAIProvider) parseToolCall(resp *openai.ChatCompletion) (*IntentResult, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s", p.model)
	}
	calls := resp.Choices[0].Message.ToolCalls
	if len(calls) == 0 {
		return nil, fmt.Errorf("no tool call in response from %s", p.model)
	}

	var args struct {
		Intent      string `json:"intent"`
		ProductCode string `json:"product_code"`
		Reply       string `json:"reply"`
	}
	if raw := calls[0].Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return nil, fmt.Errorf("failed to parse function arguments: %w", err)
		}
	}
	if !validIntent(args.Intent) {
		return nil, fmt.Errorf("model returned unknown intent %q", args.Intent)
	}
	return &IntentResult{Intent: args.Intent, ProductCode: args.ProductCode, Reply: args.Reply}, nil
}

func (p *openAIProvider) Answer(ctx context.Context, text string, snap *Snapshot) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(text, snap)),
		},
		Temperature: openai.Float(0.6),
		MaxTokens:   openai.Int(512),
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	p.record("answer", err, time.Since(start))
	if err != nil {
		return "", apperrors.NewProviderError(p.Name(), statusCode(err), err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion from %s", p.model)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openAIProvider) record(op string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	if p.mtr != nil {
		p.mtr.RecordLLMRequest(p.Name(), status, d.Seconds())
	}
	if err != nil {
		p.log.WithError(err).WithField("op", op).Warnf("openai request failed")
	}
}

// statusCode pulls the HTTP status out of an openai API error.
func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.StatusCode
	}
	return 0
}

func (p *openAIProvider) Close() error { return nil }

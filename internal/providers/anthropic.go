// Package providers implements the LLM client contract over real
// backends. The agent core consumes only the agent.Provider interface;
// everything Anthropic-specific stays here.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/pkg/models"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// DefaultModel is used when a request does not name a model.
	DefaultModel string

	// MaxTokens bounds responses. Default: 4096.
	MaxTokens int
}

// AnthropicProvider implements agent.Provider over the Anthropic API.
// Safe for concurrent use.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// NewAnthropic creates a provider.
func NewAnthropic(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Name implements agent.Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete implements agent.Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, &agent.ProviderError{Kind: agent.ErrKindOther, Message: err.Error(), Cause: err}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	return convertResponse(msg), nil
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudget))
	}

	for _, decl := range req.Tools {
		schema, err := inputSchema(decl.Schema)
		if err != nil {
			return params, fmt.Errorf("tool %s schema: %w", decl.Name, err)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        decl.Name,
				Description: anthropic.String(decl.Description),
				InputSchema: schema,
			},
		})
	}

	for _, m := range req.Messages {
		converted, err := convertMessage(m)
		if err != nil {
			return params, err
		}
		params.Messages = append(params.Messages, converted)
	}
	return params, nil
}

func convertMessage(m agent.ChatMessage) (anthropic.MessageParam, error) {
	switch m.Role {
	case agent.ChatRoleModel:
		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for i, tc := range m.ToolCalls {
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call-%d", i+1)
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(id, decodeArgs(tc.Args), tc.Name))
		}
		return anthropic.NewAssistantMessage(blocks...), nil

	case agent.ChatRoleUser, agent.ChatRoleSystem:
		var blocks []anthropic.ContentBlockParamUnion
		for _, tr := range m.ToolResponses {
			content := tr.Result.Output
			if !tr.Result.Success && tr.Result.Error != "" {
				content = tr.Result.Error + "\n" + content
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ID, content, !tr.Result.Success))
			for _, img := range tr.Result.Images {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIME, img.Data))
			}
		}
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, img := range m.Images {
			blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIME, img.Data))
		}
		if len(blocks) == 0 {
			blocks = append(blocks, anthropic.NewTextBlock(""))
		}
		return anthropic.NewUserMessage(blocks...), nil

	default:
		return anthropic.MessageParam{}, fmt.Errorf("unsupported chat role %q", m.Role)
	}
}

func convertResponse(msg *anthropic.Message) *agent.CompletionResponse {
	resp := &agent.CompletionResponse{
		FinishReason: string(msg.StopReason),
		Usage: &models.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}

	var text, thinking strings.Builder
	callIdx := 0
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ThinkingBlock:
			thinking.WriteString(v.Thinking)
		case anthropic.ToolUseBlock:
			callIdx++
			id := v.ID
			if id == "" {
				id = fmt.Sprintf("call-%d", callIdx)
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:   id,
				Name: v.Name,
				Args: json.RawMessage(v.Input),
			})
		}
	}
	resp.Text = text.String()
	resp.Thinking = thinking.String()
	return resp
}

// decodeArgs turns raw tool arguments into the dictionary the API
// requires for tool_use input.
func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{}
}

// inputSchema converts a full JSON schema into the API's input schema
// shape.
func inputSchema(schema json.RawMessage) (anthropic.ToolInputSchemaParam, error) {
	out := anthropic.ToolInputSchemaParam{}
	if len(schema) == 0 {
		return out, nil
	}
	var parsed struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return out, err
	}
	if len(parsed.Properties) > 0 {
		var props any
		if err := json.Unmarshal(parsed.Properties, &props); err != nil {
			return out, err
		}
		out.Properties = props
	}
	out.Required = parsed.Required
	return out, nil
}

// classifyError maps SDK failures onto the provider error taxonomy.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &agent.ProviderError{Kind: agent.ErrKindOther, Message: err.Error(), Cause: err}
	}

	pe := &agent.ProviderError{
		Kind:    agent.ClassifyStatus(apiErr.StatusCode),
		Status:  apiErr.StatusCode,
		Message: apiErr.Error(),
		Cause:   err,
	}
	if pe.Kind == agent.ErrKindRateLimited {
		pe.RetryAfter = retryAfter(apiErr)
	}
	return pe
}

func retryAfter(apiErr *anthropic.Error) time.Duration {
	if apiErr.Response == nil {
		return 0
	}
	raw := apiErr.Response.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

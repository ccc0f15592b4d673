package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/Wick-Lim/helper/pkg/models"
)

// Chat roles as the LLM contract defines them.
const (
	ChatRoleUser   = "user"
	ChatRoleModel  = "model"
	ChatRoleSystem = "system"
)

// ChatMessage is one turn of the conversation sent to the LLM.
type ChatMessage struct {
	Role          string                `json:"role"`
	Content       string                `json:"content,omitempty"`
	Images        []models.Image        `json:"images,omitempty"`
	ToolCalls     []models.ToolCall     `json:"tool_calls,omitempty"`
	ToolResponses []models.ToolResponse `json:"tool_responses,omitempty"`
}

// CompletionRequest is the request half of the LLM client contract.
type CompletionRequest struct {
	Model          string        `json:"model,omitempty"`
	SystemPrompt   string        `json:"system_prompt,omitempty"`
	Messages       []ChatMessage `json:"messages"`
	Tools          []Declaration `json:"tools,omitempty"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ThinkingBudget int           `json:"thinking_budget,omitempty"`
}

// CompletionResponse is the response half of the LLM client contract.
type CompletionResponse struct {
	Text         string            `json:"text,omitempty"`
	Thinking     string            `json:"thinking,omitempty"`
	ToolCalls    []models.ToolCall `json:"tool_calls,omitempty"`
	Usage        *models.Usage     `json:"usage,omitempty"`
	FinishReason string            `json:"finish_reason"`
}

// Provider is the LLM backend consumed by the loop and the consciousness
// driver. Implementations must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider for usage accounting.
	Name() string

	// Complete sends one request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// ProviderErrorKind classifies LLM client failures for retry handling.
type ProviderErrorKind string

const (
	// ErrKindAuth is an authentication failure. Fatal.
	ErrKindAuth ProviderErrorKind = "auth_failed"

	// ErrKindRateLimited is a 429; RetryAfter carries the advisory
	// delay. Retryable.
	ErrKindRateLimited ProviderErrorKind = "rate_limited"

	// ErrKindServer is a 5xx. Retryable.
	ErrKindServer ProviderErrorKind = "server_error"

	// ErrKindOther is any other failure. Fatal.
	ErrKindOther ProviderErrorKind = "other"
)

// ProviderError is a classified LLM client failure.
type ProviderError struct {
	Kind       ProviderErrorKind
	Status     int
	RetryAfter time.Duration
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("llm %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("llm %s (status %d): %v", e.Kind, e.Status, e.Cause)
	}
	return fmt.Sprintf("llm %s (status %d)", e.Kind, e.Status)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is worth retrying.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ErrKindRateLimited || e.Kind == ErrKindServer
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(status int) ProviderErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrKindAuth
	case status == 429:
		return ErrKindRateLimited
	case status >= 500:
		return ErrKindServer
	default:
		return ErrKindOther
	}
}

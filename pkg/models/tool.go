// Package models defines the wire and persistence types shared across the
// helper runtime: tool calls and results, persisted entities, and the agent
// event stream.
package models

import (
	"encoding/json"
	"time"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its result. Assigned by the provider,
	// or synthesized when the provider omits one.
	ID string `json:"id,omitempty"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Args is the raw JSON argument object.
	Args json.RawMessage `json:"args"`
}

// Image is an inline image payload produced by a tool (screenshots).
type Image struct {
	// MIME is the image media type, e.g. "image/jpeg".
	MIME string `json:"mime"`

	// Data is the base64-encoded payload.
	Data string `json:"data"`

	// ID addresses the stored copy of the image, when one exists.
	ID string `json:"id,omitempty"`
}

// FileRef describes a file a tool produced or wants delivered downstream.
type FileRef struct {
	Path string `json:"path"`
	MIME string `json:"mime,omitempty"`
}

// ToolResult is the uniform result shape every tool returns.
type ToolResult struct {
	// Success is false when the tool itself reports failure. The agent
	// loop treats a failed result as data for the model, not as an error.
	Success bool `json:"success"`

	// Output is the tool's textual output, possibly truncated by the
	// executor before it reaches the model.
	Output string `json:"output"`

	// Error holds the failure description when Success is false.
	Error string `json:"error,omitempty"`

	// ExecutionTimeMS is the wall-clock execution time in milliseconds.
	ExecutionTimeMS int64 `json:"execution_time_ms"`

	// Images holds inline images; results carrying images bypass output
	// truncation.
	Images []Image `json:"images,omitempty"`

	// Files lists files the tool wants surfaced to the caller.
	Files []FileRef `json:"files,omitempty"`
}

// HasImages reports whether the result carries at least one inline image.
func (r *ToolResult) HasImages() bool {
	return r != nil && len(r.Images) > 0
}

// ToolResponse pairs a tool call with its result, in issuance order.
type ToolResponse struct {
	ID     string     `json:"id,omitempty"`
	Name   string     `json:"name"`
	Result ToolResult `json:"result"`
}

// Usage reports token consumption for one LLM request.
type Usage struct {
	InputTokens    int64 `json:"input_tokens"`
	OutputTokens   int64 `json:"output_tokens"`
	ThinkingTokens int64 `json:"thinking_tokens,omitempty"`
}

// Total returns the combined token count.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.ThinkingTokens
}

// Timestamped is implemented by entities that carry a creation time.
type Timestamped interface {
	Timestamp() time.Time
}

// Package agent implements the core runtime: the tool registry and
// executor, the stuck detector, the context assembler, and the reason-act
// loop that drives an LLM through tool use while streaming events.
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Wick-Lim/helper/pkg/models"
	"github.com/invopop/jsonschema"
)

// Tool is one executable capability. Implementations must be safe for
// concurrent use; the browser tool serializes access to its shared page
// internally.
type Tool interface {
	// Name returns the registered tool name.
	Name() string

	// Description returns the one-line description shown to the model.
	Description() string

	// Schema returns the JSON schema of the tool's argument object.
	Schema() json.RawMessage

	// Execute runs the tool. A failure the model should see is returned
	// as a Result with Success=false and a nil error; a returned error
	// signals an execution fault the executor may retry.
	Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)
}

// Declaration is the wire form of a registered tool: what the LLM sees.
type Declaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// SchemaFor derives a JSON schema from a tool's argument struct. Tools
// declare their inputs as plain structs with json tags and jsonschema
// annotations.
func SchemaFor(v any) json.RawMessage {
	reflector := jsonschema.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// FailureResult builds a failed result from a format string.
func FailureResult(format string, args ...any) *models.ToolResult {
	return &models.ToolResult{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
	}
}

// SuccessResult builds a successful result carrying output text.
func SuccessResult(output string) *models.ToolResult {
	return &models.ToolResult{Success: true, Output: output}
}

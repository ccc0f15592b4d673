package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Wick-Lim/helper/pkg/models"
)

// fakeTool is a scriptable tool for registry and executor tests.
type fakeTool struct {
	name        string
	description string
	schema      json.RawMessage
	execute     func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return t.description }
func (t *fakeTool) Schema() json.RawMessage {
	if t.schema != nil {
		return t.schema
	}
	return json.RawMessage(`{"type":"object"}`)
}
func (t *fakeTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	return t.execute(ctx, args)
}

func okTool(name string) *fakeTool {
	return &fakeTool{
		name:        name,
		description: name + " tool",
		execute: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
			return SuccessResult("ok"), nil
		},
	}
}

func TestRegistryRegisterLastWins(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(okTool("shell"))
	r.Register(&fakeTool{
		name:        "shell",
		description: "replacement",
		execute: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
			return SuccessResult("v2"), nil
		},
	})

	tool, ok := r.Lookup("shell")
	if !ok || tool.Description() != "replacement" {
		t.Error("second registration should replace the first")
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	res, err := r.Execute(context.Background(), "ghost", nil)
	if err != nil {
		t.Fatalf("unknown tool must not error: %v", err)
	}
	if res.Success || res.Error != "tool not found: ghost" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRegistryExecuteCapturesTime(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(okTool("shell"))
	res, err := r.Execute(context.Background(), "shell", json.RawMessage(`{}`))
	if err != nil || !res.Success {
		t.Fatalf("execute failed: %v %+v", err, res)
	}
	if res.ExecutionTimeMS < 0 {
		t.Error("execution time not captured")
	}
}

func TestRegistryExecuteWrapsPanic(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{
		name:        "bomb",
		description: "panics",
		execute: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
			panic("kaboom")
		},
	})
	res, err := r.Execute(context.Background(), "bomb", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("panic must become a failure result, got error %v", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("expected failure result, got %+v", res)
	}
}

func TestRegistryExecutePropagatesToolError(t *testing.T) {
	boom := errors.New("transient")
	r := NewRegistry(nil)
	r.Register(&fakeTool{
		name:        "flaky",
		description: "errors",
		execute: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
			return nil, boom
		},
	})
	_, err := r.Execute(context.Background(), "flaky", json.RawMessage(`{}`))
	if !errors.Is(err, boom) {
		t.Errorf("tool error should propagate for retry, got %v", err)
	}
}

func TestRegistryValidatesArgs(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeTool{
		name:        "typed",
		description: "validated",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {"count": {"type": "integer"}},
			"required": ["count"]
		}`),
		execute: func(context.Context, json.RawMessage) (*models.ToolResult, error) {
			return SuccessResult("ran"), nil
		},
	})

	res, err := r.Execute(context.Background(), "typed", json.RawMessage(`{"count":"three"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("schema violation should fail before dispatch")
	}

	res, _ = r.Execute(context.Background(), "typed", json.RawMessage(`{"count":3}`))
	if !res.Success {
		t.Errorf("valid args should dispatch: %+v", res)
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(okTool("web"))
	r.Register(okTool("file"))
	r.Register(okTool("shell"))

	decls := r.List()
	if len(decls) != 3 {
		t.Fatalf("expected 3 declarations, got %d", len(decls))
	}
	if decls[0].Name != "file" || decls[1].Name != "shell" || decls[2].Name != "web" {
		t.Errorf("declarations not sorted: %v", decls)
	}
}

func TestSchemaFor(t *testing.T) {
	type input struct {
		Command string `json:"command" jsonschema:"description=Shell command to run"`
		Timeout int    `json:"timeout_seconds,omitempty"`
	}
	schema := SchemaFor(&input{})
	var obj map[string]any
	if err := json.Unmarshal(schema, &obj); err != nil {
		t.Fatalf("schema not valid JSON: %v", err)
	}
	if obj["type"] != "object" {
		t.Errorf("expected object schema, got %v", obj["type"])
	}
}

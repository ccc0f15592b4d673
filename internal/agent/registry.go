package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Wick-Lim/helper/pkg/models"
	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry manages available tools with thread-safe registration and
// lookup. Arguments are validated against each tool's schema at the
// boundary before dispatch.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsvalidate.Schema
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsvalidate.Schema),
		logger:  logger,
	}
}

// Register adds a tool by name. Registering the same name again replaces
// the previous tool. The tool's schema is compiled for argument
// validation; a schema that fails to compile disables validation for that
// tool but not registration.
func (r *Registry) Register(tool Tool) {
	name := tool.Name()

	compiled, err := compileSchema(name, tool.Schema())
	if err != nil {
		r.logger.Warn("tool schema failed to compile, argument validation disabled",
			"tool", name, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	if compiled != nil {
		r.schemas[name] = compiled
	} else {
		delete(r.schemas, name)
	}
}

func compileSchema(name string, schema json.RawMessage) (*jsvalidate.Schema, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	compiler := jsvalidate.NewCompiler()
	compiler.Draft = jsvalidate.Draft2020
	url := "tool://" + name + "/schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// Lookup returns a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the declarations of all registered tools, sorted by name.
func (r *Registry) List() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Declaration, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Declaration{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs a tool by name. Unknown tools and panics become failure
// results, never errors; a returned error is the tool's own execution
// fault and is retryable by the executor. Wall-clock time is captured on
// every path that ran the tool.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (result *models.ToolResult, err error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return FailureResult("tool not found: %s", name), nil
	}

	if schema != nil {
		if vErr := validateArgs(schema, args); vErr != nil {
			return FailureResult("invalid arguments for %s: %v", name, vErr), nil
		}
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			result = FailureResult("tool %s panicked: %v", name, rec)
			result.ExecutionTimeMS = time.Since(start).Milliseconds()
			err = nil
		}
	}()

	result, err = tool.Execute(ctx, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = FailureResult("tool %s returned no result", name)
	}
	result.ExecutionTimeMS = time.Since(start).Milliseconds()
	return result, nil
}

func validateArgs(schema *jsvalidate.Schema, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(args, &doc); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(doc)
}

// Package memorytool exposes the store's memory KV to the model.
package memorytool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/internal/store"
	"github.com/Wick-Lim/helper/pkg/models"
)

// Tool wraps the store's memory operations.
type Tool struct {
	store *store.Store
}

// New creates the memory tool.
func New(st *store.Store) *Tool {
	return &Tool{store: st}
}

func (t *Tool) Name() string { return "memory" }

func (t *Tool) Description() string {
	return "Persist and recall facts across sessions: set, get, search, or delete memories by key."
}

type input struct {
	Action     string `json:"action" jsonschema:"description=One of: set get search delete"`
	Key        string `json:"key,omitempty" jsonschema:"description=Memory key for set, get, delete"`
	Value      string `json:"value,omitempty" jsonschema:"description=Value for set"`
	Category   string `json:"category,omitempty" jsonschema:"description=Category for set"`
	Importance int    `json:"importance,omitempty" jsonschema:"description=Importance 1-10 for set"`
	Query      string `json:"query,omitempty" jsonschema:"description=Search query"`
}

func (t *Tool) Schema() json.RawMessage {
	return agent.SchemaFor(&input{})
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return agent.FailureResult("invalid arguments: %v", err), nil
	}

	switch strings.ToLower(strings.TrimSpace(in.Action)) {
	case "set":
		if in.Key == "" {
			return agent.FailureResult("key is required for set"), nil
		}
		importance := in.Importance
		if importance == 0 {
			importance = 5
		}
		if err := t.store.SetMemory(ctx, in.Key, in.Value, in.Category, importance); err != nil {
			return agent.FailureResult("set memory: %v", err), nil
		}
		return agent.SuccessResult("saved memory " + in.Key), nil

	case "get":
		if in.Key == "" {
			return agent.FailureResult("key is required for get"), nil
		}
		m, err := t.store.GetMemory(ctx, in.Key)
		if err != nil {
			return agent.FailureResult("get memory: %v", err), nil
		}
		if m == nil {
			return agent.FailureResult("no memory with key %q", in.Key), nil
		}
		return agent.SuccessResult(fmt.Sprintf("[%s] %s = %s", m.Category, m.Key, m.Value)), nil

	case "search":
		query := in.Query
		if query == "" {
			query = in.Key
		}
		if query == "" {
			return agent.FailureResult("query is required for search"), nil
		}
		hits, err := t.store.SearchMemory(ctx, query, 10)
		if err != nil {
			return agent.FailureResult("search memory: %v", err), nil
		}
		if len(hits) == 0 {
			return agent.SuccessResult("no memories matched"), nil
		}
		var sb strings.Builder
		for _, hit := range hits {
			fmt.Fprintf(&sb, "[%s] %s = %s (score %.2f)\n", hit.Memory.Category, hit.Memory.Key, hit.Memory.Value, hit.Score)
		}
		return agent.SuccessResult(sb.String()), nil

	case "delete":
		if in.Key == "" {
			return agent.FailureResult("key is required for delete"), nil
		}
		deleted, err := t.store.DeleteMemory(ctx, in.Key)
		if err != nil {
			return agent.FailureResult("delete memory: %v", err), nil
		}
		if !deleted {
			return agent.FailureResult("no memory with key %q", in.Key), nil
		}
		return agent.SuccessResult("deleted memory " + in.Key), nil

	default:
		return agent.FailureResult("unknown action %q, use set, get, search, or delete", in.Action), nil
	}
}

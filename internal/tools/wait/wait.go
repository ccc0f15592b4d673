// Package wait implements the wait tool: a bounded, cancellable sleep.
package wait

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Wick-Lim/helper/internal/agent"
	"github.com/Wick-Lim/helper/pkg/models"
)

// Seconds bounds for one wait.
const (
	MinSeconds = 1
	MaxSeconds = 60
)

// Tool sleeps for a bounded number of seconds.
type Tool struct{}

// New creates the wait tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "wait" }

func (t *Tool) Description() string {
	return "Wait between 1 and 60 seconds, for polling or letting slow operations settle."
}

type input struct {
	Seconds int `json:"seconds" jsonschema:"description=Seconds to wait (1-60)"`
}

func (t *Tool) Schema() json.RawMessage {
	return agent.SchemaFor(&input{})
}

func (t *Tool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return agent.FailureResult("invalid arguments: %v", err), nil
	}
	seconds := in.Seconds
	if seconds < MinSeconds {
		seconds = MinSeconds
	}
	if seconds > MaxSeconds {
		seconds = MaxSeconds
	}

	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return agent.FailureResult("wait cancelled"), nil
	case <-timer.C:
		return agent.SuccessResult(fmt.Sprintf("waited %d seconds", seconds)), nil
	}
}

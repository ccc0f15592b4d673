package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Wick-Lim/helper/internal/backoff"
	"github.com/Wick-Lim/helper/pkg/models"
)

// ExecutorConfig configures tool execution behavior.
type ExecutorConfig struct {
	// PerToolTimeout bounds each invocation. Default: 30s.
	PerToolTimeout time.Duration

	// TimeoutFor overrides PerToolTimeout per tool when set.
	TimeoutFor func(tool string) time.Duration

	// MaxAttempts is the total attempts per call on execution faults
	// (returned errors, not failure results). Default: 3 (two retries).
	MaxAttempts int

	// RetryPolicy spaces the retries. Default: 2s then 4s.
	RetryPolicy backoff.Policy

	// MaxOutputChars caps result output before it reaches the model;
	// results carrying images are never truncated. Default: 10000.
	MaxOutputChars func() int

	// HeartbeatInterval is how often Progress fires while a call is in
	// flight. Default: 5s.
	HeartbeatInterval time.Duration
}

// DefaultExecutorConfig returns the default execution configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PerToolTimeout:    30 * time.Second,
		MaxAttempts:       3,
		RetryPolicy:       backoff.Tool(),
		HeartbeatInterval: 5 * time.Second,
	}
}

// ProgressFunc receives heartbeat progress while a tool call is running.
type ProgressFunc func(tool string, elapsed time.Duration)

// Executor normalizes arguments, runs tool calls through the registry
// with retries on execution faults, emits heartbeat progress, and shapes
// results for the model.
type Executor struct {
	registry *Registry
	config   ExecutorConfig
	logger   *slog.Logger
}

// NewExecutor creates an executor over the registry.
func NewExecutor(registry *Registry, config ExecutorConfig, logger *slog.Logger) *Executor {
	defaults := DefaultExecutorConfig()
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = defaults.PerToolTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryPolicy == (backoff.Policy{}) {
		config.RetryPolicy = defaults.RetryPolicy
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, config: config, logger: logger}
}

// Execute runs the calls in issuance order and returns one response per
// call, in the same order. Progress may be nil.
func (e *Executor) Execute(ctx context.Context, calls []models.ToolCall, progress ProgressFunc) []models.ToolResponse {
	responses := make([]models.ToolResponse, 0, len(calls))
	for _, call := range calls {
		responses = append(responses, models.ToolResponse{
			ID:     call.ID,
			Name:   call.Name,
			Result: *e.executeOne(ctx, call, progress),
		})
	}
	return responses
}

func (e *Executor) executeOne(ctx context.Context, call models.ToolCall, progress ProgressFunc) *models.ToolResult {
	args, notes := Normalize(call.Name, call.Args)
	for _, note := range notes {
		e.logger.Info("normalized tool arguments", "note", note)
	}

	timeout := e.config.PerToolTimeout
	if e.config.TimeoutFor != nil {
		if t := e.config.TimeoutFor(call.Name); t > 0 {
			timeout = t
		}
	}

	stopHeartbeat := e.startHeartbeat(ctx, call.Name, progress)
	defer stopHeartbeat()

	result, err := backoff.Retry(ctx, e.config.RetryPolicy, e.config.MaxAttempts,
		func(attempt int) (*models.ToolResult, error) {
			if attempt > 1 {
				e.logger.Warn("retrying tool execution", "tool", call.Name, "attempt", attempt)
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return e.registry.Execute(callCtx, call.Name, args)
		})
	if err != nil {
		e.logger.Error("tool execution failed after retries", "tool", call.Name, "error", err)
		return FailureResult("tool %s failed: %v", call.Name, err)
	}

	return e.shape(result)
}

// startHeartbeat fires progress every HeartbeatInterval until the returned
// stop function is called.
func (e *Executor) startHeartbeat(ctx context.Context, tool string, progress ProgressFunc) func() {
	if progress == nil {
		return func() {}
	}
	done := make(chan struct{})
	start := time.Now()
	go func() {
		ticker := time.NewTicker(e.config.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				progress(tool, time.Since(start))
			}
		}
	}()
	return func() { close(done) }
}

// shape truncates result output to the configured cap. Results carrying
// images pass through untouched.
func (e *Executor) shape(result *models.ToolResult) *models.ToolResult {
	if result.HasImages() {
		return result
	}
	cap := 10000
	if e.config.MaxOutputChars != nil {
		if c := e.config.MaxOutputChars(); c > 0 {
			cap = c
		}
	}
	if len(result.Output) <= cap {
		return result
	}
	truncated := len(result.Output) - cap
	result.Output = result.Output[:cap] + fmt.Sprintf("… [truncated %d chars]", truncated)
	return result
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Wick-Lim/helper/internal/backoff"
	"github.com/Wick-Lim/helper/internal/ratelimit"
	"github.com/Wick-Lim/helper/internal/store"
	"github.com/Wick-Lim/helper/internal/usage"
	"github.com/Wick-Lim/helper/pkg/models"
)

const (
	// historyWindow is how many conversation rows are loaded per run.
	historyWindow = 40

	// storedResultLimit caps the final text persisted on the task row.
	storedResultLimit = 2000

	// maxLLMAttempts bounds retries of one LLM call on retryable
	// failures.
	maxLLMAttempts = 4

	eventBufferSize = 64
)

// LoopOptions configures one agent run.
type LoopOptions struct {
	// SessionID scopes conversation history and task rows.
	SessionID string

	// Images attach to the user turn for vision-capable models.
	Images []models.Image

	// MaxIterations overrides the configured iteration budget when > 0.
	MaxIterations int
}

// Loop is the reason-act driver: it turns a user message into an
// interleaved sequence of LLM calls and tool invocations, streaming
// events as it runs.
type Loop struct {
	provider Provider
	registry *Registry
	executor *Executor
	store    *store.Store
	contexts *ContextBuilder
	limiter  *ratelimit.Bucket
	usage    *usage.Tracker
	logger   *slog.Logger

	// shuttingDown reports global shutdown so runs can exit
	// cooperatively between steps.
	shuttingDown func() bool

	llmPolicy backoff.Policy
}

// LoopDeps carries the collaborators a Loop needs. Store, provider, and
// registry are required.
type LoopDeps struct {
	Provider     Provider
	Registry     *Registry
	Executor     *Executor
	Store        *store.Store
	Contexts     *ContextBuilder
	Limiter      *ratelimit.Bucket
	Usage        *usage.Tracker
	ShuttingDown func() bool
	Logger       *slog.Logger
}

// NewLoop creates a loop from its dependencies.
func NewLoop(deps LoopDeps) (*Loop, error) {
	if deps.Provider == nil {
		return nil, ErrNoProvider
	}
	if deps.Registry == nil || deps.Store == nil {
		return nil, errors.New("registry and store are required")
	}
	if deps.Executor == nil {
		deps.Executor = NewExecutor(deps.Registry, DefaultExecutorConfig(), deps.Logger)
	}
	if deps.Contexts == nil {
		deps.Contexts = NewContextBuilder(deps.Store, deps.Registry, "", deps.Logger)
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewBucket(ratelimit.DefaultConfig())
	}
	if deps.Usage == nil {
		deps.Usage = usage.NewTracker()
	}
	if deps.ShuttingDown == nil {
		deps.ShuttingDown = func() bool { return false }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Loop{
		provider:     deps.Provider,
		registry:     deps.Registry,
		executor:     deps.Executor,
		store:        deps.Store,
		contexts:     deps.Contexts,
		limiter:      deps.Limiter,
		usage:        deps.Usage,
		logger:       deps.Logger,
		shuttingDown: deps.ShuttingDown,
		llmPolicy:    backoff.Default(),
	}, nil
}

// Run starts one agent run and returns its event stream. The stream is
// totally ordered, every tool_call precedes its matching tool_result, and
// done or error is the final event before the channel closes. Cancelling
// ctx aborts the run between steps and records the task as failed.
func (l *Loop) Run(ctx context.Context, userMessage string, opts LoopOptions) <-chan models.Event {
	events := make(chan models.Event, eventBufferSize)
	go l.run(ctx, userMessage, opts, events)
	return events
}

// run is the producer. It owns the channel and closes it after the
// terminal event.
func (l *Loop) run(ctx context.Context, userMessage string, opts LoopOptions, events chan<- models.Event) {
	defer close(events)

	emit := func(ev models.Event) bool {
		// Buffered sends must win over a cancelled context so terminal
		// events still reach a draining consumer.
		select {
		case events <- ev:
			return true
		default:
		}
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	task, err := l.store.CreateTask(ctx, opts.SessionID, userMessage)
	if err != nil {
		emit(models.TextEvent(models.EventError, fmt.Sprintf("failed to create task: %v", err)))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("agent run panicked: %v", rec)
			l.logger.Error("agent run panicked", "task_id", task.ID, "panic", rec)
			l.finishTask(task.ID, models.TaskFailed, msg)
			emit(models.TextEvent(models.EventError, msg))
		}
	}()

	systemPrompt := l.contexts.Build(ctx, userMessage, opts.SessionID)

	messages, err := l.loadHistory(ctx, opts.SessionID)
	if err != nil {
		l.finishTask(task.ID, models.TaskFailed, err.Error())
		emit(models.TextEvent(models.EventError, err.Error()))
		return
	}
	messages = append(messages, ChatMessage{
		Role:    ChatRoleUser,
		Content: userMessage,
		Images:  opts.Images,
	})

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations, _ = l.store.ConfigInt(ctx, "max_iterations")
	}
	detector := NewStuckDetector(maxIterations)

	temperature, _ := l.store.ConfigFloat(ctx, "temperature")
	thinkingBudget, _ := l.store.ConfigInt(ctx, "thinking_budget")
	model, _ := l.store.GetConfig(ctx, "model")

	for {
		if stopped := l.checkStopped(ctx, task.ID, emit); stopped {
			return
		}

		if err := l.store.IncrementTaskIterations(ctx, task.ID); err != nil {
			l.logger.Warn("failed to increment task iterations", "task_id", task.ID, "error", err)
		}

		resp, err := l.complete(ctx, &CompletionRequest{
			Model:          model,
			SystemPrompt:   systemPrompt,
			Messages:       messages,
			Tools:          l.registry.List(),
			Temperature:    temperature,
			ThinkingBudget: thinkingBudget,
		})
		if err != nil {
			l.finishTask(task.ID, models.TaskFailed, err.Error())
			emit(models.TextEvent(models.EventError, err.Error()))
			return
		}

		if resp.Thinking != "" {
			if !emit(models.TextEvent(models.EventThinking, resp.Thinking)) {
				l.finishTask(task.ID, models.TaskFailed, "cancelled")
				return
			}
		}
		if resp.Text != "" {
			if !emit(models.TextEvent(models.EventText, resp.Text)) {
				l.finishTask(task.ID, models.TaskFailed, "cancelled")
				return
			}
		}

		if len(resp.ToolCalls) == 0 {
			l.finishTask(task.ID, models.TaskCompleted, truncate(resp.Text, storedResultLimit))
			l.persistTurn(ctx, opts.SessionID, userMessage, resp.Text)
			emit(models.TextEvent(models.EventDone, resp.Text))
			return
		}

		messages = append(messages, ChatMessage{
			Role:      ChatRoleModel,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			if !emit(models.ToolCallEvent(tc.Name, tc.Args)) {
				l.finishTask(task.ID, models.TaskFailed, "cancelled")
				return
			}
			detector.Record(tc.Name, string(tc.Args))
		}

		responses := l.executor.Execute(ctx, resp.ToolCalls, func(tool string, elapsed time.Duration) {
			// Heartbeats are liveness only; never block the executor on
			// a slow consumer.
			hb := models.TextEvent(models.EventHeartbeat,
				fmt.Sprintf("%s running for %s", tool, elapsed.Round(time.Second)))
			select {
			case events <- hb:
			default:
			}
		})

		for _, tr := range responses {
			result := tr.Result
			if !emit(models.ToolResultEvent(tr.Name, &result)) {
				l.finishTask(task.ID, models.TaskFailed, "cancelled")
				return
			}
			l.logToolCall(ctx, task.ID, tr, resp.ToolCalls)
		}

		messages = append(messages, ChatMessage{
			Role:          ChatRoleUser,
			ToolResponses: responses,
		})

		verdict := detector.Check()
		if verdict.ShouldTerminate {
			l.finishTask(task.ID, models.TaskStuck, verdict.Message)
			emit(models.TextEvent(models.EventStuckWarning, verdict.Message))
			emit(models.TextEvent(models.EventError, ErrStuck.Error()+": "+verdict.Message))
			return
		}
		if verdict.IsStuck {
			if !emit(models.TextEvent(models.EventStuckWarning, verdict.Message)) {
				l.finishTask(task.ID, models.TaskFailed, "cancelled")
				return
			}
			messages = append(messages, ChatMessage{
				Role:    ChatRoleUser,
				Content: "System warning: " + verdict.Message,
			})
		}

		if stopped := l.checkStopped(ctx, task.ID, emit); stopped {
			return
		}
	}
}

// checkStopped handles cancellation and global shutdown between steps.
func (l *Loop) checkStopped(ctx context.Context, taskID string, emit func(models.Event) bool) bool {
	var reason string
	switch {
	case ctx.Err() != nil:
		reason = "cancelled"
	case l.shuttingDown():
		reason = ErrShutdown.Error()
	default:
		return false
	}
	l.finishTask(taskID, models.TaskFailed, reason)
	emit(models.TextEvent(models.EventDone, "stopped: "+reason))
	return true
}

// complete gates one LLM call on the token bucket and retries retryable
// provider failures with capped exponential backoff, honoring 429
// advisory delays.
func (l *Loop) complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := l.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxLLMAttempts; attempt++ {
		resp, err := l.provider.Complete(ctx, req)
		if err == nil {
			var tokens int64
			if resp.Usage != nil {
				tokens = resp.Usage.Total()
			}
			l.usage.RecordRequest(l.provider.Name(), tokens)
			return resp, nil
		}

		l.usage.RecordError(l.provider.Name())
		lastErr = err

		var pe *ProviderError
		retryable := errors.As(err, &pe) && pe.Retryable()
		if !retryable || attempt == maxLLMAttempts {
			return nil, err
		}

		wait := backoff.Compute(l.llmPolicy, attempt)
		if pe.Kind == ErrKindRateLimited && pe.RetryAfter > wait {
			wait = pe.RetryAfter
		}
		l.logger.Warn("llm request failed, retrying",
			"attempt", attempt, "kind", pe.Kind, "wait", wait)
		if err := backoff.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (l *Loop) loadHistory(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := l.store.ConversationHistory(ctx, sessionID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}
	messages := make([]ChatMessage, 0, len(rows)+1)
	for _, row := range rows {
		role := ChatRoleUser
		if row.Role == models.RoleModel {
			role = ChatRoleModel
		}
		messages = append(messages, ChatMessage{Role: role, Content: row.Content})
	}
	return messages, nil
}

func (l *Loop) persistTurn(ctx context.Context, sessionID, userMessage, finalText string) {
	if err := l.store.AppendConversation(ctx, sessionID, models.RoleUser, userMessage); err != nil {
		l.logger.Warn("failed to persist user turn", "error", err)
	}
	if err := l.store.AppendConversation(ctx, sessionID, models.RoleModel, finalText); err != nil {
		l.logger.Warn("failed to persist model turn", "error", err)
	}
}

func (l *Loop) logToolCall(ctx context.Context, taskID string, tr models.ToolResponse, calls []models.ToolCall) {
	input := "{}"
	for _, tc := range calls {
		if tc.ID == tr.ID && tc.Name == tr.Name {
			input = string(tc.Args)
			break
		}
	}
	result := tr.Result
	if err := l.store.LogToolCall(ctx, taskID, tr.Name, input, &result); err != nil {
		l.logger.Warn("failed to log tool call", "tool", tr.Name, "error", err)
	}
}

// finishTask records a terminal status, tolerating the terminal-once
// invariant when a concurrent path won.
func (l *Loop) finishTask(taskID string, status models.TaskStatus, result string) {
	ctx := context.Background()
	if err := l.store.FinishTask(ctx, taskID, status, result); err != nil && !errors.Is(err, store.ErrTaskTerminal) {
		l.logger.Warn("failed to finish task", "task_id", taskID, "status", status, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

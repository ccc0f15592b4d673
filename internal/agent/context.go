package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Wick-Lim/helper/internal/store"
)

// defaultPreamble describes the agent and its operating principles. It
// opens every system prompt.
const defaultPreamble = `You are helper, a self-directed agent that accomplishes tasks with tools.

Core principles:
- Act, don't speculate: use tools to observe real state before concluding.
- Prefer small verifiable steps over large unverifiable ones.
- When a tool fails, read the error and change approach instead of repeating.
- Save durable findings to memory; files you create are your deliverables.`

const (
	relevantMemoryLimit = 5
	taskHistoryLimit    = 5
	backgroundTaskLimit = 3
	resultPrefixLen     = 100
)

// ContextBuilder assembles the system prompt for one run from the tool
// declarations, relevant memories, and recent task history. It only
// reads; it never writes.
type ContextBuilder struct {
	store              *store.Store
	registry           *Registry
	autonomousSession  string
	preamble           string
	logger             *slog.Logger
}

// NewContextBuilder creates a builder. autonomousSession is the reserved
// session id the consciousness driver runs under; its activity appears as
// background context in every other session's prompt.
func NewContextBuilder(st *store.Store, registry *Registry, autonomousSession string, logger *slog.Logger) *ContextBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextBuilder{
		store:             st,
		registry:          registry,
		autonomousSession: autonomousSession,
		preamble:          defaultPreamble,
		logger:            logger,
	}
}

// SetPreamble overrides the fixed preamble.
func (b *ContextBuilder) SetPreamble(preamble string) {
	if strings.TrimSpace(preamble) != "" {
		b.preamble = preamble
	}
}

// Build composes the system prompt for userMessage in sessionID.
func (b *ContextBuilder) Build(ctx context.Context, userMessage, sessionID string) string {
	var sb strings.Builder
	sb.WriteString(b.preamble)

	sb.WriteString("\n\nAvailable tools:\n")
	for _, decl := range b.registry.List() {
		fmt.Fprintf(&sb, "- %s: %s\n", decl.Name, decl.Description)
	}

	if block := b.memoriesBlock(ctx, userMessage); block != "" {
		sb.WriteString(block)
	}
	if block := b.taskHistoryBlock(ctx, sessionID); block != "" {
		sb.WriteString(block)
	}
	if sessionID != b.autonomousSession {
		if block := b.backgroundBlock(ctx); block != "" {
			sb.WriteString(block)
		}
	}

	return sb.String()
}

func (b *ContextBuilder) memoriesBlock(ctx context.Context, userMessage string) string {
	hits, err := b.store.SearchMemory(ctx, userMessage, relevantMemoryLimit)
	if err != nil {
		b.logger.Warn("memory search failed while building context", "error", err)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nRelevant Memories:\n")
	for _, hit := range hits {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", hit.Memory.Category, hit.Memory.Key, hit.Memory.Value)
	}
	return sb.String()
}

func (b *ContextBuilder) taskHistoryBlock(ctx context.Context, sessionID string) string {
	tasks, err := b.store.RecentTasks(ctx, sessionID, taskHistoryLimit)
	if err != nil {
		b.logger.Warn("task history lookup failed while building context", "error", err)
		return ""
	}
	if len(tasks) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nRecent Task History:\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", t.Status, t.Description, prefix(t.Result, resultPrefixLen))
	}
	return sb.String()
}

func (b *ContextBuilder) backgroundBlock(ctx context.Context) string {
	if b.autonomousSession == "" {
		return ""
	}
	tasks, err := b.store.RecentTasks(ctx, b.autonomousSession, backgroundTaskLimit)
	if err != nil || len(tasks) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\nBackground Activity (autonomous):\n")
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- [%s] %s\n", t.Status, t.Description)
	}
	return sb.String()
}

func prefix(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

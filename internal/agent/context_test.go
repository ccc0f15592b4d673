package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/Wick-Lim/helper/internal/store"
	"github.com/Wick-Lim/helper/pkg/models"
)

func builderFixture(t *testing.T) (*ContextBuilder, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: ":memory:", Dimension: 4})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	registry := NewRegistry(nil)
	registry.Register(okTool("shell"))
	registry.Register(okTool("file"))

	return NewContextBuilder(st, registry, "autonomous", nil), st
}

func TestBuildIncludesPreambleAndTools(t *testing.T) {
	b, _ := builderFixture(t)
	prompt := b.Build(context.Background(), "hello", "s1")

	if !strings.Contains(prompt, "You are helper") {
		t.Error("preamble missing")
	}
	for _, tool := range []string{"- shell:", "- file:"} {
		if !strings.Contains(prompt, tool) {
			t.Errorf("tool enumeration missing %q", tool)
		}
	}
}

func TestBuildRelevantMemories(t *testing.T) {
	b, st := builderFixture(t)
	ctx := context.Background()
	st.SetMemory(ctx, "favorite-color", "the user prefers blue", "preferences", 7)

	prompt := b.Build(ctx, "what is my favorite color", "s1")
	if !strings.Contains(prompt, "Relevant Memories") || !strings.Contains(prompt, "favorite-color") {
		t.Error("matching memory should appear in the prompt")
	}

	prompt = b.Build(ctx, "unrelated quantum physics", "s1")
	if strings.Contains(prompt, "favorite-color") {
		t.Error("unmatched memory should not appear")
	}
}

func TestBuildTaskHistory(t *testing.T) {
	b, st := builderFixture(t)
	ctx := context.Background()

	task, _ := st.CreateTask(ctx, "s1", "earlier work")
	st.FinishTask(ctx, task.ID, models.TaskCompleted, "it went fine")

	prompt := b.Build(ctx, "hello", "s1")
	if !strings.Contains(prompt, "Recent Task History") || !strings.Contains(prompt, "earlier work") {
		t.Error("task history block missing")
	}
	if !strings.Contains(prompt, "[completed]") {
		t.Error("task status missing from history line")
	}
}

func TestBuildBackgroundActivity(t *testing.T) {
	b, st := builderFixture(t)
	ctx := context.Background()
	st.CreateTask(ctx, "autonomous", "self-directed research")

	// A user session sees the autonomous activity.
	prompt := b.Build(ctx, "hello", "s1")
	if !strings.Contains(prompt, "Background Activity") {
		t.Error("background block missing for user session")
	}

	// The autonomous session itself does not.
	prompt = b.Build(ctx, "hello", "autonomous")
	if strings.Contains(prompt, "Background Activity") {
		t.Error("autonomous session must not see its own background block")
	}
}

func TestBuildIsReadOnly(t *testing.T) {
	b, st := builderFixture(t)
	ctx := context.Background()
	st.SetMemory(ctx, "m", "value", "", 5)

	before, _ := st.GetMemory(ctx, "m")
	b.Build(ctx, "value", "s1")
	after, _ := st.GetMemory(ctx, "m")

	// GetMemory itself bumps the counter once per call; Build must not.
	if after.AccessCount != before.AccessCount+1 {
		t.Errorf("assembler must not mutate state: before=%d after=%d",
			before.AccessCount, after.AccessCount)
	}
}

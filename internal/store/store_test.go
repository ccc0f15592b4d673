package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Wick-Lim/helper/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{
		Path:         ":memory:",
		VectorPath:   ":memory:",
		Dimension:    4,
		MemoryCap:    5,
		KnowledgeCap: 3,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryUpsertAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SetMemory(ctx, "greeting", "hello world", "chat", 7); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetMemory(ctx, "greeting", "hello again", "chat", 8); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	m, err := s.GetMemory(ctx, "greeting")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Value != "hello again" || m.Importance != 8 {
		t.Errorf("unexpected memory: %+v", m)
	}
	if m.AccessCount != 1 {
		t.Errorf("access count not incremented: %d", m.AccessCount)
	}

	m2, _ := s.GetMemory(ctx, "greeting")
	if m2.AccessCount != 2 {
		t.Errorf("access count should be 2, got %d", m2.AccessCount)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	s := testStore(t)
	m, err := s.GetMemory(context.Background(), "nope")
	if err != nil || m != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", m, err)
	}
}

func TestMemoryImportanceClamped(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.SetMemory(ctx, "a", "v", "", 99)
	m, _ := s.GetMemory(ctx, "a")
	if m.Importance != 10 {
		t.Errorf("importance not clamped: %d", m.Importance)
	}
}

func TestMemorySearchScoringAndDeterminism(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SetMemory(ctx, "uuid-result", "the latest uuid value", "results", 5)
	s.SetMemory(ctx, "other", "nothing relevant here", "misc", 9)
	s.SetMemory(ctx, "latest-uuid", "cached uuid", "results", 5)

	first, err := s.SearchMemory(ctx, "latest uuid", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(first))
	}
	for _, hit := range first {
		if hit.Memory.Key == "other" {
			t.Error("unmatched row should not appear")
		}
	}

	second, _ := s.SearchMemory(ctx, "latest uuid", 10)
	for i := range first {
		if first[i].Memory.Key != second[i].Memory.Key {
			t.Error("search order not deterministic")
		}
	}
}

func TestMemoryPruneOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Cap is 5; insert 7. The two with lowest importance go first.
	for i, imp := range []int{9, 1, 8, 2, 7, 6, 5} {
		key := string(rune('a' + i))
		if err := s.SetMemory(ctx, key, "v", "", imp); err != nil {
			t.Fatal(err)
		}
	}
	removed, err := s.PruneMemories(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if m, _ := s.GetMemory(ctx, "b"); m != nil {
		t.Error("lowest-importance memory should be pruned")
	}
	if m, _ := s.GetMemory(ctx, "a"); m == nil {
		t.Error("high-importance memory should survive")
	}
}

func TestTaskLifecycleTerminalOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, "sess-1", "do something")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != models.TaskRunning {
		t.Errorf("new task should be running, got %s", task.Status)
	}

	for i := 0; i < 3; i++ {
		if err := s.IncrementTaskIterations(ctx, task.ID); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.FinishTask(ctx, task.ID, models.TaskCompleted, "done"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	err = s.FinishTask(ctx, task.ID, models.TaskFailed, "late failure")
	if !errors.Is(err, ErrTaskTerminal) {
		t.Errorf("second terminal write should fail, got %v", err)
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.Status != models.TaskCompleted || got.Result != "done" || got.Iterations != 3 {
		t.Errorf("unexpected final task: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestFinishTaskRejectsNonTerminal(t *testing.T) {
	s := testStore(t)
	task, _ := s.CreateTask(context.Background(), "sess", "x")
	if err := s.FinishTask(context.Background(), task.ID, models.TaskRunning, ""); err == nil {
		t.Error("running is not a terminal status")
	}
}

func TestToolCallLogRequiresTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	err := s.LogToolCall(ctx, "missing-task", "shell", `{}`, &models.ToolResult{Success: true})
	if err == nil {
		t.Error("tool call without parent task should violate the foreign key")
	}

	task, _ := s.CreateTask(ctx, "sess", "x")
	if err := s.LogToolCall(ctx, task.ID, "shell", `{"command":"ls"}`, &models.ToolResult{
		Success: true, Output: "ok", ExecutionTimeMS: 12,
	}); err != nil {
		t.Fatalf("log: %v", err)
	}

	calls, err := s.ToolCallsForTask(ctx, task.ID)
	if err != nil || len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d (%v)", len(calls), err)
	}
	if calls[0].ToolName != "shell" || !calls[0].Success {
		t.Errorf("unexpected call row: %+v", calls[0])
	}
}

func TestToolCallImagePlaceholder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, "sess", "x")

	res := &models.ToolResult{
		Success: true,
		Output:  "screenshot taken",
		Images:  []models.Image{{MIME: "image/jpeg", Data: "abcd"}},
	}
	s.LogToolCall(ctx, task.ID, "browser", `{}`, res)

	calls, _ := s.ToolCallsForTask(ctx, task.ID)
	if calls[0].Output != imagePlaceholder {
		t.Errorf("image output should be replaced, got %q", calls[0].Output)
	}
}

func TestConversationHistoryAndPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleModel
		}
		if err := s.AppendConversation(ctx, "sess", role, string(rune('0'+i))); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := s.ConversationHistory(ctx, "sess", 0)
	if err != nil || len(hist) != 6 {
		t.Fatalf("expected 6 rows, got %d (%v)", len(hist), err)
	}
	if hist[0].Content != "0" || hist[5].Content != "5" {
		t.Error("history not in creation order")
	}

	last2, _ := s.ConversationHistory(ctx, "sess", 2)
	if len(last2) != 2 || last2[0].Content != "4" {
		t.Errorf("lastN window wrong: %+v", last2)
	}

	removed, err := s.PruneConversation(ctx, "sess", 3)
	if err != nil || removed != 3 {
		t.Fatalf("prune removed %d (%v)", removed, err)
	}
	hist, _ = s.ConversationHistory(ctx, "sess", 0)
	if len(hist) != 3 || hist[0].Content != "3" {
		t.Errorf("prune kept wrong rows: %+v", hist)
	}
}

func TestConversationInvalidRole(t *testing.T) {
	s := testStore(t)
	if err := s.AppendConversation(context.Background(), "s", "system", "x"); err == nil {
		t.Error("invalid role should be rejected")
	}
}

func TestConfigValidation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SetConfig(ctx, "temperature", "0.1"); err != nil {
		t.Errorf("valid temperature rejected: %v", err)
	}
	if got, _ := s.GetConfig(ctx, "temperature"); got != "0.1" {
		t.Errorf("get after set = %q", got)
	}

	if err := s.SetConfig(ctx, "temperature", "2.5"); err == nil {
		t.Error("out-of-range temperature accepted")
	}
	if err := s.SetConfig(ctx, "max_iterations", "0"); err == nil {
		t.Error("max_iterations 0 accepted")
	}
	if err := s.DeleteConfig(ctx, "max_iterations"); err == nil {
		t.Error("protected key deleted")
	}
	if err := s.DeleteConfig(ctx, "tool_timeout_ms"); err == nil {
		t.Error("protected key deleted")
	}

	if err := s.SetConfig(ctx, "verbose", "yes"); err == nil {
		t.Error("non-literal boolean accepted")
	}
	if err := s.SetConfig(ctx, "model", "claude-sonnet-4-20250514"); err != nil {
		t.Errorf("known model rejected: %v", err)
	}
	if err := s.SetConfig(ctx, "model", "totally-made-up"); err == nil {
		t.Error("unknown model accepted")
	}
	if err := s.SetConfig(ctx, "no_such_key", "1"); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestConfigDefaultsAndCoercion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if got, _ := s.GetConfig(ctx, "max_iterations"); got != "100" {
		t.Errorf("default max_iterations = %q", got)
	}

	// Bypass SetConfig validation to simulate a corrupted row.
	s.exec(ctx, "INSERT INTO config (key, value) VALUES ('max_iterations', '5000')")
	if got, _ := s.GetConfig(ctx, "max_iterations"); got != "1000" {
		t.Errorf("out-of-range value should clamp to nearest bound, got %q", got)
	}

	s.exec(ctx, "UPDATE config SET value = 'garbage' WHERE key = 'max_iterations'")
	if got, _ := s.GetConfig(ctx, "max_iterations"); got != "100" {
		t.Errorf("unparseable value should fall back to default, got %q", got)
	}

	// Deletable key restores its default.
	s.SetConfig(ctx, "verbose", "true")
	s.DeleteConfig(ctx, "verbose")
	if got, _ := s.GetConfig(ctx, "verbose"); got != "false" {
		t.Errorf("delete should restore default, got %q", got)
	}
}

func TestKnowledgeVectorSearchAndCascade(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.SaveKnowledge(ctx, "alpha fact", "", "test", 5, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	s.SaveKnowledge(ctx, "beta fact", "", "test", 5, []float32{0, 1, 0, 0})
	s.SaveKnowledge(ctx, "gamma fact", "", "test", 5, []float32{0.9, 0.1, 0, 0})

	matches, err := s.SearchKnowledge(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Knowledge.Content != "alpha fact" {
		t.Errorf("nearest should be alpha, got %q", matches[0].Knowledge.Content)
	}
	if matches[0].Distance > matches[1].Distance {
		t.Error("matches not ordered by distance")
	}

	// Deleting knowledge removes the vector with it.
	if err := s.DeleteKnowledge(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	matches, _ = s.SearchKnowledge(ctx, []float32{1, 0, 0, 0}, 5)
	for _, m := range matches {
		if m.Knowledge.ID == a.ID {
			t.Error("deleted knowledge still returned by vector search")
		}
	}
}

func TestKnowledgeSearchWithoutIndex(t *testing.T) {
	s, err := Open(Config{Path: ":memory:", VectorPath: "", Dimension: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	matches, err := s.SearchKnowledge(context.Background(), []float32{1, 0, 0, 0}, 5)
	if err != nil || matches != nil {
		t.Errorf("absent index should return empty, got (%v, %v)", matches, err)
	}
}

func TestKnowledgePruneCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Cap is 3; insert 5 with varying importance.
	for i, imp := range []int{1, 9, 2, 8, 7} {
		vec := []float32{float32(i + 1), 1, 0, 0}
		if _, err := s.SaveKnowledge(ctx, string(rune('a'+i)), "", "t", imp, vec); err != nil {
			t.Fatal(err)
		}
	}
	removed, err := s.PruneKnowledge(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("prune removed %d (%v)", removed, err)
	}
	if n, _ := s.CountKnowledge(ctx); n != 3 {
		t.Errorf("expected 3 remaining, got %d", n)
	}

	var vecCount int
	s.vec.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_vectors").Scan(&vecCount)
	if vecCount != 3 {
		t.Errorf("vectors not cascaded, %d remain", vecCount)
	}
}

func TestSurvivalLedgerBalance(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.AppendLedger(ctx, 1.0, "deliverable")
	s.AppendLedger(ctx, -0.25, "spend")
	s.AppendLedger(ctx, 0.5, "partial work")

	balance, err := s.Balance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if balance < 1.249 || balance > 1.251 {
		t.Errorf("balance = %v, want 1.25", balance)
	}
}

func TestApplyHourlyDebt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// First call on an empty ledger opens the clock without charging.
	charged, err := s.ApplyHourlyDebt(ctx, time.Now())
	if err != nil || charged != 0 {
		t.Fatalf("first apply should charge 0, got %v (%v)", charged, err)
	}

	// Within the hour: nothing.
	charged, _ = s.ApplyHourlyDebt(ctx, time.Now())
	if charged != 0 {
		t.Errorf("sub-hour apply should charge 0, got %v", charged)
	}

	// Two hours later: ~2 * HourlyDebt.
	charged, _ = s.ApplyHourlyDebt(ctx, time.Now().Add(2*time.Hour))
	want := 2 * HourlyDebt
	if charged < want*0.99 || charged > want*1.01 {
		t.Errorf("charge = %v, want ~%v", charged, want)
	}

	balance, _ := s.Balance(ctx)
	if balance > -want*0.99 {
		t.Errorf("balance should reflect the debt, got %v", balance)
	}
}

func TestTimelineUnion(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SaveThought(ctx, "thinking about things", "", "reflection")
	s.SaveKnowledge(ctx, "learned a fact", "", "web", 5, nil)
	s.CreateTask(ctx, "sess", "run a task")

	entries, err := s.Timeline(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	types := map[models.TimelineType]bool{}
	for _, e := range entries {
		types[e.Type] = true
	}
	for _, want := range []models.TimelineType{models.TimelineThought, models.TimelineKnowledge, models.TimelineTask} {
		if !types[want] {
			t.Errorf("timeline missing type %s", want)
		}
	}

	for i := 1; i < len(entries); i++ {
		if entries[i-1].When.Before(entries[i].When) {
			t.Error("timeline not ordered newest first")
		}
	}
}

func TestThoughtRetention(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SaveThought(ctx, "fresh", "", "")
	// Insert an old thought directly.
	old := time.Now().UTC().Add(-8 * 24 * time.Hour)
	s.exec(ctx, "INSERT INTO thoughts (id, content, created_at) VALUES ('old-id', 'stale', ?)", old)

	removed, err := s.PruneThoughts(ctx, DefaultThoughtRetention)
	if err != nil || removed != 1 {
		t.Fatalf("prune removed %d (%v)", removed, err)
	}
	remaining, _ := s.RecentThoughts(ctx, 10)
	if len(remaining) != 1 || remaining[0].Content != "fresh" {
		t.Errorf("wrong thoughts remain: %+v", remaining)
	}
}

func TestWithTransactionRollback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO thoughts (id, content) VALUES ('t1', 'x')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := s.CountThoughts(ctx); n != 0 {
		t.Errorf("rollback did not undo insert, count=%d", n)
	}
}

func TestClosedStoreRejectsWrites(t *testing.T) {
	s := testStore(t)
	s.Close()
	if err := s.SetMemory(context.Background(), "k", "v", "", 5); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

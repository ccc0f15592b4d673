package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"regexp"
	"time"

	"github.com/Wick-Lim/helper/internal/events"
	"github.com/Wick-Lim/helper/pkg/models"
	"github.com/google/uuid"
)

// ErrTaskTerminal is returned when changing the status of a task that has
// already reached a terminal state.
var ErrTaskTerminal = fmt.Errorf("task status is terminal")

// CreateTask inserts a running task row and returns it.
func (s *Store) CreateTask(ctx context.Context, sessionID, description string) (*models.Task, error) {
	task := &models.Task{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Description: description,
		Status:      models.TaskRunning,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.exec(ctx, `
		INSERT INTO tasks (id, session_id, description, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, task.ID, task.SessionID, task.Description, task.Status, task.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.publish(events.StreamTasks, "task_created", task)
	s.publish(events.StreamTimeline, "task_created", taskTimelineEntry(task))
	return task, nil
}

// GetTask returns the task by id, or nil when absent.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, description, status, result, iterations, created_at, completed_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

// IncrementTaskIterations bumps the task's iteration counter by one.
func (s *Store) IncrementTaskIterations(ctx context.Context, id string) error {
	_, err := s.exec(ctx, "UPDATE tasks SET iterations = iterations + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("increment iterations: %w", err)
	}
	return nil
}

// FinishTask sets a terminal status exactly once. A second terminal write
// returns ErrTaskTerminal; the first write wins.
func (s *Store) FinishTask(ctx context.Context, id string, status models.TaskStatus, result string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish task: %q is not a terminal status", status)
	}

	res, err := s.exec(ctx, `
		UPDATE tasks SET status = ?, result = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, status, result, time.Now().UTC(), id, models.TaskRunning)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		existing, err := s.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("finish task: task %s not found", id)
		}
		return ErrTaskTerminal
	}

	if task, err := s.GetTask(ctx, id); err == nil && task != nil {
		s.publish(events.StreamTasks, "task_finished", task)
		s.publish(events.StreamTimeline, "task_finished", taskTimelineEntry(task))
	}
	return nil
}

// RecentTasks returns the newest tasks for a session, newest first.
func (s *Store) RecentTasks(ctx context.Context, sessionID string, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, description, status, result, iterations, created_at, completed_at
		FROM tasks WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// base64ImageRe matches inline base64 image payloads in tool output so the
// log stores a placeholder instead of megabytes of pixels.
var base64ImageRe = regexp.MustCompile(`[A-Za-z0-9+/=]{512,}`)

const imagePlaceholder = "[image data omitted]"

// LogToolCall appends a row to the tool-call log. Inline image payloads in
// the output are replaced with a placeholder before storage.
func (s *Store) LogToolCall(ctx context.Context, taskID, toolName, inputJSON string, result *models.ToolResult) error {
	output := result.Output
	if result.HasImages() {
		output = imagePlaceholder
	} else if looksLikeBase64Payload(output) {
		output = base64ImageRe.ReplaceAllString(output, imagePlaceholder)
	}

	_, err := s.exec(ctx, `
		INSERT INTO tool_calls (task_id, tool_name, input_json, output, success, execution_time_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, taskID, toolName, inputJSON, output, result.Success, result.ExecutionTimeMS)
	if err != nil {
		return fmt.Errorf("log tool call: %w", err)
	}
	return nil
}

func looksLikeBase64Payload(s string) bool {
	if len(s) < 512 {
		return false
	}
	m := base64ImageRe.FindString(s)
	if m == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(m[:512/4*4])
	return err == nil
}

// ToolCallsForTask returns the log rows for a task in append order.
func (s *Store) ToolCallsForTask(ctx context.Context, taskID string) ([]models.ToolCallLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, tool_name, input_json, output, success, execution_time_ms, created_at
		FROM tool_calls WHERE task_id = ? ORDER BY id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("tool calls for task: %w", err)
	}
	defer rows.Close()

	var out []models.ToolCallLog
	for rows.Next() {
		var tc models.ToolCallLog
		if err := rows.Scan(&tc.ID, &tc.TaskID, &tc.ToolName, &tc.InputJSON, &tc.Output, &tc.Success, &tc.ExecutionMS, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func taskTimelineEntry(t *models.Task) models.TimelineEntry {
	return models.TimelineEntry{
		ID:      t.ID,
		Type:    models.TimelineTask,
		Content: t.Description,
		Summary: t.Result,
		Metadata: map[string]string{
			"status":     string(t.Status),
			"session_id": t.SessionID,
		},
		When: t.CreatedAt,
	}
}

func scanTask(row *sql.Row) (*models.Task, error) {
	var t models.Task
	var completed sql.NullTime
	err := row.Scan(&t.ID, &t.SessionID, &t.Description, &t.Status, &t.Result, &t.Iterations, &t.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	var out []models.Task
	for rows.Next() {
		var t models.Task
		var completed sql.NullTime
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Description, &t.Status, &t.Result, &t.Iterations, &t.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if completed.Valid {
			t.CompletedAt = &completed.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

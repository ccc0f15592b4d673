package models

import "time"

// Memory is a key-unique fact the agent has chosen to remember.
type Memory struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Category    string    `json:"category"`
	Importance  int       `json:"importance"`
	AccessCount int64     `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskStatus is the lifecycle state of an agent run's task row.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskStuck     TaskStatus = "stuck"
)

// Terminal reports whether the status is one of the final states.
// A terminal status is immutable once set.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskStuck:
		return true
	default:
		return false
	}
}

// Task records one agent run.
type Task struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	Iterations  int        `json:"iterations"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ToolCallLog is an append-only record of one tool execution within a task.
type ToolCallLog struct {
	ID          int64     `json:"id"`
	TaskID      string    `json:"task_id"`
	ToolName    string    `json:"tool_name"`
	InputJSON   string    `json:"input_json"`
	Output      string    `json:"output"`
	Success     bool      `json:"success"`
	ExecutionMS int64     `json:"execution_time_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role identifies the author of a conversation row.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ConversationRow is one persisted turn of a session's history.
type ConversationRow struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Thought is one reflection produced by the consciousness driver.
type Thought struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Knowledge is a durable piece of learned information, optionally paired
// with an embedding vector in the side index.
type Knowledge struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Summary    string    `json:"summary"`
	Source     string    `json:"source"`
	Importance int       `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// KnowledgeMatch is a vector search hit.
type KnowledgeMatch struct {
	Knowledge Knowledge `json:"knowledge"`
	Distance  float64   `json:"distance"`
}

// LedgerEntry is one signed economic event in the survival ledger.
type LedgerEntry struct {
	ID        int64     `json:"id"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// TimelineType discriminates entries of the unified timeline view.
type TimelineType string

const (
	TimelineThought   TimelineType = "thought"
	TimelineKnowledge TimelineType = "knowledge"
	TimelineTask      TimelineType = "task"
)

// TimelineEntry is one row of the derived timeline unioning thoughts,
// knowledge, and tasks, ordered by timestamp descending.
type TimelineEntry struct {
	ID       string            `json:"id"`
	Type     TimelineType      `json:"type"`
	Content  string            `json:"content"`
	Summary  string            `json:"summary,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	When     time.Time         `json:"timestamp"`
}

// Timestamp implements Timestamped.
func (e TimelineEntry) Timestamp() time.Time { return e.When }

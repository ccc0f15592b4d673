package models

import (
	"encoding/json"
	"time"
)

// EventType identifies a variant of the agent run event stream.
type EventType string

const (
	// EventThinking carries extended-thinking text from the model.
	EventThinking EventType = "thinking"

	// EventText carries response text from the model.
	EventText EventType = "text"

	// EventToolCall announces a tool invocation before it executes.
	EventToolCall EventType = "tool_call"

	// EventToolResult carries the result of a previously announced call.
	EventToolResult EventType = "tool_result"

	// EventStuckWarning signals the stuck detector fired. It may be
	// followed by EventError when the verdict is terminal.
	EventStuckWarning EventType = "stuck_warning"

	// EventError is a terminal failure. No events follow it.
	EventError EventType = "error"

	// EventDone is the successful terminal event carrying the summary.
	EventDone EventType = "done"

	// EventHeartbeat is a transport-level liveness tick. It is not part
	// of the run's ordered sequence.
	EventHeartbeat EventType = "heartbeat"
)

// Terminal reports whether the type ends a run's event stream.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// Event is one element of an agent run's totally ordered event stream.
// Within a run, tool_call always precedes its matching tool_result and
// done/error is final.
type Event struct {
	Type EventType `json:"type"`

	// Text carries the payload for thinking, text, stuck_warning, error,
	// and done events.
	Text string `json:"text,omitempty"`

	// ToolName and Args are set for tool_call events; ToolName is also
	// set for tool_result events.
	ToolName string          `json:"tool_name,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`

	// Result is set for tool_result events.
	Result *ToolResult `json:"result,omitempty"`

	At time.Time `json:"at"`
}

// NewEvent creates an event of the given type stamped now.
func NewEvent(t EventType) Event {
	return Event{Type: t, At: time.Now()}
}

// TextEvent creates a text-carrying event.
func TextEvent(t EventType, text string) Event {
	e := NewEvent(t)
	e.Text = text
	return e
}

// ToolCallEvent creates a tool_call event.
func ToolCallEvent(name string, args json.RawMessage) Event {
	e := NewEvent(EventToolCall)
	e.ToolName = name
	e.Args = args
	return e
}

// ToolResultEvent creates a tool_result event.
func ToolResultEvent(name string, result *ToolResult) Event {
	e := NewEvent(EventToolResult)
	e.ToolName = name
	e.Result = result
	return e
}

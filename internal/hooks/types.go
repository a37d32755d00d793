// Package hooks provides a typed, priority-ordered event bus for the
// gateway's lifecycle and feature-manager events.
package hooks

import (
	"context"
	"time"
)

// Kind identifies the category of hook event. The set is closed: nothing
// outside this list may be fired.
type Kind string

const (
	SessionStart       Kind = "SessionStart"
	SessionEnd         Kind = "SessionEnd"
	UserPromptSubmit   Kind = "UserPromptSubmit"
	PreToolUse         Kind = "PreToolUse"
	PostToolUse        Kind = "PostToolUse"
	ErrorOccurred      Kind = "ErrorOccurred"
	ContextFull        Kind = "ContextFull"
	TestCompleted      Kind = "TestCompleted"
	AgentStarted       Kind = "AgentStarted"
	AgentCompleted     Kind = "AgentCompleted"
	PlanningStarted    Kind = "PlanningStarted"
	PlanningCompleted  Kind = "PlanningCompleted"
	MemorySaved        Kind = "MemorySaved"
	MemoryRecalled     Kind = "MemoryRecalled"
	TDDCycleStarted    Kind = "TDDCycleStarted"
	TDDCycleCompleted  Kind = "TDDCycleCompleted"
	ScienceJobStarted  Kind = "ScienceJobStarted"
	ScienceJobCompleted Kind = "ScienceJobCompleted"
	GuideQueried       Kind = "GuideQueried"
)

// Event carries everything a handler might need plus a mutable shared-state
// map that later handlers in the same fan-out can read.
type Event struct {
	Kind       Kind
	Timestamp  time.Time
	SessionID  string
	ToolName   string
	ToolArgs   any
	ToolResult any
	Err        error
	Data       map[string]any

	// SharedState is visible to every handler for this event, in priority
	// order; a handler may write a key for a later handler to read.
	SharedState map[string]any
}

// NewEvent constructs an Event with the timestamp and maps initialized.
func NewEvent(kind Kind) *Event {
	return &Event{
		Kind:        kind,
		Timestamp:   time.Now(),
		Data:        make(map[string]any),
		SharedState: make(map[string]any),
	}
}

// Handler processes one hook event. A returned error is logged by the bus
// and isolated: it never stops the remaining handlers from running.
type Handler func(ctx context.Context, event *Event) error

// Priority orders handlers within one event's fan-out. Higher values run
// first; ties break by registration order.
type Priority int

const (
	PriorityLowest  Priority = 0
	PriorityLow     Priority = 25
	PriorityNormal  Priority = 50
	PriorityHigh    Priority = 75
	PriorityHighest Priority = 100
)

// Registration is one subscribed handler.
type Registration struct {
	ID          string
	Kind        Kind
	Handler     Handler
	Priority    Priority
	Description string

	// seq records registration order for stable tie-breaking.
	seq int
}

// RegisterOption configures a Registration at subscription time.
type RegisterOption func(*Registration)

// WithPriority sets the handler's priority (default PriorityNormal).
func WithPriority(p Priority) RegisterOption {
	return func(r *Registration) { r.Priority = p }
}

// WithDescription attaches a human-readable description for debugging.
func WithDescription(desc string) RegisterOption {
	return func(r *Registration) { r.Description = desc }
}

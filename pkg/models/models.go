// Package models defines the persistent entities shared across the gateway's
// store, feature managers, and RPC layer.
package models

import (
	"encoding/json"
	"time"
)

// Provider is a source of tools, either an in-process feature manager
// (ID prefixed "internal:") or an external tool-provider process.
type Provider struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Quality     *float64          `json:"quality,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ToolDescriptor is one row per (ProviderID, Name); Name is globally unique
// within the live catalog.
type ToolDescriptor struct {
	ProviderID  string          `json:"providerId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Category    string          `json:"category,omitempty"`
	Keywords    []string        `json:"keywords,omitempty"`
	UsageCount  int64           `json:"usageCount"`
}

// UsageLogEntry is an append-only record of a call_tool invocation.
type UsageLogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ToolName  string    `json:"toolName"`
	Arguments string    `json:"arguments"`
	Success   bool      `json:"success"`
	ElapsedMS int64     `json:"elapsedMs"`
}

// MemoryEntry is a user-saved key/value memory row.
type MemoryEntry struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	Category     string    `json:"category,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessAt time.Time `json:"lastAccessAt"`
	AccessCount  int64     `json:"accessCount"`
}

// TaskStatus is the lifecycle state of a TaskItem.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskCompleted  TaskStatus = "completed"
)

// TDDPhase is the advisory red/green/refactor phase of a TDD task.
type TDDPhase string

const (
	PhaseRed      TDDPhase = "red"
	PhaseGreen    TDDPhase = "green"
	PhaseRefactor TDDPhase = "refactor"
)

// TaskItem is a node in the task forest.
type TaskItem struct {
	ID          string     `json:"id"`
	Content     string     `json:"content"`
	Status      TaskStatus `json:"status"`
	ParentID    *string    `json:"parentId,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Type        string     `json:"type,omitempty"` // "" or "tdd"
	TDDPhase    TDDPhase   `json:"tddPhase,omitempty"`
	TestPath    string     `json:"testPath,omitempty"`
	AgentID     string     `json:"agentId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TestRun is a recorded tdd_* invocation tied to a task item.
type TestRun struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	TestPath  string    `json:"testPath"`
	Phase     TDDPhase  `json:"phase"`
	Passed    bool      `json:"passed"`
	Coverage  *float64  `json:"coverage,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// GuideEntry is one entry in the guide corpus.
type GuideEntry struct {
	ID         string   `json:"id"`
	Slug       string   `json:"slug"`
	Title      string   `json:"title"`
	Category   string   `json:"category,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Body       string   `json:"body"`
	Excerpt    string   `json:"excerpt"`
	Tags       []string `json:"tags,omitempty"`
}

// ProgressStatus is the learner's status against a guide.
type ProgressStatus string

const (
	ProgressStarted    ProgressStatus = "started"
	ProgressInProgress ProgressStatus = "in-progress"
	ProgressCompleted  ProgressStatus = "completed"
)

// LearningProgress tracks a session's progress through a guide.
type LearningProgress struct {
	GuideID   string         `json:"guideId"`
	SessionID string         `json:"sessionId"`
	Status    ProgressStatus `json:"status"`
	Step      int            `json:"step"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// AgentStatus is the lifecycle state of an AgentRecord.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
	AgentTimedOut  AgentStatus = "timed-out"
)

// AgentRecord is a spawned sub-agent's bookkeeping row.
type AgentRecord struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Task         string      `json:"task"`
	Status       AgentStatus `json:"status"`
	ParentTaskID string      `json:"parentTaskId,omitempty"`
	Result       string      `json:"result,omitempty"`
	SpawnedAt    time.Time   `json:"spawnedAt"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
}

// ContextSnapshot is a saved memory+task state used by context recovery.
type ContextSnapshot struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	CapturedAt time.Time        `json:"capturedAt"`
	Snapshot  string            `json:"snapshot"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Session is a process-wide record of an active caller session.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// ContentBlock is one piece of a tool-call result, matching the RPC wire
// shape.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the structured result of a call_tool invocation.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// TextResult builds a single-text-block ToolResult.
func TextResult(text string) *ToolResult {
	return &ToolResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ErrorResult builds a single-text-block ToolResult with IsError set.
func ErrorResult(message string) *ToolResult {
	return &ToolResult{Content: []ContentBlock{{Type: "text", Text: message}}, IsError: true}
}

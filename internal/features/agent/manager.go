// Package agent implements the agent_* tool family: spawn/status/complete
// over the persisted AgentRecord table.
//
// Cross-feature effects (marking a parent task completed) are deliberately
// not wired here as a direct call into the Planning Manager: lateral
// signalling between peer managers flows through the Hook Bus, not
// manager-to-manager method calls. agent_complete only fires AgentCompleted;
// the coordinator's built-in hook subscription does the rest.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgemcp/gateway/internal/features"
	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/internal/hooks"
	"github.com/forgemcp/gateway/pkg/models"
)

const providerID = "internal:agent"

// Store is the persistence surface the Agent Manager depends on.
type Store interface {
	CreateAgent(ctx context.Context, a *models.AgentRecord) error
	GetAgent(ctx context.Context, id string) (*models.AgentRecord, error)
	UpdateAgent(ctx context.Context, a *models.AgentRecord) error
}

// Manager implements features.Capability for the agent_* tools.
type Manager struct {
	store Store
	bus   *hooks.Bus
	log   *slog.Logger
}

// New constructs a Manager. bus is used to fire AgentStarted/AgentCompleted;
// it may be nil in tests that don't care about hook fan-out.
func New(store Store, bus *hooks.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, bus: bus, log: logger.With("component", "agent")}
}

// ToolDefinitions implements features.Capability.
func (m *Manager) ToolDefinitions() []models.ToolDescriptor {
	return []models.ToolDescriptor{
		{
			ProviderID:  providerID,
			Name:        "agent_spawn",
			Description: "Spawn a tracked sub-agent run for a task.",
			Category:    "agent",
			Keywords:    []string{"agent", "spawn", "subagent"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"type": {"type": "string"},
					"task": {"type": "string"},
					"parentTaskId": {"type": "string"}
				},
				"required": ["type", "task"]
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "agent_status",
			Description: "Fetch a spawned agent's current status.",
			Category:    "agent",
			Keywords:    []string{"agent", "status"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"id": {"type": "string"}},
				"required": ["id"]
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "agent_complete",
			Description: "Mark an agent run completed and report its result.",
			Category:    "agent",
			Keywords:    []string{"agent", "complete", "finish"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"result": {
						"type": "object",
						"properties": {
							"summary": {"type": "string"},
							"todoIds": {"type": "array", "items": {"type": "string"}}
						}
					}
				},
				"required": ["id"]
			}`),
		},
	}
}

// Handle implements features.Capability.
func (m *Manager) Handle(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error) {
	def := m.findDefinition(name)
	if def == nil {
		return nil, fmt.Errorf("%w: %s", gatewayerr.ErrToolNotFound, name)
	}
	if err := features.ValidateArgs(name, def.InputSchema, args); err != nil {
		return nil, err
	}

	switch name {
	case "agent_spawn":
		return m.handleSpawn(ctx, args)
	case "agent_status":
		return m.handleStatus(ctx, args)
	case "agent_complete":
		return m.handleComplete(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", gatewayerr.ErrToolNotFound, name)
	}
}

func (m *Manager) findDefinition(name string) *models.ToolDescriptor {
	for _, d := range m.ToolDefinitions() {
		if d.Name == name {
			return &d
		}
	}
	return nil
}

type spawnRequest struct {
	Type         string `json:"type"`
	Task         string `json:"task"`
	ParentTaskID string `json:"parentTaskId"`
}

func (m *Manager) handleSpawn(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req spawnRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	record := &models.AgentRecord{
		Type:         req.Type,
		Task:         req.Task,
		Status:       models.AgentRunning,
		ParentTaskID: req.ParentTaskID,
	}
	if err := m.store.CreateAgent(ctx, record); err != nil {
		return nil, err
	}

	m.fire(ctx, hooks.AgentStarted, record, nil)

	payload, _ := json.Marshal(map[string]any{"agent": record})
	return models.TextResult(string(payload)), nil
}

func (m *Manager) handleStatus(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	record, err := m.store.GetAgent(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(map[string]any{"agent": record})
	return models.TextResult(string(payload)), nil
}

type completeRequest struct {
	ID     string `json:"id"`
	Result struct {
		Summary string   `json:"summary"`
		TodoIDs []string `json:"todoIds"`
	} `json:"result"`
}

func (m *Manager) handleComplete(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req completeRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}

	record, err := m.store.GetAgent(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	record.Status = models.AgentCompleted
	record.Result = req.Result.Summary
	record.CompletedAt = &now
	if err := m.store.UpdateAgent(ctx, record); err != nil {
		return nil, err
	}

	m.fire(ctx, hooks.AgentCompleted, record, map[string]any{
		"result": map[string]any{"summary": req.Result.Summary, "todoIds": req.Result.TodoIDs},
	})

	payload, _ := json.Marshal(map[string]any{"agent": record})
	return models.TextResult(string(payload)), nil
}

func (m *Manager) fire(ctx context.Context, kind hooks.Kind, record *models.AgentRecord, data map[string]any) {
	if m.bus == nil {
		return
	}
	ev := hooks.NewEvent(kind)
	if data != nil {
		ev.Data = data
	}
	ev.Data["agentId"] = record.ID
	ev.Data["agent"] = record
	m.bus.Fire(ctx, ev)
}

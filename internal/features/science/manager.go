// Package science implements science_run as a thin router onto a pluggable
// ComputeBackend. No statistics are computed here; this package only
// validates, dispatches, records, and fires hooks.
package science

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/forgemcp/gateway/internal/features"
	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/internal/hooks"
	"github.com/forgemcp/gateway/pkg/models"
)

const providerID = "internal:science"

// ComputeBackend is the pluggable collaborator that actually performs a
// statistical/ML/visualization computation. The concrete computation is out
// of scope here; the core only requires this interface.
type ComputeBackend interface {
	Run(ctx context.Context, job string, params json.RawMessage) (json.RawMessage, error)
}

// nullComputeBackend is the default wiring: every job reports Unavailable,
// since no concrete compute backend ships with the core.
type nullComputeBackend struct{}

func (nullComputeBackend) Run(ctx context.Context, job string, params json.RawMessage) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w: no compute backend configured for job %q", gatewayerr.ErrUnavailable, job)
}

// NullComputeBackend is exported so callers can wire it explicitly.
func NullComputeBackend() ComputeBackend { return nullComputeBackend{} }

// Store is the persistence surface the Science Manager depends on: it
// records a memory entry per completed job. This is a direct write to the
// shared memory table, not a call into the Memory Manager's methods — the
// store, not a peer manager, owns the row.
type Store interface {
	CreateMemory(ctx context.Context, m *models.MemoryEntry) error
}

// Manager implements features.Capability for science_run.
type Manager struct {
	store   Store
	backend ComputeBackend
	bus     *hooks.Bus
	log     *slog.Logger
}

// New constructs a Manager bound to a compute backend. Pass NullComputeBackend()
// when no concrete backend is wired.
func New(store Store, backend ComputeBackend, bus *hooks.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == nil {
		backend = NullComputeBackend()
	}
	return &Manager{store: store, backend: backend, bus: bus, log: logger.With("component", "science")}
}

// ToolDefinitions implements features.Capability.
func (m *Manager) ToolDefinitions() []models.ToolDescriptor {
	return []models.ToolDescriptor{
		{
			ProviderID:  providerID,
			Name:        "science_run",
			Description: "Run a statistical/ML/visualization job on the configured compute backend.",
			Category:    "science",
			Keywords:    []string{"science", "statistics", "compute", "analysis"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"job": {"type": "string"},
					"params": {"type": "object"}
				},
				"required": ["job"]
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
	return m.handleRun(ctx, args)
}

func (m *Manager) findDefinition(name string) *models.ToolDescriptor {
	for _, d := range m.ToolDefinitions() {
		if d.Name == name {
			return &d
		}
	}
	return nil
}

type runRequest struct {
	Job    string          `json:"job"`
	Params json.RawMessage `json:"params"`
}

func (m *Manager) handleRun(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req runRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}

	m.fire(ctx, hooks.ScienceJobStarted, req.Job, nil)

	output, err := m.backend.Run(ctx, req.Job, req.Params)
	if err != nil {
		m.fire(ctx, hooks.ScienceJobCompleted, req.Job, map[string]any{"error": err.Error()})
		return nil, err
	}

	entry := &models.MemoryEntry{
		Key:      fmt.Sprintf("science_run:%s", req.Job),
		Value:    string(output),
		Category: "science",
	}
	if err := m.store.CreateMemory(ctx, entry); err != nil {
		m.log.Warn("failed to record science job result", "job", req.Job, "error", err)
	}

	m.fire(ctx, hooks.ScienceJobCompleted, req.Job, map[string]any{"output": string(output)})

	payload, _ := json.Marshal(map[string]any{"job": req.Job, "output": json.RawMessage(output)})
	return models.TextResult(string(payload)), nil
}

func (m *Manager) fire(ctx context.Context, kind hooks.Kind, job string, data map[string]any) {
	if m.bus == nil {
		return
	}
	ev := hooks.NewEvent(kind)
	if data != nil {
		ev.Data = data
	}
	ev.Data["job"] = job
	m.bus.Fire(ctx, ev)
}

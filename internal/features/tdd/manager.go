// Package tdd implements the tdd_* tool family: red/green/refactor/verify,
// each recording a test-run row obtained from a pluggable test runner.
package tdd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/forgemcp/gateway/internal/features"
	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

const providerID = "internal:tdd"

// Store is the persistence surface the TDD Manager depends on.
type Store interface {
	CreateTestRun(ctx context.Context, r *models.TestRun) error
	LatestTestRun(ctx context.Context, testPath string) (*models.TestRun, error)
}

// TestRunner is the pluggable capability that actually executes a test path
// and reports pass/fail plus optional coverage. ExecRunner is the default,
// concrete implementation; tests substitute a fake.
type TestRunner interface {
	Run(ctx context.Context, testPath string) (passed bool, coverage *float64, err error)
}

// Manager implements features.Capability for the tdd_* tools.
type Manager struct {
	store  Store
	runner TestRunner
	log    *slog.Logger
}

// New constructs a Manager bound to a test runner.
func New(store Store, runner TestRunner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, runner: runner, log: logger.With("component", "tdd")}
}

// ToolDefinitions implements features.Capability.
func (m *Manager) ToolDefinitions() []models.ToolDescriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"testPath": {"type": "string"},
			"taskId": {"type": "string"}
		},
		"required": ["testPath", "taskId"]
	}`)
	return []models.ToolDescriptor{
		{ProviderID: providerID, Name: "tdd_red", Description: "Run a test expected to fail and record the red phase.", Category: "tdd", Keywords: []string{"tdd", "red", "test"}, InputSchema: schema},
		{ProviderID: providerID, Name: "tdd_green", Description: "Run a test expected to pass and record the green phase.", Category: "tdd", Keywords: []string{"tdd", "green", "test"}, InputSchema: schema},
		{ProviderID: providerID, Name: "tdd_refactor", Description: "Re-run a test after refactoring and record the refactor phase.", Category: "tdd", Keywords: []string{"tdd", "refactor", "test"}, InputSchema: schema},
		{ProviderID: providerID, Name: "tdd_verify", Description: "Re-run a test and warn if the last recorded phase was not green.", Category: "tdd", Keywords: []string{"tdd", "verify", "test"}, InputSchema: schema},
	}
}

var phaseByTool = map[string]models.TDDPhase{
	"tdd_red":      models.PhaseRed,
	"tdd_green":    models.PhaseGreen,
	"tdd_refactor": models.PhaseRefactor,
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

	var req struct {
		TestPath string `json:"testPath"`
		TaskID   string `json:"taskId"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	if req.TaskID == "" {
		// The schema's "required" already rejects a missing taskId key, but a
		// caller can still send an empty string; testruns.task_id is NOT NULL
		// and FK-constrained, so let this fail clean here rather than as an
		// opaque sqlite constraint error.
		return nil, fmt.Errorf("%w: taskId is required", gatewayerr.ErrInvalidInput)
	}

	if name == "tdd_verify" {
		return m.handleVerify(ctx, req.TaskID, req.TestPath)
	}

	phase, ok := phaseByTool[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gatewayerr.ErrToolNotFound, name)
	}
	return m.runPhase(ctx, req.TaskID, req.TestPath, phase)
}

func (m *Manager) findDefinition(name string) *models.ToolDescriptor {
	for _, d := range m.ToolDefinitions() {
		if d.Name == name {
			return &d
		}
	}
	return nil
}

func (m *Manager) runPhase(ctx context.Context, taskID, testPath string, phase models.TDDPhase) (*models.ToolResult, error) {
	passed, coverage, runErr := m.runner.Run(ctx, testPath)
	run := &models.TestRun{
		ID:       uuid.New().String(),
		TaskID:   taskID,
		TestPath: testPath,
		Phase:    phase,
		Passed:   passed,
		Coverage: coverage,
	}
	if err := m.store.CreateTestRun(ctx, run); err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(map[string]any{"run": run, "runnerError": errString(runErr)})
	return models.TextResult(string(payload)), nil
}

func (m *Manager) handleVerify(ctx context.Context, taskID, testPath string) (*models.ToolResult, error) {
	last, err := m.store.LatestTestRun(ctx, testPath)
	if err != nil && !gatewayerr.Is(err, gatewayerr.ErrNotFound) {
		return nil, err
	}

	passed, coverage, runErr := m.runner.Run(ctx, testPath)
	run := &models.TestRun{
		ID:       uuid.New().String(),
		TaskID:   taskID,
		TestPath: testPath,
		Phase:    models.PhaseRefactor,
		Passed:   passed,
		Coverage: coverage,
	}
	if err := m.store.CreateTestRun(ctx, run); err != nil {
		return nil, err
	}

	var warning string
	if last == nil || last.Phase != models.PhaseGreen {
		warning = "last recorded phase before verify was not green; tdd ordering is advisory and was not enforced"
	}
	payload, _ := json.Marshal(map[string]any{"run": run, "warning": warning, "runnerError": errString(runErr)})
	return models.TextResult(string(payload)), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

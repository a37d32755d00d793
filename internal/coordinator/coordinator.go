// Package coordinator wires the first-party feature managers together,
// exposes their combined tool catalog, routes internal calls by provider id
// prefix, and owns the hook bus that lets one manager's call ripple into
// another's state.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/forgemcp/gateway/internal/features"
	"github.com/forgemcp/gateway/internal/features/agent"
	"github.com/forgemcp/gateway/internal/features/guide"
	"github.com/forgemcp/gateway/internal/features/memory"
	"github.com/forgemcp/gateway/internal/features/planning"
	"github.com/forgemcp/gateway/internal/features/science"
	"github.com/forgemcp/gateway/internal/features/tdd"
	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/internal/hooks"
	"github.com/forgemcp/gateway/pkg/models"
)

// recordableTools is the set of tool names that get a PostToolUse memory
// record of their own execution.
var recordableTools = map[string]struct{}{
	"memory_save":     {},
	"planning_create": {},
	"tdd_red":         {},
	"tdd_green":       {},
	"tdd_refactor":    {},
	"tdd_verify":      {},
}

// Store is the persistence surface the Coordinator's built-in hook
// subscriptions depend on directly (not through a peer manager).
type Store interface {
	CreateMemory(ctx context.Context, m *models.MemoryEntry) error
	GetTask(ctx context.Context, id string) (*models.TaskItem, error)
	UpdateTask(ctx context.Context, t *models.TaskItem) error
	SaveSnapshot(ctx context.Context, snap *models.ContextSnapshot) error
	NewestSnapshot(ctx context.Context, sessionID string) (*models.ContextSnapshot, error)
}

// Coordinator constructs every first-party feature manager, exposes their
// union of tool definitions, and routes internal calls to the owning
// manager by providerId prefix.
type Coordinator struct {
	bus        *hooks.Bus
	store      Store
	log        *slog.Logger
	managers   map[string]features.Capability // providerId -> manager
	defSlice   []models.ToolDescriptor
}

// Managers groups the constructed feature managers for callers that need to
// reach a concrete manager directly (e.g. guide seeding at startup).
type Managers struct {
	Memory   *memory.Manager
	Planning *planning.Manager
	TDD      *tdd.Manager
	Agent    *agent.Manager
	Guide    *guide.Manager
	Science  *science.Manager
}

// New constructs every feature manager in dependency order (memory →
// planning → tdd → agent → guide → science), registers the built-in hook
// subscriptions, and returns both the Coordinator and the concrete manager
// handles.
func New(ctx context.Context, store interface {
	memory.Store
	planning.Store
	tdd.Store
	agent.Store
	guide.Store
	science.Store
	Store
}, runner tdd.TestRunner, backend science.ComputeBackend, bus *hooks.Bus, logger *slog.Logger) (*Coordinator, *Managers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = hooks.NewBus(logger)
	}

	memMgr, err := memory.New(ctx, store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("construct memory manager: %w", err)
	}
	planMgr := planning.New(store, logger)
	tddMgr := tdd.New(store, runner, logger)
	agentMgr := agent.New(store, bus, logger)
	guideMgr, err := guide.New(ctx, store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("construct guide manager: %w", err)
	}
	sciMgr := science.New(store, backend, bus, logger)

	managers := &Managers{
		Memory:   memMgr,
		Planning: planMgr,
		TDD:      tddMgr,
		Agent:    agentMgr,
		Guide:    guideMgr,
		Science:  sciMgr,
	}

	c := &Coordinator{
		bus:   bus,
		store: store,
		log:   logger.With("component", "coordinator"),
		managers: map[string]features.Capability{
			"internal:memory":   memMgr,
			"internal:planning": planMgr,
			"internal:tdd":      tddMgr,
			"internal:agent":    agentMgr,
			"internal:guide":    guideMgr,
			"internal:science":  sciMgr,
		},
	}
	for _, cap := range []features.Capability{memMgr, planMgr, tddMgr, agentMgr, guideMgr, sciMgr} {
		c.defSlice = append(c.defSlice, cap.ToolDefinitions()...)
	}

	c.registerBuiltinHooks()
	return c, managers, nil
}

// Bus returns the hook bus the Coordinator owns, for callers (the Gateway
// RPC layer) that need to fire PreToolUse/PostToolUse/ErrorOccurred around
// the calls they dispatch.
func (c *Coordinator) Bus() *hooks.Bus { return c.bus }

// ToolDefinitions returns the union of every internal manager's tool
// definitions, in construction order.
func (c *Coordinator) ToolDefinitions() []models.ToolDescriptor {
	out := make([]models.ToolDescriptor, len(c.defSlice))
	copy(out, c.defSlice)
	return out
}

// Route dispatches a call to the internal manager owning providerId. It
// returns (nil, nil) when providerId is not an internal:* prefix, signaling
// the caller to try an external provider instead.
func (c *Coordinator) Route(ctx context.Context, providerID, toolName string, args json.RawMessage) (*models.ToolResult, error) {
	if !strings.HasPrefix(providerID, "internal:") {
		return nil, nil
	}
	mgr, ok := c.managers[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: no internal manager registered for provider %s", gatewayerr.ErrToolNotFound, providerID)
	}
	return mgr.Handle(ctx, toolName, args)
}

func (c *Coordinator) registerBuiltinHooks() {
	c.bus.Register(hooks.PostToolUse, c.recordToolExecution, hooks.WithPriority(hooks.PriorityNormal), hooks.WithDescription("record tool_execution memory"))
	c.bus.Register(hooks.AgentCompleted, c.completeLinkedTasks, hooks.WithPriority(hooks.PriorityNormal), hooks.WithDescription("mark todoIds completed"))
	c.bus.Register(hooks.ContextFull, c.saveSnapshot, hooks.WithPriority(hooks.PriorityNormal), hooks.WithDescription("save context snapshot"))
	c.bus.Register(hooks.SessionStart, c.logSnapshotAvailability, hooks.WithPriority(hooks.PriorityLow), hooks.WithDescription("log snapshot availability"))
}

func (c *Coordinator) recordToolExecution(ctx context.Context, ev *hooks.Event) error {
	if _, ok := recordableTools[ev.ToolName]; !ok {
		return nil
	}
	payload, err := json.Marshal(ev.ToolResult)
	if err != nil {
		return fmt.Errorf("marshal tool result: %w", err)
	}
	entry := &models.MemoryEntry{
		Key:      fmt.Sprintf("tool_result:%s", ev.ToolName),
		Value:    string(payload),
		Category: "tool_execution",
	}
	return c.store.CreateMemory(ctx, entry)
}

func (c *Coordinator) completeLinkedTasks(ctx context.Context, ev *hooks.Event) error {
	result, ok := ev.Data["result"].(map[string]any)
	if !ok {
		return nil
	}
	todoIDs, ok := result["todoIds"].([]string)
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	for _, id := range todoIDs {
		task, err := c.store.GetTask(ctx, id)
		if err != nil {
			c.log.Warn("AgentCompleted: could not load linked task", "taskId", id, "error", err)
			continue
		}
		task.Status = models.TaskCompleted
		if task.CompletedAt == nil {
			task.CompletedAt = &now
		}
		if err := c.store.UpdateTask(ctx, task); err != nil {
			c.log.Warn("AgentCompleted: could not complete linked task", "taskId", id, "error", err)
		}
	}
	return nil
}

func (c *Coordinator) saveSnapshot(ctx context.Context, ev *hooks.Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal context snapshot: %w", err)
	}
	snap := &models.ContextSnapshot{
		SessionID: ev.SessionID,
		Snapshot:  string(payload),
	}
	return c.store.SaveSnapshot(ctx, snap)
}

func (c *Coordinator) logSnapshotAvailability(ctx context.Context, ev *hooks.Event) error {
	snap, err := c.store.NewestSnapshot(ctx, ev.SessionID)
	if err != nil {
		return err
	}
	if snap != nil {
		c.log.Info("a saved context snapshot is available for this session", "sessionId", ev.SessionID, "capturedAt", snap.CapturedAt)
	}
	return nil
}

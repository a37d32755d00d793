// Package planning implements the planning_* tool family over the persisted
// task forest: create/update/delete nodes, render an ASCII tree, and reject
// any parent assignment that would introduce a cycle.
package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/forgemcp/gateway/internal/features"
	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

const providerID = "internal:planning"

// Store is the persistence surface the Planning Manager depends on.
type Store interface {
	CreateTask(ctx context.Context, t *models.TaskItem) error
	GetTask(ctx context.Context, id string) (*models.TaskItem, error)
	Ancestors(ctx context.Context, id string) ([]string, error)
	UpdateTask(ctx context.Context, t *models.TaskItem) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context) ([]*models.TaskItem, error)
}

// Manager implements features.Capability for the planning_* tools.
type Manager struct {
	store Store
	log   *slog.Logger
}

// New constructs a Manager.
func New(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, log: logger.With("component", "planning")}
}

// ToolDefinitions implements features.Capability.
func (m *Manager) ToolDefinitions() []models.ToolDescriptor {
	return []models.ToolDescriptor{
		{
			ProviderID:  providerID,
			Name:        "planning_create",
			Description: "Create a task item, optionally under a parent.",
			Category:    "planning",
			Keywords:    []string{"planning", "task", "create"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"content": {"type": "string"},
					"status": {"type": "string"},
					"parentId": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}},
					"type": {"type": "string"},
					"tddStatus": {"type": "string"},
					"testPath": {"type": "string"}
				},
				"required": ["content"]
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "planning_update",
			Description: "Update a task item's status, content, or parent.",
			Category:    "planning",
			Keywords:    []string{"planning", "task", "update"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"status": {"type": "string"},
					"content": {"type": "string"},
					"parentId": {"type": "string"},
					"tags": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["id"]
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "planning_tree",
			Description: "Render the task forest (or one subtree) as an ASCII tree with a status summary.",
			Category:    "planning",
			Keywords:    []string{"planning", "tree", "tasks"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"rootId": {"type": "string"}}
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "planning_delete",
			Description: "Delete a task item and its entire subtree.",
			Category:    "planning",
			Keywords:    []string{"planning", "task", "delete"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"id": {"type": "string"}},
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
	case "planning_create":
		return m.handleCreate(ctx, args)
	case "planning_update":
		return m.handleUpdate(ctx, args)
	case "planning_tree":
		return m.handleTree(ctx, args)
	case "planning_delete":
		return m.handleDelete(ctx, args)
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

type createRequest struct {
	Content   string   `json:"content"`
	Status    string   `json:"status"`
	ParentID  *string  `json:"parentId"`
	Tags      []string `json:"tags"`
	Type      string   `json:"type"`
	TDDStatus string   `json:"tddStatus"`
	TestPath  string   `json:"testPath"`
}

func (m *Manager) handleCreate(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req createRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	task := &models.TaskItem{
		Content:  req.Content,
		Status:   models.TaskStatus(req.Status),
		ParentID: req.ParentID,
		Tags:     req.Tags,
		Type:     req.Type,
		TDDPhase: models.TDDPhase(req.TDDStatus),
		TestPath: req.TestPath,
	}
	// A freshly-created node is never its own ancestor, so no cycle check is
	// needed here; the store itself validates the parent exists.
	if err := m.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(task)
	return models.TextResult(string(payload)), nil
}

type updateRequest struct {
	ID       string    `json:"id"`
	Status   *string   `json:"status"`
	Content  *string   `json:"content"`
	ParentID *string   `json:"parentId"`
	Tags     *[]string `json:"tags"`
}

func (m *Manager) handleUpdate(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req updateRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}

	task, err := m.store.GetTask(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.ParentID != nil {
		if err := m.checkNoCycle(ctx, req.ID, *req.ParentID); err != nil {
			return nil, err
		}
		task.ParentID = req.ParentID
	}
	if req.Content != nil {
		task.Content = *req.Content
	}
	if req.Tags != nil {
		task.Tags = *req.Tags
	}
	if req.Status != nil {
		task.Status = models.TaskStatus(*req.Status)
		if task.Status == models.TaskCompleted && task.CompletedAt == nil {
			now := time.Now().UTC()
			task.CompletedAt = &now
		}
	}

	if err := m.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(task)
	return models.TextResult(string(payload)), nil
}

// checkNoCycle walks the ancestor chain of newParent; if id appears in it,
// assigning id's parent to newParent would create a cycle.
func (m *Manager) checkNoCycle(ctx context.Context, id, newParent string) error {
	if id == newParent {
		return fmt.Errorf("%w: %s cannot be its own parent", gatewayerr.ErrCycleDetected, id)
	}
	ancestors, err := m.store.Ancestors(ctx, newParent)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		if a == id {
			return fmt.Errorf("%w: assigning parent %s to %s would create a cycle", gatewayerr.ErrCycleDetected, newParent, id)
		}
	}
	return nil
}

func (m *Manager) handleDelete(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	if err := m.store.DeleteTask(ctx, req.ID); err != nil {
		if gatewayerr.Is(err, gatewayerr.ErrNotFound) {
			payload, _ := json.Marshal(map[string]any{"success": false})
			return models.TextResult(string(payload)), nil
		}
		return nil, err
	}
	payload, _ := json.Marshal(map[string]any{"success": true})
	return models.TextResult(string(payload)), nil
}

func (m *Manager) handleTree(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req struct {
		RootID string `json:"rootId"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
		}
	}

	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.TaskItem, len(tasks))
	children := make(map[string][]*models.TaskItem)
	var roots []*models.TaskItem
	summary := make(map[models.TaskStatus]int)

	for _, t := range tasks {
		byID[t.ID] = t
		summary[t.Status]++
	}
	for _, t := range tasks {
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t)
		} else {
			roots = append(roots, t)
		}
	}
	for k := range children {
		sort.Slice(children[k], func(i, j int) bool {
			return children[k][i].CreatedAt.Before(children[k][j].CreatedAt)
		})
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].CreatedAt.Before(roots[j].CreatedAt) })

	var b strings.Builder
	if req.RootID != "" {
		root, ok := byID[req.RootID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", gatewayerr.ErrNotFound, req.RootID)
		}
		renderNode(&b, root, children, "", true, true)
	} else {
		for i, r := range roots {
			renderNode(&b, r, children, "", i == len(roots)-1, true)
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"asciiTree": b.String(),
		"summary":   summary,
	})
	return models.TextResult(string(payload)), nil
}

func statusGlyph(s models.TaskStatus) string {
	switch s {
	case models.TaskCompleted:
		return "[x]"
	case models.TaskInProgress:
		return "[~]"
	default:
		return "[ ]"
	}
}

func renderNode(b *strings.Builder, node *models.TaskItem, children map[string][]*models.TaskItem, prefix string, last, root bool) {
	connector := "├── "
	if last {
		connector = "└── "
	}
	if root {
		fmt.Fprintf(b, "%s %s\n", statusGlyph(node.Status), node.Content)
	} else {
		fmt.Fprintf(b, "%s%s%s %s\n", prefix, connector, statusGlyph(node.Status), node.Content)
	}

	childPrefix := prefix
	if !root {
		if last {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	kids := children[node.ID]
	for i, c := range kids {
		renderNode(b, c, children, childPrefix, i == len(kids)-1, false)
	}
}

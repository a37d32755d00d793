// Package memory implements the memory_* tool family: save/recall/list/forget
// over a persisted key/value store with BM25-ranked recall.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/forgemcp/gateway/internal/bm25"
	"github.com/forgemcp/gateway/internal/features"
	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

const providerID = "internal:memory"

// Store is the persistence surface the Memory Manager depends on.
type Store interface {
	CreateMemory(ctx context.Context, m *models.MemoryEntry) error
	ListMemory(ctx context.Context, category string, tags []string, limit int) ([]*models.MemoryEntry, error)
	AllMemory(ctx context.Context, category string) ([]*models.MemoryEntry, error)
	GetMemory(ctx context.Context, id string) (*models.MemoryEntry, error)
	BumpMemoryAccess(ctx context.Context, id string) error
	DeleteMemory(ctx context.Context, id string) (bool, error)
}

// Manager implements features.Capability for the memory_* tools. The BM25
// index here is a private recall index over memory text, separate from the
// tool-catalog index the loader searches.
type Manager struct {
	store Store
	index *bm25.Index
	log   *slog.Logger
}

// New constructs a Manager and rebuilds its recall index from the store.
func New(ctx context.Context, store Store, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, index: bm25.New(), log: logger.With("component", "memory")}
	all, err := store.AllMemory(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load memory corpus: %w", err)
	}
	for _, entry := range all {
		m.index.AddOrReplace(entry.ID, indexableText(entry))
	}
	return m, nil
}

func indexableText(m *models.MemoryEntry) string {
	return strings.Join(append([]string{m.Key, m.Value}, m.Tags...), " ")
}

// ToolDefinitions implements features.Capability.
func (m *Manager) ToolDefinitions() []models.ToolDescriptor {
	return []models.ToolDescriptor{
		{
			ProviderID:  providerID,
			Name:        "memory_save",
			Description: "Save a key/value memory entry for later recall.",
			Category:    "memory",
			Keywords:    []string{"memory", "save", "remember"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"key": {"type": "string"},
					"value": {"type": "string"},
					"metadata": {
						"type": "object",
						"properties": {
							"category": {"type": "string"},
							"tags": {"type": "array", "items": {"type": "string"}}
						}
					}
				},
				"required": ["key", "value"]
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "memory_recall",
			Description: "Recall memory entries ranked by relevance to a query.",
			Category:    "memory",
			Keywords:    []string{"memory", "recall", "search"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string"},
					"limit": {"type": "integer"},
					"category": {"type": "string"}
				},
				"required": ["query"]
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "memory_list",
			Description: "List memory entries, optionally filtered by category or tags.",
			Category:    "memory",
			Keywords:    []string{"memory", "list"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"filter": {
						"type": "object",
						"properties": {
							"category": {"type": "string"},
							"tags": {"type": "array", "items": {"type": "string"}}
						}
					},
					"limit": {"type": "integer"}
				}
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "memory_forget",
			Description: "Delete a memory entry by id.",
			Category:    "memory",
			Keywords:    []string{"memory", "forget", "delete"},
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
	case "memory_save":
		return m.handleSave(ctx, args)
	case "memory_recall":
		return m.handleRecall(ctx, args)
	case "memory_list":
		return m.handleList(ctx, args)
	case "memory_forget":
		return m.handleForget(ctx, args)
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

type saveRequest struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Metadata struct {
		Category string   `json:"category"`
		Tags     []string `json:"tags"`
	} `json:"metadata"`
}

func (m *Manager) handleSave(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req saveRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	entry := &models.MemoryEntry{
		Key:      req.Key,
		Value:    req.Value,
		Category: req.Metadata.Category,
		Tags:     req.Metadata.Tags,
	}
	if err := m.store.CreateMemory(ctx, entry); err != nil {
		return nil, err
	}
	m.index.AddOrReplace(entry.ID, indexableText(entry))

	payload, _ := json.Marshal(map[string]any{"id": entry.ID, "memory": entry})
	return models.TextResult(string(payload)), nil
}

type recallRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
	Category string `json:"category"`
}

func (m *Manager) handleRecall(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req recallRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	// The category filter applies against the full ranked corpus, not just its
	// top-limit slice: searching with the requested limit and then filtering
	// can starve a category-scoped recall short of limit even though enough
	// matching memories exist further down the ranking. Search unbounded (0
	// means no truncation) whenever a category restricts the result set, and
	// cut to limit only after filtering.
	searchLimit := limit
	if req.Category != "" {
		searchLimit = 0
	}
	matches := m.index.Search(req.Query, searchLimit, 0)
	results := make([]*models.MemoryEntry, 0, limit)
	for _, match := range matches {
		if len(results) >= limit {
			break
		}
		entry, err := m.store.GetMemory(ctx, match.Name)
		if err != nil {
			m.log.Warn("recall: stale index entry", "id", match.Name, "error", err)
			continue
		}
		if req.Category != "" && entry.Category != req.Category {
			continue
		}
		if err := m.store.BumpMemoryAccess(ctx, entry.ID); err != nil {
			m.log.Warn("recall: failed to bump access count", "id", entry.ID, "error", err)
		} else {
			entry.AccessCount++
		}
		results = append(results, entry)
	}

	payload, _ := json.Marshal(map[string]any{"results": results})
	return models.TextResult(string(payload)), nil
}

type listRequest struct {
	Filter struct {
		Category string   `json:"category"`
		Tags     []string `json:"tags"`
	} `json:"filter"`
	Limit int `json:"limit"`
}

func (m *Manager) handleList(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req listRequest
	if len(args) > 0 {
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
		}
	}
	entries, err := m.store.ListMemory(ctx, req.Filter.Category, req.Filter.Tags, req.Limit)
	if err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(map[string]any{"memories": entries})
	return models.TextResult(string(payload)), nil
}

type forgetRequest struct {
	ID string `json:"id"`
}

func (m *Manager) handleForget(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req forgetRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	deleted, err := m.store.DeleteMemory(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if deleted {
		m.index.Remove(req.ID)
	}
	payload, _ := json.Marshal(map[string]any{"success": deleted})
	return models.TextResult(string(payload)), nil
}

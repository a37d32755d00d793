// Package guide implements guide_search (BM25 over the guide corpus) and
// guide_tutorial (a LearningProgress stepper) plus first-run corpus seeding.
package guide

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

const providerID = "internal:guide"

// defaultSessionID is used when a caller omits sessionId from guide_tutorial
// arguments, keeping single-session usage sane without forcing every caller
// to generate one.
const defaultSessionID = "default"

// Store is the persistence surface the Guide Manager depends on.
type Store interface {
	UpsertGuide(ctx context.Context, g *models.GuideEntry) error
	CountGuides(ctx context.Context) (int, error)
	ListGuides(ctx context.Context, category, difficulty string) ([]*models.GuideEntry, error)
	GetGuide(ctx context.Context, id string) (*models.GuideEntry, error)
	UpsertProgress(ctx context.Context, p *models.LearningProgress) error
	GetProgress(ctx context.Context, guideID, sessionID string) (*models.LearningProgress, error)
}

// Manager implements features.Capability for the guide_* tools.
type Manager struct {
	store Store
	index *bm25.Index
	log   *slog.Logger
}

// New constructs a Manager, seeding the guide corpus if the table is empty,
// then building the BM25 search index from whatever is persisted.
func New(ctx context.Context, store Store, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, index: bm25.New(), log: logger.With("component", "guide")}

	count, err := store.CountGuides(ctx)
	if err != nil {
		return nil, fmt.Errorf("count guides: %w", err)
	}
	if count == 0 {
		for _, g := range seedGuides {
			entry := g
			if err := store.UpsertGuide(ctx, &entry); err != nil {
				return nil, fmt.Errorf("seed guide %s: %w", entry.Slug, err)
			}
		}
	}

	all, err := store.ListGuides(ctx, "", "")
	if err != nil {
		return nil, fmt.Errorf("load guide corpus: %w", err)
	}
	for _, g := range all {
		m.index.AddOrReplace(g.ID, indexableText(g))
	}
	return m, nil
}

func indexableText(g *models.GuideEntry) string {
	return strings.Join(append([]string{g.Title, g.Excerpt, g.Body}, g.Tags...), " ")
}

// ToolDefinitions implements features.Capability.
func (m *Manager) ToolDefinitions() []models.ToolDescriptor {
	return []models.ToolDescriptor{
		{
			ProviderID:  providerID,
			Name:        "guide_search",
			Description: "Search the guide corpus by relevance to a query.",
			Category:    "guide",
			Keywords:    []string{"guide", "search", "learn", "tutorial"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string"},
					"category": {"type": "string"},
					"difficulty": {"type": "string"},
					"limit": {"type": "integer"}
				},
				"required": ["query"]
			}`),
		},
		{
			ProviderID:  providerID,
			Name:        "guide_tutorial",
			Description: "Drive a step-by-step tutorial through a guide.",
			Category:    "guide",
			Keywords:    []string{"guide", "tutorial", "learn"},
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"action": {"type": "string", "enum": ["start", "next", "previous", "check", "hint", "complete", "reset"]},
					"guideId": {"type": "string"},
					"sessionId": {"type": "string"}
				},
				"required": ["action", "guideId"]
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
	case "guide_search":
		return m.handleSearch(ctx, args)
	case "guide_tutorial":
		return m.handleTutorial(ctx, args)
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

type searchRequest struct {
	Query      string `json:"query"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Limit      int    `json:"limit"`
}

func (m *Manager) handleSearch(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req searchRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	matches := m.index.Search(req.Query, limit, 0)
	results := make([]*models.GuideEntry, 0, len(matches))
	for _, match := range matches {
		g, err := m.store.GetGuide(ctx, match.Name)
		if err != nil {
			m.log.Warn("search: stale index entry", "id", match.Name, "error", err)
			continue
		}
		if req.Category != "" && g.Category != req.Category {
			continue
		}
		if req.Difficulty != "" && g.Difficulty != req.Difficulty {
			continue
		}
		results = append(results, g)
	}
	payload, _ := json.Marshal(map[string]any{"guides": results})
	return models.TextResult(string(payload)), nil
}

func tutorialSteps(g *models.GuideEntry) []string {
	var steps []string
	for _, part := range strings.Split(g.Body, "\n\n") {
		part = strings.TrimSpace(part)
		if part != "" {
			steps = append(steps, part)
		}
	}
	if len(steps) == 0 {
		steps = []string{g.Excerpt}
	}
	return steps
}

type tutorialRequest struct {
	Action    string `json:"action"`
	GuideID   string `json:"guideId"`
	SessionID string `json:"sessionId"`
}

func (m *Manager) handleTutorial(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var req tutorialRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", gatewayerr.ErrInvalidInput, err)
	}
	if req.SessionID == "" {
		req.SessionID = defaultSessionID
	}

	g, err := m.store.GetGuide(ctx, req.GuideID)
	if err != nil {
		return nil, err
	}
	steps := tutorialSteps(g)

	progress, err := m.store.GetProgress(ctx, req.GuideID, req.SessionID)
	if err != nil && !gatewayerr.Is(err, gatewayerr.ErrNotFound) {
		return nil, err
	}
	if progress == nil {
		progress = &models.LearningProgress{GuideID: req.GuideID, SessionID: req.SessionID, Status: models.ProgressStarted, Step: 0}
	}

	var hint string
	switch req.Action {
	case "start":
		progress.Step = 0
		progress.Status = models.ProgressStarted
	case "next":
		if progress.Step < len(steps)-1 {
			progress.Step++
		}
		progress.Status = models.ProgressInProgress
	case "previous":
		if progress.Step > 0 {
			progress.Step--
		}
		progress.Status = models.ProgressInProgress
	case "check":
		// no state change; just report current position
	case "hint":
		if progress.Step+1 < len(steps) {
			hint = firstSentence(steps[progress.Step+1])
		} else {
			hint = "this is the final step"
		}
	case "complete":
		progress.Step = len(steps) - 1
		progress.Status = models.ProgressCompleted
	case "reset":
		progress.Step = 0
		progress.Status = models.ProgressStarted
	default:
		return nil, fmt.Errorf("%w: unknown tutorial action %q", gatewayerr.ErrInvalidInput, req.Action)
	}

	if err := m.store.UpsertProgress(ctx, progress); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"progress":    progress,
		"currentStep": steps[progress.Step],
		"totalSteps":  len(steps),
		"hint":        hint,
	})
	return models.TextResult(string(payload)), nil
}

func firstSentence(s string) string {
	if idx := strings.IndexAny(s, ".\n"); idx > 0 {
		return strings.TrimSpace(s[:idx+1])
	}
	return s
}

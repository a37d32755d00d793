package guide

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

type fakeStore struct {
	guides   map[string]*models.GuideEntry
	progress map[string]*models.LearningProgress
}

func newFakeStore() *fakeStore {
	return &fakeStore{guides: make(map[string]*models.GuideEntry), progress: make(map[string]*models.LearningProgress)}
}

func (f *fakeStore) UpsertGuide(_ context.Context, g *models.GuideEntry) error {
	cp := *g
	f.guides[g.ID] = &cp
	return nil
}

func (f *fakeStore) CountGuides(_ context.Context) (int, error) { return len(f.guides), nil }

func (f *fakeStore) ListGuides(_ context.Context, category, difficulty string) ([]*models.GuideEntry, error) {
	var out []*models.GuideEntry
	for _, g := range f.guides {
		if category != "" && g.Category != category {
			continue
		}
		if difficulty != "" && g.Difficulty != difficulty {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeStore) GetGuide(_ context.Context, id string) (*models.GuideEntry, error) {
	g, ok := f.guides[id]
	if !ok {
		return nil, gatewayerr.ErrNotFound
	}
	return g, nil
}

func (f *fakeStore) UpsertProgress(_ context.Context, p *models.LearningProgress) error {
	cp := *p
	f.progress[p.GuideID+"|"+p.SessionID] = &cp
	return nil
}

func (f *fakeStore) GetProgress(_ context.Context, guideID, sessionID string) (*models.LearningProgress, error) {
	p, ok := f.progress[guideID+"|"+sessionID]
	if !ok {
		return nil, gatewayerr.ErrNotFound
	}
	return p, nil
}

func TestNewSeedsGuidesWhenEmpty(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	_, err := New(ctx, store, nil)
	require.NoError(t, err)
	assert.Len(t, store.guides, len(seedGuides))
}

func TestGuideSearchRanksByRelevance(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m, err := New(ctx, store, nil)
	require.NoError(t, err)

	args, _ := json.Marshal(map[string]any{"query": "red green refactor test cycle"})
	res, err := m.Handle(ctx, "guide_search", args)
	require.NoError(t, err)
	var out struct {
		Guides []*models.GuideEntry `json:"guides"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	require.NotEmpty(t, out.Guides)
	assert.Equal(t, "guide-tdd-cycle", out.Guides[0].ID)
}

func TestGuideTutorialStepperAdvancesAndResets(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m, err := New(ctx, store, nil)
	require.NoError(t, err)

	start, _ := json.Marshal(map[string]any{"action": "start", "guideId": "guide-memory-basics"})
	res, err := m.Handle(ctx, "guide_tutorial", start)
	require.NoError(t, err)
	var out struct {
		Progress   models.LearningProgress `json:"progress"`
		TotalSteps int                     `json:"totalSteps"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.Equal(t, 0, out.Progress.Step)
	assert.Equal(t, 3, out.TotalSteps)

	next, _ := json.Marshal(map[string]any{"action": "next", "guideId": "guide-memory-basics"})
	res, err = m.Handle(ctx, "guide_tutorial", next)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.Equal(t, 1, out.Progress.Step)

	complete, _ := json.Marshal(map[string]any{"action": "complete", "guideId": "guide-memory-basics"})
	res, err = m.Handle(ctx, "guide_tutorial", complete)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.Equal(t, models.ProgressCompleted, out.Progress.Status)

	reset, _ := json.Marshal(map[string]any{"action": "reset", "guideId": "guide-memory-basics"})
	res, err = m.Handle(ctx, "guide_tutorial", reset)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.Equal(t, 0, out.Progress.Step)
	assert.Equal(t, models.ProgressStarted, out.Progress.Status)
}

func TestGuideTutorialUnknownGuideFails(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, newFakeStore(), nil)
	require.NoError(t, err)

	args, _ := json.Marshal(map[string]any{"action": "start", "guideId": "does-not-exist"})
	_, err = m.Handle(ctx, "guide_tutorial", args)
	assert.ErrorIs(t, err, gatewayerr.ErrNotFound)
}

package planning

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

type fakeStore struct {
	tasks map[string]*models.TaskItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*models.TaskItem)}
}

func (f *fakeStore) CreateTask(_ context.Context, t *models.TaskItem) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.ParentID != nil {
		if _, ok := f.tasks[*t.ParentID]; !ok {
			return gatewayerr.ErrInvalidInput
		}
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	t.CreatedAt = time.Now().UTC()
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) GetTask(_ context.Context, id string) (*models.TaskItem, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, gatewayerr.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) Ancestors(_ context.Context, id string) ([]string, error) {
	var chain []string
	current := id
	for {
		t, ok := f.tasks[current]
		if !ok || t.ParentID == nil {
			return chain, nil
		}
		chain = append(chain, *t.ParentID)
		current = *t.ParentID
	}
}

func (f *fakeStore) UpdateTask(_ context.Context, t *models.TaskItem) error {
	if _, ok := f.tasks[t.ID]; !ok {
		return gatewayerr.ErrNotFound
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(_ context.Context, id string) error {
	if _, ok := f.tasks[id]; !ok {
		return gatewayerr.ErrNotFound
	}
	var subtree func(string)
	subtree = func(pid string) {
		for cid, t := range f.tasks {
			if t.ParentID != nil && *t.ParentID == pid {
				subtree(cid)
				delete(f.tasks, cid)
			}
		}
	}
	subtree(id)
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) ListTasks(_ context.Context) ([]*models.TaskItem, error) {
	out := make([]*models.TaskItem, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func createTask(t *testing.T, m *Manager, content string, parentID string) string {
	t.Helper()
	args := map[string]any{"content": content}
	if parentID != "" {
		args["parentId"] = parentID
	}
	payload, _ := json.Marshal(args)
	res, err := m.Handle(context.Background(), "planning_create", payload)
	require.NoError(t, err)
	var created models.TaskItem
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &created))
	return created.ID
}

func TestPlanningCycleRejection(t *testing.T) {
	ctx := context.Background()
	m := New(newFakeStore(), nil)

	a := createTask(t, m, "A", "")
	b := createTask(t, m, "B", a)

	args, _ := json.Marshal(map[string]any{"id": a, "parentId": b})
	_, err := m.Handle(ctx, "planning_update", args)
	assert.ErrorIs(t, err, gatewayerr.ErrCycleDetected)
}

func TestPlanningCascadeDelete(t *testing.T) {
	ctx := context.Background()
	m := New(newFakeStore(), nil)

	a := createTask(t, m, "A", "")
	b := createTask(t, m, "B", a)
	_ = createTask(t, m, "C", b)

	args, _ := json.Marshal(map[string]any{"id": a})
	res, err := m.Handle(ctx, "planning_delete", args)
	require.NoError(t, err)
	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.True(t, out.Success)

	tasks, err := m.store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestPlanningDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := New(newFakeStore(), nil)

	args, _ := json.Marshal(map[string]any{"id": "does-not-exist"})
	res, err := m.Handle(ctx, "planning_delete", args)
	require.NoError(t, err)
	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.False(t, out.Success)
}

func TestPlanningTreeRendersStatusGlyphsAndSummary(t *testing.T) {
	ctx := context.Background()
	m := New(newFakeStore(), nil)

	a := createTask(t, m, "A", "")
	_ = createTask(t, m, "B", a)

	res, err := m.Handle(ctx, "planning_tree", json.RawMessage(`{}`))
	require.NoError(t, err)
	var out struct {
		AsciiTree string                         `json:"asciiTree"`
		Summary   map[models.TaskStatus]int `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	assert.Contains(t, out.AsciiTree, "A")
	assert.Contains(t, out.AsciiTree, "B")
	assert.Equal(t, 2, out.Summary[models.TaskPending])
}

func TestPlanningUpdateStampsCompletionTimestamp(t *testing.T) {
	ctx := context.Background()
	m := New(newFakeStore(), nil)
	a := createTask(t, m, "A", "")

	completed := string(models.TaskCompleted)
	args, _ := json.Marshal(map[string]any{"id": a, "status": completed})
	res, err := m.Handle(ctx, "planning_update", args)
	require.NoError(t, err)
	var updated models.TaskItem
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &updated))
	assert.NotNil(t, updated.CompletedAt)
}

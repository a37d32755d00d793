package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgemcp/gateway/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProviderCascadeDeletesTools(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertProvider(ctx, &models.Provider{ID: "p1", Name: "Provider One"}))
	require.NoError(t, s.UpsertTool(ctx, &models.ToolDescriptor{ProviderID: "p1", Name: "read_file", Description: "reads a file"}))
	require.NoError(t, s.UpsertTool(ctx, &models.ToolDescriptor{ProviderID: "p1", Name: "write_file", Description: "writes a file"}))

	tools, err := s.ListTools(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	require.NoError(t, s.DeleteProvider(ctx, "p1"))

	tools, err = s.ListTools(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := &models.MemoryEntry{Key: "pref", Value: "dark"}
	require.NoError(t, s.CreateMemory(ctx, m))

	list, err := s.ListMemory(ctx, "", nil, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pref", list[0].Key)

	require.NoError(t, s.BumpMemoryAccess(ctx, m.ID))
	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.AccessCount)

	deleted, err := s.DeleteMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete of the same id is idempotent, not an error")

	list, err = s.ListMemory(ctx, "", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTaskCascadeDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := &models.TaskItem{ID: "A", Content: "A"}
	require.NoError(t, s.CreateTask(ctx, a))
	b := &models.TaskItem{ID: "B", Content: "B", ParentID: strPtr("A")}
	require.NoError(t, s.CreateTask(ctx, b))
	c := &models.TaskItem{ID: "C", Content: "C", ParentID: strPtr("B")}
	require.NoError(t, s.CreateTask(ctx, c))

	require.NoError(t, s.DeleteTask(ctx, "A"))

	tasks, err := s.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateTaskRejectsMissingParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.CreateTask(ctx, &models.TaskItem{ID: "X", Content: "X", ParentID: strPtr("does-not-exist")})
	assert.Error(t, err)
}

func TestUsageRecordsIncrementToolCounter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertProvider(ctx, &models.Provider{ID: "p1", Name: "P"}))
	require.NoError(t, s.UpsertTool(ctx, &models.ToolDescriptor{ProviderID: "p1", Name: "write_file", Description: "writes"}))

	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordUsage(ctx, &models.UsageLogEntry{ToolName: "write_file", Success: true, Arguments: "{}"}))
	}

	tool, err := s.GetTool(ctx, "write_file")
	require.NoError(t, err)
	assert.EqualValues(t, 10, tool.UsageCount)

	entries, err := s.ListUsage(ctx, "write_file", 5)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func strPtr(s string) *string { return &s }

package coordinator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgemcp/gateway/internal/features/tdd"
	"github.com/forgemcp/gateway/internal/features/science"
	"github.com/forgemcp/gateway/internal/hooks"
	"github.com/forgemcp/gateway/internal/store"
	"github.com/forgemcp/gateway/pkg/models"
)

type fakeRunner struct{}

func (fakeRunner) Run(ctx context.Context, testPath string) (bool, *float64, error) {
	return true, nil, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *Managers, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := hooks.NewBus(nil)
	c, managers, err := New(context.Background(), st, fakeRunner{}, science.NullComputeBackend(), bus, nil)
	require.NoError(t, err)
	return c, managers, st
}

func TestToolDefinitionsUnionsAllManagers(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	defs := c.ToolDefinitions()

	names := make(map[string]bool)
	for _, d := range defs {
		names[d.Name] = true
	}
	for _, want := range []string{"memory_save", "planning_create", "tdd_red", "agent_spawn", "guide_search", "science_run"} {
		require.True(t, names[want], "expected %s in combined tool definitions", want)
	}
}

func TestRouteReturnsNilForNonInternalProvider(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	result, err := c.Route(context.Background(), "proc:external", "whatever", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestRouteDispatchesToOwningManager(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	result, err := c.Route(context.Background(), "internal:memory", "memory_save", json.RawMessage(`{"key":"k","value":"v"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)
}

func TestAgentCompletedMarksLinkedTasksCompleted(t *testing.T) {
	c, managers, st := newTestCoordinator(t)

	task := &models.TaskItem{Content: "do the thing"}
	require.NoError(t, st.CreateTask(context.Background(), task))

	spawnResult, err := managers.Agent.Handle(context.Background(), "agent_spawn", json.RawMessage(`{"type":"worker","task":"x"}`))
	require.NoError(t, err)
	var spawned struct {
		Agent models.AgentRecord `json:"agent"`
	}
	require.NoError(t, json.Unmarshal([]byte(spawnResult.Content[0].Text), &spawned))

	completeArgs, _ := json.Marshal(map[string]any{
		"id":     spawned.Agent.ID,
		"result": map[string]any{"summary": "done", "todoIds": []string{task.ID}},
	})
	_, err = managers.Agent.Handle(context.Background(), "agent_complete", completeArgs)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		updated, err := st.GetTask(context.Background(), task.ID)
		return err == nil && updated.Status == models.TaskCompleted
	}, time.Second, 10*time.Millisecond)

	_ = c
}

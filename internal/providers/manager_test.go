package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgemcp/gateway/internal/bm25"
	"github.com/forgemcp/gateway/internal/catalog"
	"github.com/forgemcp/gateway/internal/store"
	"github.com/forgemcp/gateway/pkg/models"
)

type fakeProvider struct {
	tools     []models.ToolDescriptor
	listErr   error
	closed    bool
	connected bool
}

func (f *fakeProvider) List(ctx context.Context) ([]models.ToolDescriptor, error) {
	f.connected = true
	return f.tools, f.listErr
}

func (f *fakeProvider) Call(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error) {
	return models.TextResult("ok"), nil
}

func (f *fakeProvider) Close() error {
	f.closed = true
	f.connected = false
	return nil
}

func (f *fakeProvider) IsConnected() bool { return f.connected }

func newTestManager(t *testing.T, dial Dialer) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	idx := bm25.New()
	cat := catalog.New()
	return New(st, idx, cat, dial, nil), st
}

func TestConnectRegistersToolsAndIndex(t *testing.T) {
	fake := &fakeProvider{tools: []models.ToolDescriptor{
		{Name: "echo", Description: "echo text back", InputSchema: json.RawMessage(`{}`)},
	}}
	mgr, st := newTestManager(t, func(*models.Provider) ToolProvider { return fake })

	err := mgr.Connect(context.Background(), &models.Provider{ID: "proc:echo", Name: "Echo"})
	require.NoError(t, err)

	tools, err := st.ListTools(context.Background(), "proc:echo")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "echo", tools[0].Name)

	_, ok := mgr.catalog.Get("echo")
	require.True(t, ok)

	matches := mgr.index.Search("echo", 5, 0)
	require.NotEmpty(t, matches)
}

func TestConnectRejectsInternalPrefix(t *testing.T) {
	mgr, _ := newTestManager(t, func(*models.Provider) ToolProvider { return &fakeProvider{} })
	err := mgr.Connect(context.Background(), &models.Provider{ID: "internal:memory"})
	require.Error(t, err)
}

func TestConnectRejectsDuplicateToolNames(t *testing.T) {
	fake := &fakeProvider{tools: []models.ToolDescriptor{
		{Name: "dup", InputSchema: json.RawMessage(`{}`)},
		{Name: "dup", InputSchema: json.RawMessage(`{}`)},
	}}
	mgr, st := newTestManager(t, func(*models.Provider) ToolProvider { return fake })

	err := mgr.Connect(context.Background(), &models.Provider{ID: "proc:dup"})
	require.Error(t, err)
	require.True(t, fake.closed)

	providers, err := st.ListProviders(context.Background())
	require.NoError(t, err)
	require.Empty(t, providers)
}

func TestDisconnectRemovesToolsFromCatalogAndIndex(t *testing.T) {
	fake := &fakeProvider{tools: []models.ToolDescriptor{
		{Name: "echo", InputSchema: json.RawMessage(`{}`)},
	}}
	mgr, st := newTestManager(t, func(*models.Provider) ToolProvider { return fake })
	require.NoError(t, mgr.Connect(context.Background(), &models.Provider{ID: "proc:echo"}))

	require.NoError(t, mgr.Disconnect(context.Background(), "proc:echo"))
	require.True(t, fake.closed)

	tools, err := st.ListTools(context.Background(), "proc:echo")
	require.NoError(t, err)
	require.Empty(t, tools)

	_, ok := mgr.catalog.Get("echo")
	require.False(t, ok)
	require.Empty(t, mgr.index.Search("echo", 5, 0))
}

func TestDisconnectAllIsBestEffort(t *testing.T) {
	good := &fakeProvider{}
	bad := &fakeProvider{}
	calls := 0
	mgr, _ := newTestManager(t, func(d *models.Provider) ToolProvider {
		calls++
		if d.ID == "proc:good" {
			return good
		}
		return bad
	})
	require.NoError(t, mgr.Connect(context.Background(), &models.Provider{ID: "proc:good"}))
	require.NoError(t, mgr.Connect(context.Background(), &models.Provider{ID: "proc:bad"}))

	mgr.DisconnectAll(context.Background())
	require.True(t, good.closed)
	require.True(t, bad.closed)
}

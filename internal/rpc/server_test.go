package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forgemcp/gateway/internal/bm25"
	"github.com/forgemcp/gateway/internal/catalog"
	"github.com/forgemcp/gateway/internal/hooks"
	"github.com/forgemcp/gateway/internal/loader"
	"github.com/forgemcp/gateway/internal/store"
	"github.com/forgemcp/gateway/pkg/models"
)

type fakeCoordinator struct {
	result *models.ToolResult
	err    error
	called []string
}

func (f *fakeCoordinator) Route(ctx context.Context, providerID, toolName string, args json.RawMessage) (*models.ToolResult, error) {
	if providerID != "internal:test" {
		return nil, nil
	}
	f.called = append(f.called, toolName)
	return f.result, f.err
}

type fakeProviders struct {
	clients map[string]ProviderClient
}

func (f *fakeProviders) Client(providerID string) (ProviderClient, bool) {
	c, ok := f.clients[providerID]
	return c, ok
}

type fakeExternalClient struct {
	result *models.ToolResult
	err    error
}

func (f *fakeExternalClient) Call(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error) {
	return f.result, f.err
}

func newTestServer(t *testing.T, coord Coordinator, providers ProviderLookup) (*Server, *catalog.Catalog, *store.Store, *hooks.Bus) {
	t.Helper()
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cat := catalog.New()
	idx := bm25.New()
	ld := loader.New(nil)
	bus := hooks.NewBus(nil)

	srv := New(cat, idx, ld, coord, providers, st, bus, 4, 2*time.Second, nil)
	return srv, cat, st, bus
}

func putTool(cat *catalog.Catalog, idx *bm25.Index, providerID, name, desc string) {
	d := &models.ToolDescriptor{ProviderID: providerID, Name: name, Description: desc, InputSchema: json.RawMessage(`{"type":"object"}`)}
	cat.Put(d)
	idx.AddToolOrReplace(d)
}

func TestHandleListToolsNoHintReturnsFullCatalog(t *testing.T) {
	coord := &fakeCoordinator{}
	srv, cat, _, _ := newTestServer(t, coord, &fakeProviders{clients: map[string]ProviderClient{}})
	putTool(cat, bm25.New(), "internal:test", "alpha_tool", "does alpha things")
	putTool(cat, bm25.New(), "internal:test", "beta_tool", "does beta things")

	raw, err := srv.handleListTools(nil)
	require.NoError(t, err)

	var result ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	require.True(t, names["alpha_tool"])
	require.True(t, names["beta_tool"])
}

func TestHandleListToolsWithHintRanksRelevant(t *testing.T) {
	coord := &fakeCoordinator{}
	srv, cat, _, _ := newTestServer(t, coord, &fakeProviders{clients: map[string]ProviderClient{}})
	idx := bm25.New()
	d1 := &models.ToolDescriptor{ProviderID: "internal:test", Name: "alpha_tool", Description: "search the alpha corpus", InputSchema: json.RawMessage(`{}`)}
	d2 := &models.ToolDescriptor{ProviderID: "internal:test", Name: "beta_tool", Description: "unrelated housekeeping", InputSchema: json.RawMessage(`{}`)}
	cat.Put(d1)
	cat.Put(d2)
	idx.AddToolOrReplace(d1)
	idx.AddToolOrReplace(d2)
	srv.index = idx

	params, _ := json.Marshal(ListToolsParams{Query: "alpha corpus"})
	raw, err := srv.handleListTools(params)
	require.NoError(t, err)

	var result ListToolsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotEmpty(t, result.Tools)
	require.Equal(t, "alpha_tool", result.Tools[0].Name)
}

func TestDispatchInternalSuccess(t *testing.T) {
	coord := &fakeCoordinator{result: models.TextResult("ok")}
	srv, cat, _, bus := newTestServer(t, coord, &fakeProviders{clients: map[string]ProviderClient{}})
	idx := bm25.New()
	putTool(cat, idx, "internal:test", "alpha_tool", "does alpha things")
	srv.index = idx

	var fired []hooks.Kind
	bus.Register(hooks.PreToolUse, func(ctx context.Context, ev *hooks.Event) error {
		fired = append(fired, ev.Kind)
		return nil
	})
	bus.Register(hooks.PostToolUse, func(ctx context.Context, ev *hooks.Event) error {
		fired = append(fired, ev.Kind)
		return nil
	})

	result := srv.dispatch(context.Background(), "alpha_tool", json.RawMessage(`{}`))
	require.False(t, result.IsError)
	require.Equal(t, "ok", result.Content[0].Text)
	require.Equal(t, []string{"alpha_tool"}, coord.called)
	require.Equal(t, []hooks.Kind{hooks.PreToolUse, hooks.PostToolUse}, fired)
}

func TestDispatchUnknownToolFails(t *testing.T) {
	coord := &fakeCoordinator{}
	srv, _, _, bus := newTestServer(t, coord, &fakeProviders{clients: map[string]ProviderClient{}})

	var fired []hooks.Kind
	bus.Register(hooks.ErrorOccurred, func(ctx context.Context, ev *hooks.Event) error {
		fired = append(fired, ev.Kind)
		return nil
	})

	result := srv.dispatch(context.Background(), "missing_tool", json.RawMessage(`{}`))
	require.True(t, result.IsError)
	require.Equal(t, []hooks.Kind{hooks.ErrorOccurred}, fired)
}

func TestDispatchExternalProvider(t *testing.T) {
	coord := &fakeCoordinator{}
	client := &fakeExternalClient{result: models.TextResult("external ok")}
	srv, cat, _, _ := newTestServer(t, coord, &fakeProviders{clients: map[string]ProviderClient{"proc:ext": client}})
	idx := bm25.New()
	putTool(cat, idx, "proc:ext", "ext_tool", "an external tool")
	srv.index = idx

	result := srv.dispatch(context.Background(), "ext_tool", json.RawMessage(`{}`))
	require.False(t, result.IsError)
	require.Equal(t, "external ok", result.Content[0].Text)
}

func TestDispatchDisconnectedProviderFails(t *testing.T) {
	coord := &fakeCoordinator{}
	srv, cat, _, _ := newTestServer(t, coord, &fakeProviders{clients: map[string]ProviderClient{}})
	idx := bm25.New()
	putTool(cat, idx, "proc:ext", "ext_tool", "an external tool")
	srv.index = idx

	result := srv.dispatch(context.Background(), "ext_tool", json.RawMessage(`{}`))
	require.True(t, result.IsError)
}

func TestServeHandlesCallToolLine(t *testing.T) {
	coord := &fakeCoordinator{result: models.TextResult("ok")}
	srv, cat, _, _ := newTestServer(t, coord, &fakeProviders{clients: map[string]ProviderClient{}})
	idx := bm25.New()
	putTool(cat, idx, "internal:test", "alpha_tool", "does alpha things")
	srv.index = idx

	params, _ := json.Marshal(CallToolParams{Name: "alpha_tool", Arguments: json.RawMessage(`{}`)})
	req, _ := json.Marshal(Request{JSONRPC: "2.0", ID: 1, Method: "call_tool", Params: params})

	var out bytes.Buffer
	in := bytes.NewBufferString(string(req) + "\n")
	err := srv.Serve(context.Background(), in, &out)
	require.NoError(t, err)

	scanner := bufio.NewScanner(&out)
	require.True(t, scanner.Scan())
	var resp Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	require.Nil(t, resp.Error)

	var result models.ToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.False(t, result.IsError)
	require.Equal(t, "ok", result.Content[0].Text)
}

func TestServeUnknownMethodReturnsEnvelopeError(t *testing.T) {
	coord := &fakeCoordinator{}
	srv, _, _, _ := newTestServer(t, coord, &fakeProviders{clients: map[string]ProviderClient{}})

	req, _ := json.Marshal(Request{JSONRPC: "2.0", ID: 1, Method: "not_a_method"})
	var out bytes.Buffer
	in := bytes.NewBufferString(string(req) + "\n")
	err := srv.Serve(context.Background(), in, &out)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, errCodeMethodNotFound, resp.Error.Code)
}

package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/forgemcp/gateway/internal/bm25"
	"github.com/forgemcp/gateway/internal/catalog"
	"github.com/forgemcp/gateway/internal/gatewayerr"
	"github.com/forgemcp/gateway/pkg/models"
)

// Store is the persistence surface the Provider Manager depends on.
type Store interface {
	UpsertProvider(ctx context.Context, p *models.Provider) error
	DeleteProvider(ctx context.Context, id string) error
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	ListProviders(ctx context.Context) ([]*models.Provider, error)
	UpsertTool(ctx context.Context, t *models.ToolDescriptor) error
	ListTools(ctx context.Context, providerID string) ([]*models.ToolDescriptor, error)
	DeleteToolsByProvider(ctx context.Context, providerID string) error
}

// Manager owns the connect/disconnect lifecycle of external providers and
// keeps the catalog and BM25 index in step with whichever providers are
// currently live.
type Manager struct {
	store   Store
	index   *bm25.Index
	catalog *catalog.Catalog
	dial    Dialer
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]ToolProvider
}

// New constructs a Manager. dial is the constructor used for Connect; pass
// NewProcessProvider in production, a fake in tests.
func New(store Store, index *bm25.Index, cat *catalog.Catalog, dial Dialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if dial == nil {
		dial = NewProcessProvider
	}
	return &Manager{
		store:   store,
		index:   index,
		catalog: cat,
		dial:    dial,
		clients: make(map[string]ToolProvider),
		logger:  logger.With("component", "providers"),
	}
}

// Bootstrap rehydrates the catalog and BM25 index from persisted tool rows
// at startup, without reconnecting any external process: both caches are
// derivable projections, rebuilt on startup from persistent state. External
// providers whose process died across a restart surface as
// callable-by-name-only until reconnected.
func (m *Manager) Bootstrap(ctx context.Context) error {
	tools, err := m.store.ListTools(ctx, "")
	if err != nil {
		return fmt.Errorf("bootstrap catalog: %w", err)
	}
	for _, t := range tools {
		m.catalog.Put(t)
		m.index.AddToolOrReplace(t)
	}
	return nil
}

// Connect dials an external provider, lists its tools, and registers both
// the provider and its tools. Any failure rolls back everything this call
// did: the provider row, any partially-inserted tool rows, and the client.
func (m *Manager) Connect(ctx context.Context, descriptor *models.Provider) error {
	if strings.HasPrefix(descriptor.ID, "internal:") {
		return fmt.Errorf("%w: provider id %q is reserved for internal features", gatewayerr.ErrInvalidInput, descriptor.ID)
	}

	m.mu.Lock()
	if _, exists := m.clients[descriptor.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: provider %s is already connected", gatewayerr.ErrConflict, descriptor.ID)
	}
	m.mu.Unlock()

	client := m.dial(descriptor)
	tools, err := client.List(ctx)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list tools from provider %s: %w", descriptor.ID, err)
	}
	if err := rejectDuplicateNames(tools); err != nil {
		_ = client.Close()
		return err
	}
	if err := m.rejectNamesOwnedByOther(descriptor.ID, tools); err != nil {
		_ = client.Close()
		return err
	}

	if err := m.store.UpsertProvider(ctx, descriptor); err != nil {
		_ = client.Close()
		return err
	}

	inserted := make([]string, 0, len(tools))
	for i := range tools {
		tools[i].ProviderID = descriptor.ID
		if err := m.store.UpsertTool(ctx, &tools[i]); err != nil {
			m.rollbackConnect(ctx, descriptor.ID, client)
			return fmt.Errorf("register tool %s from provider %s: %w", tools[i].Name, descriptor.ID, err)
		}
		inserted = append(inserted, tools[i].Name)
	}

	m.mu.Lock()
	m.clients[descriptor.ID] = client
	m.mu.Unlock()

	for i := range tools {
		m.catalog.Put(&tools[i])
		m.index.AddToolOrReplace(&tools[i])
	}

	m.logger.Info("provider connected", "provider", descriptor.ID, "tools", len(tools))
	return nil
}

func (m *Manager) rollbackConnect(ctx context.Context, providerID string, client ToolProvider) {
	if err := m.store.DeleteProvider(ctx, providerID); err != nil {
		m.logger.Error("rollback: failed to delete provider", "provider", providerID, "error", err)
	}
	_ = client.Close()
}

// rejectNamesOwnedByOther enforces the global uniqueness of tool_name: a tool
// name already registered to a different provider cannot be silently taken
// over by this Connect call. A provider reconnecting under its own id is
// fine and falls through to the ordinary UpsertTool overwrite path.
func (m *Manager) rejectNamesOwnedByOther(providerID string, tools []models.ToolDescriptor) error {
	for _, t := range tools {
		if existing, ok := m.catalog.Get(t.Name); ok && existing.ProviderID != providerID {
			return fmt.Errorf("%w: tool %q is already registered by provider %s", gatewayerr.ErrConflict, t.Name, existing.ProviderID)
		}
	}
	return nil
}

func rejectDuplicateNames(tools []models.ToolDescriptor) error {
	seen := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: duplicate tool name %q in provider batch", gatewayerr.ErrConflict, t.Name)
		}
		seen[t.Name] = struct{}{}
	}
	return nil
}

// Disconnect closes the provider's client and removes its tools from the
// catalog, the BM25 index, and the store (cascading via the providers->tools
// foreign key).
func (m *Manager) Disconnect(ctx context.Context, providerID string) error {
	m.mu.Lock()
	client, ok := m.clients[providerID]
	delete(m.clients, providerID)
	m.mu.Unlock()

	if ok {
		if err := client.Close(); err != nil {
			m.logger.Warn("error closing provider client", "provider", providerID, "error", err)
		}
	}

	for _, name := range m.catalog.RemoveByProvider(providerID) {
		m.index.Remove(name)
	}

	if err := m.store.DeleteProvider(ctx, providerID); err != nil {
		return err
	}
	m.logger.Info("provider disconnected", "provider", providerID)
	return nil
}

// DisconnectAll disconnects every connected provider, best-effort: a
// failure on one provider does not prevent cleanup of the others.
func (m *Manager) DisconnectAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Disconnect(ctx, id); err != nil {
			m.logger.Error("disconnect failed", "provider", id, "error", err)
		}
	}
}

// Client returns the connected client for providerID, if any. Used by the
// Gateway RPC layer to dispatch a call to an external provider.
func (m *Manager) Client(providerID string) (ToolProvider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[providerID]
	return c, ok
}

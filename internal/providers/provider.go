// Package providers implements the external Provider Manager:
// connect/disconnect lifecycle for downstream tool providers, and the
// ToolProvider capability the core requires of each of them.
package providers

import (
	"context"
	"encoding/json"

	"github.com/forgemcp/gateway/pkg/models"
)

// ToolProvider is the capability the core requires of every external tool
// source. The concrete transport — child-process-with-line-framed-JSON, or
// anything else — is decoupled from the core; the core only ever talks to
// this interface.
type ToolProvider interface {
	List(ctx context.Context) ([]models.ToolDescriptor, error)
	Call(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error)
	Close() error
	IsConnected() bool
}

// Dialer constructs a ToolProvider bound to a provider's invocation
// descriptor without connecting it yet. Connect performs the actual dial so
// a failure there can be rolled back cleanly.
type Dialer func(descriptor *models.Provider) ToolProvider

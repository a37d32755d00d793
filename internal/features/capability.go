// Package features defines the uniform capability every first-party feature
// manager implements, plus the JSON-schema validation shared by all of them.
package features

import (
	"context"
	"encoding/json"

	"github.com/forgemcp/gateway/pkg/models"
)

// Capability is the shape every feature manager exposes: a static list of
// tool definitions, and a single dispatch point by tool name. The Feature
// Coordinator holds these keyed by provider id and never uses reflection to
// pick one.
type Capability interface {
	ToolDefinitions() []models.ToolDescriptor
	Handle(ctx context.Context, name string, args json.RawMessage) (*models.ToolResult, error)
}

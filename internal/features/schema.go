package features

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/forgemcp/gateway/internal/gatewayerr"
)

var schemaCache sync.Map

// ValidateArgs compiles (and caches) the tool's input schema and validates
// args against it, surfacing a schema failure as ErrInvalidInput.
func ValidateArgs(toolName string, schema json.RawMessage, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileSchema(toolName, schema)
	if err != nil {
		return fmt.Errorf("%w: compile schema for %s: %v", gatewayerr.ErrInternal, toolName, err)
	}

	var decoded any
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("%w: %s: malformed arguments: %v", gatewayerr.ErrInvalidInput, toolName, err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %s: %v", gatewayerr.ErrInvalidInput, toolName, err)
	}
	return nil
}

func compileSchema(toolName string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := toolName + ":" + string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString(toolName+".schema.json", string(schema))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

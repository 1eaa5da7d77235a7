package adapter

import (
	"fmt"

	"riviera/internal/logging"
	"riviera/internal/tool"
)

// Constructor builds an uninitialized adapter of one kind.
type Constructor func(logger logging.Logger) Adapter

// Factory selects an adapter constructor by tool type.
type Factory struct {
	constructors map[string]Constructor
}

// NewFactory returns a factory with all known adapter kinds registered.
func NewFactory() *Factory {
	return &Factory{
		constructors: map[string]Constructor{
			tool.TypeREST:    func(l logging.Logger) Adapter { return NewREST(l) },
			tool.TypeGraphQL: func(l logging.Logger) Adapter { return NewGraphQL(l) },
			tool.TypeMCP:     func(l logging.Logger) Adapter { return NewMCP(l) },
		},
	}
}

// Register adds or replaces a constructor for a tool type. Used by tests
// and by deployments carrying private adapter kinds.
func (f *Factory) Register(toolType string, ctor Constructor) {
	f.constructors[toolType] = ctor
}

// New builds an adapter for the given tool type.
func (f *Factory) New(toolType string, logger logging.Logger) (Adapter, error) {
	ctor, ok := f.constructors[toolType]
	if !ok {
		return nil, fmt.Errorf("unknown external tool type: %s", toolType)
	}
	return ctor(logger), nil
}

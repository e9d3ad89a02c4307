package analyticsmcp

import (
	"context"

	"github.com/wagiedev/analytics-mcp/internal/registry"
)

// ToolFunc is the function signature for tool implementations. It receives
// the invocation context and the client's arguments as a JSON-compatible map,
// and returns a JSON-compatible result map.
//
// A returned error is delivered to the client as a structured tool failure;
// it never closes the client's session.
type ToolFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool is anything registrable with a Server. Most callers use NewTool; the
// interface exists so embedders with their own tool types can register them
// directly.
type Tool interface {
	// Name returns the tool name clients invoke. Must be unique per server.
	Name() string

	// Description returns the human-readable tool description.
	Description() string

	// InputSchema returns the JSON Schema for the tool's arguments as a
	// plain map, or nil for an unconstrained object.
	InputSchema() map[string]any

	// Execute runs one invocation.
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ServerTool is the standard Tool implementation created by NewTool.
type ServerTool struct {
	ToolName        string
	ToolDescription string
	ToolSchema      map[string]any
	ToolFunc        ToolFunc
}

var _ Tool = (*ServerTool)(nil)

// Name returns the tool name.
func (t *ServerTool) Name() string {
	return t.ToolName
}

// Description returns the tool description.
func (t *ServerTool) Description() string {
	return t.ToolDescription
}

// InputSchema returns the JSON Schema for the tool input.
func (t *ServerTool) InputSchema() map[string]any {
	return t.ToolSchema
}

// Execute runs the tool function.
func (t *ServerTool) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.ToolFunc(ctx, args)
}

// NewTool creates a ServerTool.
//
// The schema is a JSON Schema object as a plain map; ObjectSchema builds the
// common flat-object form. A nil schema means the tool accepts any object.
//
// Example:
//
//	sum := analyticsmcp.NewTool("sum", "Add two numbers",
//	    analyticsmcp.ObjectSchema(map[string]any{
//	        "a": map[string]any{"type": "number"},
//	        "b": map[string]any{"type": "number"},
//	    }, []string{"a", "b"}),
//	    func(ctx context.Context, args map[string]any) (map[string]any, error) {
//	        a, _ := args["a"].(float64)
//	        b, _ := args["b"].(float64)
//	        return map[string]any{"sum": a + b}, nil
//	    },
//	)
func NewTool(name, description string, schema map[string]any, fn ToolFunc) *ServerTool {
	return &ServerTool{
		ToolName:        name,
		ToolDescription: description,
		ToolSchema:      schema,
		ToolFunc:        fn,
	}
}

// ObjectSchema builds a JSON Schema for an object with the given properties.
// Both arguments may be nil for an unconstrained object.
func ObjectSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{"type": "object"}
	if len(properties) > 0 {
		schema["properties"] = properties
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// descriptor converts a Tool into its registry form.
func descriptor(t Tool) registry.Descriptor {
	return registry.Descriptor{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		Handler:     t.Execute,
	}
}

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 64

	// MaxToolParamsSize is the maximum size of tool parameters JSON (1MB).
	MaxToolParamsSize = 1 << 20
)

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ToolRegistry manages available tools with thread-safe registration and lookup.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	// compiled parameter schemas keyed by tool name
	schemas sync.Map
}

// NewToolRegistry creates a new empty tool registry ready for tool registration.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry by its name. The name must be a
// valid function name and the schema must compile. A tool with the same
// name is replaced.
func (r *ToolRegistry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength || !toolNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidToolName, name)
	}
	compiled, err := compileToolSchema(name, tool.Schema())
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	if compiled != nil {
		r.schemas.Store(name, compiled)
	} else {
		r.schemas.Delete(name)
	}
	return nil
}

// Get returns a tool by name and a boolean indicating if it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Validate checks params against the named tool's schema.
func (r *ToolRegistry) Validate(name string, params json.RawMessage) error {
	if len(params) > MaxToolParamsSize {
		return fmt.Errorf("%w: parameters exceed %d bytes", ErrInvalidArgs, MaxToolParamsSize)
	}
	cached, ok := r.schemas.Load(name)
	if !ok {
		return nil
	}
	schema, ok := cached.(*jsonschema.Schema)
	if !ok {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(normalizeParams(params), &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

// Execute validates params and runs the named tool.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if err := r.Validate(name, params); err != nil {
		return nil, err
	}
	return tool.Execute(ctx, normalizeParams(params))
}

// AsLLMTools returns all registered tools sorted by name, for passing to
// LLM providers.
func (r *ToolRegistry) AsLLMTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// normalizeParams maps an absent argument string to an empty object.
func normalizeParams(params json.RawMessage) json.RawMessage {
	if len(params) == 0 {
		return json.RawMessage(`{}`)
	}
	return params
}

func compileToolSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	return jsonschema.CompileString(name+".schema.json", string(schema))
}

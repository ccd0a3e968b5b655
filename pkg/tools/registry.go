package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stride-agent/stride/pkg/types"
)

// ToolRegistry holds the tools available to a run. Execution goes
// through the Dispatcher, which looks tools up here and validates
// arguments before invoking them.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]types.Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]types.Tool)}
}

// Register adds a tool, replacing any tool with the same name.
func (r *ToolRegistry) Register(tool types.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (types.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tool names.
func (r *ToolRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// GetDefinitions returns tool definitions in the wire shape providers
// expect, sorted by name so the prompt prefix is stable across calls.
func (r *ToolRegistry) GetDefinitions() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	definitions := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		definitions = append(definitions, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name(),
				"description": tool.Description(),
				"parameters":  tool.Parameters(),
			},
		})
	}
	return definitions
}

// ValidateArgs checks args against a tool's JSON schema: required
// fields must be present and provided values must match the declared
// primitive types. Unknown properties pass through untouched.
func ValidateArgs(params map[string]interface{}, args map[string]interface{}) error {
	if missing := missingRequired(params, args); len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	properties, _ := params["properties"].(map[string]interface{})
	for key, val := range args {
		prop, ok := properties[key].(map[string]interface{})
		if !ok {
			continue
		}
		declared, _ := prop["type"].(string)
		if declared == "" {
			continue
		}
		if err := checkType(key, val, declared); err != nil {
			return err
		}
	}
	return nil
}

func missingRequired(params, args map[string]interface{}) []string {
	var fields []string
	switch req := params["required"].(type) {
	case []string:
		fields = req
	case []interface{}:
		for _, v := range req {
			if s, ok := v.(string); ok {
				fields = append(fields, s)
			}
		}
	}
	var missing []string
	for _, field := range fields {
		if _, ok := args[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// checkType matches a decoded JSON value against a schema type name.
// Numbers arrive as float64, so integer checks test for a whole value.
func checkType(key string, val interface{}, declared string) error {
	switch declared {
	case "string":
		if _, ok := val.(string); !ok {
			return fmt.Errorf("field %q must be a string", key)
		}
	case "integer":
		f, ok := val.(float64)
		if !ok || f != float64(int(f)) {
			return fmt.Errorf("field %q must be an integer", key)
		}
	case "number":
		if _, ok := val.(float64); !ok {
			return fmt.Errorf("field %q must be a number", key)
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean", key)
		}
	}
	return nil
}

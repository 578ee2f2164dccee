package tools

import (
	"context"
	"fmt"
	"strings"
)

// Tool is an invocable diagnostic capability.
type Tool interface {
	Name() string
	Description() string
	// Schema describes the arguments for prompting. It is not validated.
	Schema() Schema
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// ResourceTool is implemented by tools that read a named cluster resource, so
// the security gate can apply resource-level access rules before dispatch.
type ResourceTool interface {
	Tool
	Resource(args map[string]any) (kind, name string)
}

// CommandTool is implemented by tools that run a shell command inside a
// container. The gate validates the command against the exec allow list.
type CommandTool interface {
	Tool
	Command(args map[string]any) string
}

// Schema is an advisory JSON-schema-like argument description.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Requires reports whether the schema lists name as a required argument.
func (s Schema) Requires(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Registry maps tool names to tools. It is populated at startup and read-only
// afterwards, so lookups need no locking.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry pre-populated with the given tools.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique and non-empty.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Describe renders one "- name: description" line per tool for prompts.
func (r *Registry) Describe() string {
	var b strings.Builder
	for i, name := range r.order {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", name, r.tools[name].Description())
	}
	return b.String()
}

// StringArg returns a string argument or def when it is absent or not a string.
func StringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// IntArg returns an integer argument. JSON decoding yields float64, so both
// float and int forms are accepted.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// BoolArg returns a boolean argument, accepting "true"/"false" strings.
func BoolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// Package tools – registry.go holds the fixed catalog of tools advertised to
// the conversational model. The catalog is built once at startup and frozen.
package tools

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDuplicateName is returned when a tool name is registered twice.
	ErrDuplicateName = errors.New("tool already registered")

	// ErrNotFound is returned when a tool name is not in the catalog.
	ErrNotFound = errors.New("tool not found")

	// ErrFrozen is returned by Register once the catalog is sealed.
	ErrFrozen = errors.New("tool registry is frozen")
)

// ParamType is the JSON schema type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Param describes one named parameter of a tool.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// Spec is the contract of a single tool.
type Spec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params,omitempty"`

	// Dangerous tools ask the user for confirmation before acting.
	Dangerous bool `json:"dangerous,omitempty"`

	// Category groups tools in the help listing (session, files, system, windows).
	Category string `json:"category,omitempty"`
}

// RequiredParams lists the names of required parameters in declaration order.
func (s Spec) RequiredParams() []string {
	var out []string
	for _, p := range s.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Registry maps tool names to specs, preserving registration order.
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]Spec
	order  []string
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds a spec. Names must be unique.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %s: %w", spec.Name, ErrFrozen)
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("register %s: %w", spec.Name, ErrDuplicateName)
	}
	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return spec, nil
}

// Specs returns all specs in registration order.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Freeze seals the registry. Later Register calls fail with ErrFrozen.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

package orchestrator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/signalpilot/signalpilot/internal/action"
)

// ActionRegistry is the ordered roster of actions the model may call.
// It is filled at start and only read afterwards.
type ActionRegistry struct {
	mu      sync.RWMutex
	order   []string
	actions map[string]*action.Definition
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{
		actions: make(map[string]*action.Definition),
	}
}

func (r *ActionRegistry) Register(def *action.Definition) error {
	if def == nil {
		return fmt.Errorf("register: nil action definition")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[def.Name()]; exists {
		return fmt.Errorf("action %q already registered", def.Name())
	}
	r.actions[def.Name()] = def
	r.order = append(r.order, def.Name())
	return nil
}

func (r *ActionRegistry) Get(name string) (*action.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.actions[name]
	return def, ok
}

// List returns the definitions in registration order.
func (r *ActionRegistry) List() []*action.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*action.Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.actions[name])
	}
	return defs
}

func (r *ActionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func (r *ActionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Descriptions concatenates the rendered descriptions in registration
// order, separated by a blank line.
func (r *ActionRegistry) Descriptions() string {
	defs := r.List()
	parts := make([]string, len(defs))
	for i, def := range defs {
		parts[i] = def.Description()
	}
	return strings.Join(parts, "\n")
}

// Schemas returns the function-calling definitions in registration order.
func (r *ActionRegistry) Schemas() []action.ToolSchema {
	defs := r.List()
	out := make([]action.ToolSchema, len(defs))
	for i, def := range defs {
		out[i] = def.ToolSchema()
	}
	return out
}

// Package router picks the model serving each role of the pipeline from
// the weighted model catalog.
package router

import (
	"fmt"
	"sort"

	"github.com/signalpilot/signalpilot/internal/provider"
)

// Role is a consumer of a chat model.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleCoder    Role = "coder"
	RoleSelector Role = "selector"
	RoleChat     Role = "chat"
)

// Roles lists every role in wiring order.
func Roles() []Role {
	return []Role{RoleSelector, RolePlanner, RoleCoder, RoleChat}
}

type CatalogModel struct {
	Ref      provider.ModelRef
	Alias    string
	Weight   int    // higher = preferred
	Template string // chat template name, empty for the chat endpoint
}

// Override forces a model for one request, e.g. from a --model flag.
type Override struct {
	Model provider.ModelRef
	Scope string // "request", "session"
}

type WeightedRouter struct {
	catalog []CatalogModel
	pins    map[Role]provider.ModelRef
}

func NewWeightedRouter(catalog []CatalogModel, pins map[Role]provider.ModelRef) *WeightedRouter {
	sorted := make([]CatalogModel, len(catalog))
	copy(sorted, catalog)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight > sorted[j].Weight
		}
		return sorted[i].Ref < sorted[j].Ref
	})

	return &WeightedRouter{
		catalog: sorted,
		pins:    pins,
	}
}

// Route returns the override, else the role's pinned model, else the
// heaviest catalog model.
func (r *WeightedRouter) Route(role Role, override *Override) (provider.ModelRef, error) {
	if override != nil && override.Model != "" {
		return r.Resolve(string(override.Model)), nil
	}

	if pin, ok := r.pins[role]; ok && pin != "" {
		return r.Resolve(string(pin)), nil
	}

	if len(r.catalog) == 0 {
		return "", fmt.Errorf("no model for role %q: catalog is empty and nothing is pinned", role)
	}
	return r.catalog[0].Ref, nil
}

// Resolve maps a catalog alias to its ref. Anything else is returned as a
// ref unchanged.
func (r *WeightedRouter) Resolve(nameOrRef string) provider.ModelRef {
	for _, m := range r.catalog {
		if m.Alias != "" && m.Alias == nameOrRef {
			return m.Ref
		}
	}
	return provider.ModelRef(nameOrRef)
}

func (r *WeightedRouter) NextModel(current provider.ModelRef) (provider.ModelRef, error) {
	for i, m := range r.catalog {
		if m.Ref == current && i+1 < len(r.catalog) {
			return r.catalog[i+1].Ref, nil
		}
	}
	return "", fmt.Errorf("no next model available after %s", current)
}

// Fallbacks lists the catalog models to try after primary, heaviest
// first.
func (r *WeightedRouter) Fallbacks(primary provider.ModelRef) []provider.ModelRef {
	out := make([]provider.ModelRef, 0, len(r.catalog))
	for _, m := range r.catalog {
		if m.Ref != primary {
			out = append(out, m.Ref)
		}
	}
	return out
}

// Lookup returns the catalog entry of ref.
func (r *WeightedRouter) Lookup(ref provider.ModelRef) (CatalogModel, bool) {
	for _, m := range r.catalog {
		if m.Ref == ref {
			return m, true
		}
	}
	return CatalogModel{}, false
}

func (r *WeightedRouter) Models() []CatalogModel {
	return r.catalog
}

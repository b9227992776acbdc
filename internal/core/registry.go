package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the entity definitions a Service can import.
// A Registry is built once at startup and passed to the components that need it.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]EntityDefinition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]EntityDefinition)}
}

// Register adds an entity definition.
// Panics if the key is already registered or the definition is incomplete.
func (r *Registry) Register(def EntityDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Info.Key]; exists {
		panic(fmt.Sprintf("entity already registered: %s", def.Info.Key))
	}
	if def.Build == nil || def.Insert == nil || def.Lookup == nil {
		panic(fmt.Sprintf("entity %s: Build, Insert and Lookup are required", def.Info.Key))
	}

	if len(def.Info.Columns) == 0 {
		def.Info.Columns = make([]string, len(def.Fields))
		for i, f := range def.Fields {
			def.Info.Columns[i] = f.Name
		}
	}
	if len(def.Info.Required) == 0 {
		for _, f := range def.Fields {
			if f.Required {
				def.Info.Required = append(def.Info.Required, f.Name)
			}
		}
	}

	r.defs[def.Info.Key] = def
}

// Get returns a definition by key.
func (r *Registry) Get(key string) (EntityDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[key]
	return def, ok
}

// All returns every definition in dependency order.
func (r *Registry) All() []EntityDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EntityDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Order != result[j].Info.Order {
			return result[i].Info.Order < result[j].Info.Order
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Keys returns the registered entity keys in dependency order.
func (r *Registry) Keys() []string {
	defs := r.All()
	keys := make([]string, len(defs))
	for i, d := range defs {
		keys[i] = d.Info.Key
	}
	return keys
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

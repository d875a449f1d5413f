package forge

import (
	"errors"
	"fmt"
)

// ErrBranchNotFound is returned by Adapter.BranchTip when the branch
// does not exist on the forge.
var ErrBranchNotFound = errors.New("branch not found")

// Registry holds the configured adapters, resolved once at startup and
// injected into every component that talks to a forge.
type Registry struct {
	adapters map[Kind]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Kind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// Get returns the adapter for the given forge kind.
func (r *Registry) Get(kind Kind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter configured for forge %q", kind)
	}
	return a, nil
}

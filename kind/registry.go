package kind

import (
	"errors"
	"fmt"
	"sync"
)

// Registry maps kinds to their descriptors.
type Registry struct {
	m     sync.RWMutex
	kinds map[Kind]Descriptor
	order []Kind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[Kind]Descriptor)}
}

// Register adds a descriptor.
func (r *Registry) Register(d Descriptor) error {
	if d.Kind == "" {
		return errors.New("empty kind")
	}
	if d.build == nil && d.open == nil {
		return fmt.Errorf("kind %s has no constructor", d.Kind)
	}
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.kinds[d.Kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, d.Kind)
	}
	r.kinds[d.Kind] = d
	r.order = append(r.order, d.Kind)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic("kind registry: " + err.Error())
	}
}

// Lookup returns descriptor of the kind.
func (r *Registry) Lookup(k Kind) (Descriptor, error) {
	r.m.RLock()
	defer r.m.RUnlock()
	d, ok := r.kinds[k]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return d, nil
}

// MustLookup is like Lookup but panics on unknown kind. Unknown kinds
// reaching the engine are programming errors.
func (r *Registry) MustLookup(k Kind) Descriptor {
	d, err := r.Lookup(k)
	if err != nil {
		panic("kind registry: " + err.Error())
	}
	return d
}

// Kinds returns registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	r.m.RLock()
	defer r.m.RUnlock()
	kinds := make([]Kind, len(r.order))
	copy(kinds, r.order)
	return kinds
}

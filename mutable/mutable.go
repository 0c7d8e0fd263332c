// Package mutable carries state changes from control goroutines into the
// render goroutine. Every object that can be mutated while rendering owns
// a Context; mutations are closures tagged with that context and applied
// in the order they were put.
package mutable

import (
	"crypto/rand"
)

// zero value for context is immutable.
var immutable = Context{}

type (
	// Context can be embedded to make structure behaviour mutable.
	Context [16]byte

	// Mutation is mutator function associated with a certain mutable context.
	Mutation struct {
		Context
		mutator MutatorFunc
	}

	// Mutations is an ordered list of mutations.
	Mutations []Mutation

	// MutatorFunc mutates the object.
	MutatorFunc func()
)

// Mutable returns new mutable context.
func Mutable() Context {
	var id [16]byte
	rand.Read(id[:])
	return id
}

// Immutable returns immutable context.
func Immutable() Context {
	return immutable
}

// Mutate associates provided mutator with context and returns mutation.
func (c Context) Mutate(m MutatorFunc) Mutation {
	if c == immutable {
		panic("mutate immutable")
	}
	return Mutation{
		Context: c,
		mutator: m,
	}
}

// IsMutable returns true if object is mutable.
func (c Context) IsMutable() bool {
	return c != immutable
}

// Apply mutator function.
func (m Mutation) Apply() {
	m.mutator()
}

// Put mutation to the list. Mutations of immutable contexts are ignored.
func (ms Mutations) Put(m Mutation) Mutations {
	if m.Context == immutable || m.mutator == nil {
		return ms
	}
	return append(ms, m)
}

// Apply executes all mutations in order.
func (ms Mutations) Apply() {
	for _, m := range ms {
		m.mutator()
	}
}

// ApplyTo executes mutations of provided context and removes them from
// the list.
func (ms Mutations) ApplyTo(c Context) Mutations {
	if c == immutable {
		return ms
	}
	rest := ms[:0]
	for _, m := range ms {
		if m.Context == c {
			m.mutator()
			continue
		}
		rest = append(rest, m)
	}
	return rest
}

// Detach removes mutations of provided context without applying them.
func (ms Mutations) Detach(c Context) Mutations {
	rest := ms[:0]
	for _, m := range ms {
		if m.Context != c {
			rest = append(rest, m)
		}
	}
	return rest
}

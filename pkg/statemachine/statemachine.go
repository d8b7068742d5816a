// Package statemachine provides a minimal state-function machine in the
// style popularized by Rob Pike's lexer talk: states are functions over the
// owning entity, and each returns the next state function (nil terminates).
package statemachine

import (
	"sync"
)

// StateFn is a state over the entity T. Executing it returns the next state.
type StateFn[T any] func(*T) StateFn[T]

// Machine drives an entity through its state functions. It is safe for
// concurrent use.
type Machine[T any] struct {
	entity  *T
	stateFn StateFn[T]
	mu      sync.RWMutex
}

// New creates a machine for entity starting in the given state.
func New[T any](entity *T, initial StateFn[T]) *Machine[T] {
	return &Machine[T]{
		entity:  entity,
		stateFn: initial,
	}
}

// Dispatch sets the given state as current, executes it once, and stores the
// state it returns.
func (m *Machine[T]) Dispatch(stateFn StateFn[T]) {
	m.mu.Lock()
	m.stateFn = stateFn
	m.mu.Unlock()

	if stateFn == nil {
		return
	}

	next := stateFn(m.entity)

	m.mu.Lock()
	m.stateFn = next
	m.mu.Unlock()
}

// Step executes the current state once and transitions to its successor.
func (m *Machine[T]) Step() {
	m.Dispatch(m.Current())
}

// Current returns the current state function.
func (m *Machine[T]) Current() StateFn[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateFn
}

// Set replaces the current state without executing anything.
func (m *Machine[T]) Set(stateFn StateFn[T]) {
	m.mu.Lock()
	m.stateFn = stateFn
	m.mu.Unlock()
}

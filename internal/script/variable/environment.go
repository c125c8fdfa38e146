package variable

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUndefined is returned when a name is not bound in any scope of the chain.
var ErrUndefined = errors.New("undefined variable")

// Environment is a single scope frame. Frames are linked to their enclosing
// frame; the one frame without a parent is the global scope. A child frame
// holds a pointer to its parent, so writes made through either are visible
// to both without copying.
type Environment struct {
	values    map[string]any
	enclosing *Environment
}

// NewGlobal creates a root scope.
func NewGlobal() *Environment {
	return &Environment{values: make(map[string]any)}
}

// NewEnclosed creates a child scope of parent. parent must not be nil: a
// chain has exactly one global frame.
func NewEnclosed(parent *Environment) *Environment {
	if parent == nil {
		panic("variable: NewEnclosed called with nil parent")
	}
	return &Environment{values: make(map[string]any), enclosing: parent}
}

// ---------------------------------------------------------------------------
// Variable operations
// ---------------------------------------------------------------------------

// Define binds name in this scope only, shadowing any outer binding and
// replacing an existing binding in this scope.
func (e *Environment) Define(name string, value any) {
	e.values[name] = value
}

// Get walks from this scope outward and returns the first binding found.
// A binding that holds nil is a valid result; only a name that no scope
// contains is an error.
func (e *Environment) Get(name string) (any, error) {
	for s := e; s != nil; s = s.enclosing {
		if val, ok := s.values[name]; ok {
			return val, nil
		}
	}
	return nil, fmt.Errorf("%w '%s'", ErrUndefined, name)
}

// Assign overwrites name in the nearest scope that defines it. It never
// creates a binding.
func (e *Environment) Assign(name string, value any) error {
	for s := e; s != nil; s = s.enclosing {
		if _, ok := s.values[name]; ok {
			s.values[name] = value
			return nil
		}
	}
	return fmt.Errorf("%w '%s'", ErrUndefined, name)
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// IsGlobal reports whether this is the root scope.
func (e *Environment) IsGlobal() bool {
	return e.enclosing == nil
}

// Enclosing returns the parent scope, or nil for the global scope.
func (e *Environment) Enclosing() *Environment {
	return e.enclosing
}

// Depth returns the number of frames from this scope to the global scope,
// counting both ends.
func (e *Environment) Depth() int {
	n := 0
	for s := e; s != nil; s = s.enclosing {
		n++
	}
	return n
}

// Names returns every name visible from this scope, innermost scope first.
// Names within one scope are sorted, and a shadowed name appears only once,
// at the scope that shadows it.
func (e *Environment) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for s := e; s != nil; s = s.enclosing {
		local := make([]string, 0, len(s.values))
		for name := range s.values {
			if !seen[name] {
				seen[name] = true
				local = append(local, name)
			}
		}
		sort.Strings(local)
		names = append(names, local...)
	}
	return names
}

package function

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a function name is not registered
var ErrNotFound = errors.New("function not found")

// Namespace holds the functions that front ends may bind to by name
type Namespace struct {
	mu    sync.RWMutex
	funcs map[string]*Function
}

// NewNamespace creates an empty namespace
func NewNamespace() *Namespace {
	return &Namespace{funcs: make(map[string]*Function)}
}

// Register adds fn, replacing any function with the same name
func (n *Namespace) Register(fn *Function) error {
	if fn == nil || fn.Name == "" {
		return errors.New("function must have a name")
	}
	if fn.Call == nil {
		return fmt.Errorf("function %s has no body", fn.Name)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.funcs[fn.Name] = fn
	return nil
}

// Lookup returns the named function. Names may be dotted ("obj.method").
func (n *Namespace) Lookup(name string) (*Function, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	fn, ok := n.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fn, nil
}

// Remove deletes the named function
func (n *Namespace) Remove(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.funcs, name)
}

// Names returns the registered names in sorted order
func (n *Namespace) Names() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	names := make([]string, 0, len(n.funcs))
	for name := range n.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

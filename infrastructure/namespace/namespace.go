// Package namespace provides the service registry agents, stations and the
// pool are bound into.
package namespace

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry errors.
var (
	// ErrNotBound is returned when no value is bound under a name.
	ErrNotBound = errors.New("name not bound")

	// ErrWrongType is returned when a bound value has an unexpected type.
	ErrWrongType = errors.New("bound value has wrong type")

	// ErrBlankName is returned when binding an empty name.
	ErrBlankName = errors.New("blank name")
)

// Namespace is a concurrent name to value registry.
type Namespace struct {
	entries map[string]any
	mu      sync.RWMutex
}

// New creates an empty namespace.
func New() *Namespace {
	return &Namespace{
		entries: make(map[string]any),
	}
}

// Bind binds v under name, replacing any previous binding.
func (n *Namespace) Bind(name string, v any) error {
	if name == "" {
		return ErrBlankName
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.entries[name] = v
	return nil
}

// Unbind removes the binding for name.
func (n *Namespace) Unbind(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.entries, name)
}

// Lookup returns the value bound under name. A name without an exact match
// resolves to the first key, in sorted order, ending in "/"+name.
func (n *Namespace) Lookup(name string) (any, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if v, ok := n.entries[name]; ok {
		return v, nil
	}

	suffix := "/" + name
	for _, k := range n.sortedKeys() {
		if strings.HasSuffix(k, suffix) {
			return n.entries[k], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotBound, name)
}

// Exists reports whether name resolves.
func (n *Namespace) Exists(name string) bool {
	_, err := n.Lookup(name)
	return err == nil
}

// Keys returns all bound names, sorted.
func (n *Namespace) Keys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.sortedKeys()
}

// KeysWithPrefix returns the sorted names starting with prefix.
func (n *Namespace) KeysWithPrefix(prefix string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var keys []string
	for k := range n.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of bindings.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.entries)
}

// Clear removes every binding.
func (n *Namespace) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.entries = make(map[string]any)
}

func (n *Namespace) sortedKeys() []string {
	keys := make([]string, 0, len(n.entries))
	for k := range n.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// LookupAs resolves name and asserts the bound value to T.
func LookupAs[T any](n *Namespace, name string) (T, error) {
	var zero T
	v, err := n.Lookup(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrWrongType, name, v)
	}
	return t, nil
}

// All returns the values under names starting with prefix that are
// assignable to T, in key order.
func All[T any](n *Namespace, prefix string) []T {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var keys []string
	for k := range n.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if t, ok := n.entries[k].(T); ok {
			out = append(out, t)
		}
	}
	return out
}

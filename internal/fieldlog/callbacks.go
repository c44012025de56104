package fieldlog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/fieldlog/internal/domain"
)

// Callback receives one affected entity and the logs written for it in one
// mutation, keyed by log field name. Returning an error is the only failure
// signal.
type Callback func(ctx context.Context, entity domain.Entity, logs map[string]domain.FieldLog) error

// NamedCallback pairs a callback with the name used in configuration and logs.
type NamedCallback struct {
	Name string
	Fn   Callback
}

// CallbackRegistry maps configuration names to callbacks. It is populated at
// startup before the configuration is resolved.
type CallbackRegistry struct {
	mu        sync.RWMutex
	callbacks map[string]Callback
}

// NewCallbackRegistry creates an empty registry.
func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{callbacks: make(map[string]Callback)}
}

// Register adds a callback under name. Names are unique.
func (r *CallbackRegistry) Register(name string, fn Callback) error {
	if name == "" || fn == nil {
		return fmt.Errorf("callback name and function are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.callbacks[name]; exists {
		return fmt.Errorf("callback %q already registered", name)
	}
	r.callbacks[name] = fn
	return nil
}

// MustRegister is Register for package initialization; it panics on error.
func (r *CallbackRegistry) MustRegister(name string, fn Callback) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the callback registered under name.
func (r *CallbackRegistry) Lookup(name string) (Callback, bool) {
	if r == nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.callbacks[name]
	return fn, ok
}

// Names lists the registered names in sorted order.
func (r *CallbackRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.callbacks))
	for name := range r.callbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package probe implements the completion probe registry: named, pure
// predicates over session state that report whether a guided analysis has
// already finished. Probes replace in-memory "analysis done" flags, so a
// worker that never saw the earlier turns reaches the same verdict as the
// worker that ran them.
package probe

import (
	"fmt"
	"sync"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
)

// Func is a completion predicate. It must be pure with respect to the state
// it receives: no I/O, no mutation, so evaluation order and repetition do
// not matter.
type Func func(state *session.State) bool

// Registry holds the probes registered at process start. Registration is a
// startup-time activity; after that the registry is read-only and safe for
// concurrent Evaluate calls.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	probes map[string]Func
}

// NewRegistry returns an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Func)}
}

// Register adds a named probe. The name should match the guided-workflow
// kind the probe completes. Duplicate and empty names are rejected.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("probe name is required")
	}
	if fn == nil {
		return fmt.Errorf("probe %s: nil predicate", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.probes[name]; exists {
		return fmt.Errorf("probe %s already registered", name)
	}
	r.probes[name] = fn
	r.order = append(r.order, name)
	return nil
}

// Evaluate returns, in registration order, the names of all probes that
// report true for the given state.
func (r *Registry) Evaluate(state *session.State) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var fired []string
	for _, name := range r.order {
		if r.probes[name](state) {
			fired = append(fired, name)
		}
	}
	return fired
}

// Names returns the registered probe names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Has reports whether a probe is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.probes[name]
	return ok
}

// Package backend defines the pluggable server back-end contract and a
// compile-time driver registry. Go has no safe runtime dlopen equivalent for
// statically-linked code, so back-ends register themselves from an init()
// function the way database/sql drivers do, and the host selects one by
// name at startup instead of loading a shared object.
package backend

import (
	"sync"

	"scalable-server/internal/core"
	"scalable-server/internal/xerr"
)

// State is the lifecycle contract every back-end implements.
//
// Initialize prepares listen sockets, IPC primitives, and any back-end
// specific state, returning the state to transition to next. Run executes
// the back-end's main loop until a shutdown signal or fatal error. Close
// releases every resource Initialize acquired; it must be safe to call
// more than once.
type State interface {
	Initialize(o *core.Object) (core.LifecycleState, error)
	Run(o *core.Object) (core.LifecycleState, error)
	Close(o *core.Object) (core.LifecycleState, error)
}

// Constructor builds a fresh, unstarted back-end instance.
type Constructor func() State

var (
	mu       sync.RWMutex
	registry = make(map[string]Constructor)
)

// Register adds a named back-end constructor to the registry. Back-ends call
// this from an init() function in their own package.
func Register(name string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = ctor
}

// New builds a back-end instance by the name passed to --library/-l.
func New(name string) (State, error) {
	mu.RLock()
	defer mu.RUnlock()

	ctor, ok := registry[name]
	if !ok {
		return nil, xerr.Newf(xerr.EConfig, "backend: unknown library %q", name)
	}
	return ctor(), nil
}

// Names returns the registered back-end names, for help text and validation.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

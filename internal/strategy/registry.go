package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a strategy from its options, validating them eagerly.
type Constructor func(p Params) (Strategy, error)

// Registry maps strategy names to constructors so the CLI and API can build
// strategies by name.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor under name. Registering the same name twice
// is a programming error.
func (r *Registry) Register(name string, ctor Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ctors[name]; dup {
		return fmt.Errorf("strategy: %q already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// MustRegister is Register for wiring done at startup.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// New builds the named strategy with the given options.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return ctor(p)
}

// Names lists the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins returns a registry preloaded with the strategies shipped in this
// package.
func Builtins() *Registry {
	r := NewRegistry()
	r.MustRegister("momentum", NewMomentum)
	r.MustRegister("low_volatility", NewLowVolatility)
	return r
}

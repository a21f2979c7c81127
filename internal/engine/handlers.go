package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/patchwire/internal/ir"
)

// Transform backs a process unit. Its results replace the event: an empty
// slice drops it, several results fan it out.
type Transform func(ctx context.Context, ev ir.Event) ([]ir.Event, error)

// Observer backs a call unit. It runs on its own goroutine with a copy of
// the event; the event itself passes on unchanged.
type Observer func(ctx context.Context, ev ir.Event) error

// Registry maps handler names used in patches to Go functions.
//
// Registration normally happens once at startup; lookups are safe from
// any goroutine.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
	observers  map[string]Observer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		transforms: make(map[string]Transform),
		observers:  make(map[string]Observer),
	}
}

// RegisterTransform registers fn under name for process units.
// Panics if the name is already taken.
func (r *Registry) RegisterTransform(name string, fn Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transforms[name]; exists {
		panic(fmt.Sprintf("transform %q already registered", name))
	}
	slog.Debug("registering transform", "name", name)
	r.transforms[name] = fn
}

// RegisterObserver registers fn under name for call units.
// Panics if the name is already taken.
func (r *Registry) RegisterObserver(name string, fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.observers[name]; exists {
		panic(fmt.Sprintf("observer %q already registered", name))
	}
	slog.Debug("registering observer", "name", name)
	r.observers[name] = fn
}

// Transform looks up a transform by name.
func (r *Registry) Transform(name string) (Transform, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.transforms[name]
	return fn, ok
}

// Observer looks up an observer by name.
func (r *Registry) Observer(name string) (Observer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.observers[name]
	return fn, ok
}

// check reports the first process or call unit in p whose handler is not
// registered.
func (r *Registry) check(p *ir.Patch) error {
	if p == nil {
		return nil
	}
	for _, u := range p.Units() {
		switch u.Kind {
		case ir.KindProcess:
			if _, ok := r.Transform(u.Params.Handler); !ok {
				return NewMissingHandlerError(string(u.Kind), u.Params.Handler)
			}
		case ir.KindCall:
			if _, ok := r.Observer(u.Params.Handler); !ok {
				return NewMissingHandlerError(string(u.Kind), u.Params.Handler)
			}
		}
	}
	return nil
}

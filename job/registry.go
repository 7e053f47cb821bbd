package job

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/xraph/jobgraph"
)

// HandlerFunc runs a job body against its encoded payload.
type HandlerFunc func(ctx context.Context, jc *Context, payload []byte) error

// Registry resolves job names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

// RegisterDefinition makes def runnable by name. Registering a name
// again replaces the earlier handler.
//
// The payload is decoded into T on every attempt. A payload that does not
// decode is a ConfigError, so the job fails without retrying.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.put(def.Name, func(ctx context.Context, jc *Context, payload []byte) error {
		var p T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return &jobgraph.ConfigError{
					Field: "payload",
					Err:   fmt.Errorf("decode payload of job %q: %w", def.Name, err),
				}
			}
		}
		return def.Handler(ctx, jc, p)
	})
}

func (r *Registry) put(name string, h HandlerFunc) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

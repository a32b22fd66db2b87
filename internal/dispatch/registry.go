package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Handler executes one command. args is the raw JSON args value from the
// request envelope; the returned value is serialized as the response body.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Binding pairs a command name with its handler. Subsystem packages declare
// their vocabulary as literal Binding tables.
type Binding struct {
	Name    string
	Handler Handler
}

// Registry is an immutable command table.
type Registry struct {
	handlers map[string]Handler
	names    []string
}

// NewRegistry builds a registry from a binding table. Duplicate names, empty
// names, and nil handlers are construction errors so a bad table stops the
// daemon at startup instead of surfacing per-request.
func NewRegistry(bindings []Binding) (*Registry, error) {
	handlers := make(map[string]Handler, len(bindings))
	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if b.Name == "" {
			return nil, fmt.Errorf("binding %d: empty command name", len(names))
		}
		if b.Handler == nil {
			return nil, fmt.Errorf("binding %q: nil handler", b.Name)
		}
		if _, exists := handlers[b.Name]; exists {
			return nil, fmt.Errorf("binding %q: duplicate command name", b.Name)
		}
		handlers[b.Name] = b.Handler
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return &Registry{handlers: handlers, names: names}, nil
}

// Lookup returns the handler bound to the command name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len reports the number of registered commands.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

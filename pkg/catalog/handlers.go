package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/quire/pkg/domain"
)

// Handlers maps handler keys to the functions that perform the external work.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string]domain.Handler
}

// NewHandlers creates an empty handler registry.
func NewHandlers() *Handlers {
	return &Handlers{
		handlers: make(map[string]domain.Handler),
	}
}

// Register adds a handler.
// If a handler with the same key exists, it is overwritten.
func (h *Handlers) Register(key string, handler domain.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[key] = handler
}

// RegisterFunc adds a function handler.
func (h *Handlers) RegisterFunc(key string, fn func(context.Context, domain.Invocation) (domain.Outcome, error)) {
	h.Register(key, domain.HandlerFunc(fn))
}

// Lookup returns the handler for an action.
func (h *Handlers) Lookup(a domain.Action) (domain.Handler, error) {
	h.mu.RLock()
	handler, ok := h.handlers[a.HandlerKey()]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s (action %s)", domain.ErrUnknownHandler, a.HandlerKey(), a.Name)
	}
	return handler, nil
}

// Keys lists the registered handler keys, sorted.
func (h *Handlers) Keys() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.handlers))
	for k := range h.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Missing lists the catalog actions that have no handler registered.
func (h *Handlers) Missing(c *Catalog) []string {
	var out []string
	for _, a := range c.Actions() {
		if _, err := h.Lookup(a); err != nil {
			out = append(out, a.Name)
		}
	}
	return out
}

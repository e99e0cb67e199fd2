package catalog

import (
	"fmt"
	"sync"

	"github.com/aretw0/quire/pkg/domain"
)

// Catalog is the ordered action registry shared by the planner and the executor.
// It is built once at process start; after Freeze it is read-only and safe for
// concurrent use. Registration order is significant: it breaks planning ties.
type Catalog struct {
	mu      sync.RWMutex
	actions []domain.Action
	index   map[string]int
	bounds  []domain.Bound
	frozen  bool
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithBounds sets the counter invariants enforced when effects are applied.
// Defaults to domain.DefaultBounds.
func WithBounds(bounds ...domain.Bound) Option {
	return func(c *Catalog) {
		c.bounds = append([]domain.Bound(nil), bounds...)
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		index:  make(map[string]int),
		bounds: append([]domain.Bound(nil), domain.DefaultBounds...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Build registers the actions and freezes the catalog.
func Build(actions []domain.Action, opts ...Option) (*Catalog, error) {
	c := New(opts...)
	if err := c.Register(actions...); err != nil {
		return nil, err
	}
	c.Freeze()
	return c, nil
}

// Register adds actions in order. Duplicate names, invalid definitions and
// registration after Freeze are rejected with a *domain.ConfigError; on error
// nothing from this call is registered.
func (c *Catalog) Register(actions ...domain.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return &domain.ConfigError{Reason: "catalog is frozen"}
	}

	seen := make(map[string]bool, len(actions))
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := c.index[a.Name]; dup || seen[a.Name] {
			return &domain.ConfigError{Action: a.Name, Reason: "duplicate action name"}
		}
		seen[a.Name] = true
	}

	for _, a := range actions {
		c.index[a.Name] = len(c.actions)
		c.actions = append(c.actions, a.Clone())
	}
	return nil
}

// Freeze makes the catalog read-only.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
}

// Frozen reports whether Freeze was called.
func (c *Catalog) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Len returns the number of registered actions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.actions)
}

// Actions returns copies of every action in registration order.
func (c *Catalog) Actions() []domain.Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Action, len(c.actions))
	for i, a := range c.actions {
		out[i] = a.Clone()
	}
	return out
}

// Get looks up an action by name.
func (c *Catalog) Get(name string) (domain.Action, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[name]
	if !ok {
		return domain.Action{}, false
	}
	return c.actions[i].Clone(), true
}

// MustGet is Get for names known to exist.
func (c *Catalog) MustGet(name string) domain.Action {
	a, ok := c.Get(name)
	if !ok {
		panic(fmt.Sprintf("catalog: unknown action %q", name))
	}
	return a
}

// Index returns the registration rank of an action, or -1.
func (c *Catalog) Index(name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i, ok := c.index[name]; ok {
		return i
	}
	return -1
}

// ByCategory returns the actions of one category in registration order.
func (c *Catalog) ByCategory(cat domain.Category) []domain.Action {
	var out []domain.Action
	for _, a := range c.Actions() {
		if a.Category == cat {
			out = append(out, a)
		}
	}
	return out
}

// Applicable returns the actions whose preconditions hold in the state.
func (c *Catalog) Applicable(s domain.WorldState) []domain.Action {
	var out []domain.Action
	for _, a := range c.Actions() {
		if a.ApplicableIn(s) {
			out = append(out, a)
		}
	}
	return out
}

// Bounds returns the counter invariants of the catalog.
func (c *Catalog) Bounds() []domain.Bound {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Bound(nil), c.bounds...)
}

package dsl

import (
	"errors"

	"github.com/aretw0/quire/pkg/domain"
)

// Builder collects action definitions in registration order.
type Builder struct {
	order   []string
	actions map[string]*ActionBuilder
}

// New creates a new action builder.
func New() *Builder {
	return &Builder{
		actions: make(map[string]*ActionBuilder),
	}
}

// Add starts a new action definition. Actions default to single mode with cost 1.
// If the action already exists, it returns the existing builder.
func (b *Builder) Add(name string) *ActionBuilder {
	if ab, ok := b.actions[name]; ok {
		return ab
	}
	ab := newActionBuilder(name)
	b.actions[name] = ab
	b.order = append(b.order, name)
	return ab
}

// Build validates every definition and returns the actions in the order they
// were added, ready for catalog registration.
func (b *Builder) Build() ([]domain.Action, error) {
	out := make([]domain.Action, 0, len(b.order))
	var errs []error
	for _, name := range b.order {
		a := b.actions[name].Action()
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

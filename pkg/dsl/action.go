package dsl

import (
	"time"

	"github.com/aretw0/quire/pkg/domain"
)

// ActionBuilder provides a fluent API for configuring an action.
type ActionBuilder struct {
	action domain.Action
}

func newActionBuilder(name string) *ActionBuilder {
	return &ActionBuilder{
		action: domain.Action{
			Name: name,
			Mode: domain.ModeSingle,
			Cost: 1,
		},
	}
}

// Describe sets the human-readable description.
func (a *ActionBuilder) Describe(text string) *ActionBuilder {
	a.action.Description = text
	return a
}

// Category sets the display category.
func (a *ActionBuilder) Category(c domain.Category) *ActionBuilder {
	a.action.Category = c
	return a
}

// Single makes the action run alone.
func (a *ActionBuilder) Single() *ActionBuilder {
	a.action.Mode = domain.ModeSingle
	return a
}

// Parallel lets the action batch with adjacent parallel steps.
func (a *ActionBuilder) Parallel() *ActionBuilder {
	a.action.Mode = domain.ModeParallel
	return a
}

// Hybrid lets the action join an adjacent parallel batch when one exists.
func (a *ActionBuilder) Hybrid() *ActionBuilder {
	a.action.Mode = domain.ModeHybrid
	return a
}

// Requires appends preconditions.
func (a *ActionBuilder) Requires(conds ...domain.Condition) *ActionBuilder {
	a.action.Preconditions = append(a.action.Preconditions, conds...)
	return a
}

// When is shorthand for Requires(domain.Is(fact, want)).
func (a *ActionBuilder) When(fact domain.Fact, want bool) *ActionBuilder {
	return a.Requires(domain.Is(fact, want))
}

// Does appends effects.
func (a *ActionBuilder) Does(effects ...domain.Effect) *ActionBuilder {
	a.action.Effects = append(a.action.Effects, effects...)
	return a
}

// Marks sets a boolean fact to true.
func (a *ActionBuilder) Marks(fact domain.Fact) *ActionBuilder {
	return a.Does(domain.SetBool(fact, true))
}

// Increments adds n to a counter.
func (a *ActionBuilder) Increments(fact domain.Fact, n int) *ActionBuilder {
	return a.Does(domain.Add(fact, n))
}

// Cost sets the planning cost.
func (a *ActionBuilder) Cost(c float64) *ActionBuilder {
	a.action.Cost = c
	return a
}

// Estimate sets the soft duration hint.
func (a *ActionBuilder) Estimate(d time.Duration) *ActionBuilder {
	a.action.EstimatedDuration = d
	return a
}

// Handler overrides the handler key (defaults to the action name).
func (a *ActionBuilder) Handler(key string) *ActionBuilder {
	a.action.Handler = key
	return a
}

// Action returns a copy of the definition built so far.
func (a *ActionBuilder) Action() domain.Action {
	return a.action.Clone()
}

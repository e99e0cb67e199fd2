package domain

import (
	"context"
	"fmt"
	"time"
)

// Mode selects how the executor schedules an action.
type Mode string

const (
	// ModeSingle runs the action alone, to completion, before the next step starts.
	ModeSingle Mode = "single"
	// ModeParallel batches the action with adjacent parallel steps.
	ModeParallel Mode = "parallel"
	// ModeHybrid joins an adjacent parallel batch when one is open, otherwise runs alone.
	ModeHybrid Mode = "hybrid"
)

// Valid reports whether the mode is known.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeParallel, ModeHybrid:
		return true
	}
	return false
}

// Category classifies an action for filtering and display only.
type Category string

const (
	CategoryPlanning    Category = "planning"
	CategoryDevelopment Category = "development"
	CategoryWriting     Category = "writing"
	CategoryRefinement  Category = "refinement"
)

// Valid reports whether the category is known.
func (c Category) Valid() bool {
	switch c {
	case CategoryPlanning, CategoryDevelopment, CategoryWriting, CategoryRefinement:
		return true
	}
	return false
}

// Action is a named, immutable unit of work.
type Action struct {
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Category      Category   `json:"category"`
	Mode          Mode       `json:"mode"`
	Preconditions Conditions `json:"preconditions,omitempty"`
	Effects       Effects    `json:"effects"`
	Cost          float64    `json:"cost"`

	// EstimatedDuration is a soft timeout hint. Exceeding it is logged, not enforced.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`

	// Handler is the handler registry key. Empty means Name.
	Handler string `json:"handler,omitempty"`
}

// HandlerKey returns the key used to resolve the action's handler.
func (a Action) HandlerKey() string {
	if a.Handler != "" {
		return a.Handler
	}
	return a.Name
}

// ApplicableIn reports whether the preconditions hold in the state.
func (a Action) ApplicableIn(s WorldState) bool {
	return Satisfies(s, a.Preconditions)
}

// Validate checks the definition and returns a *ConfigError when it is unusable.
func (a Action) Validate() error {
	if a.Name == "" {
		return &ConfigError{Reason: "action has no name"}
	}
	if a.Cost < 0 {
		return &ConfigError{Action: a.Name, Reason: fmt.Sprintf("negative cost %v", a.Cost)}
	}
	if !a.Mode.Valid() {
		return &ConfigError{Action: a.Name, Reason: fmt.Sprintf("unknown mode %q", a.Mode)}
	}
	if a.Category != "" && !a.Category.Valid() {
		return &ConfigError{Action: a.Name, Reason: fmt.Sprintf("unknown category %q", a.Category)}
	}
	if len(a.Effects) == 0 {
		return &ConfigError{Action: a.Name, Reason: "action has no effects"}
	}
	for _, c := range a.Preconditions {
		if err := c.Validate(); err != nil {
			return &ConfigError{Action: a.Name, Reason: err.Error()}
		}
	}
	for _, e := range a.Effects {
		if err := e.Validate(); err != nil {
			return &ConfigError{Action: a.Name, Reason: err.Error()}
		}
	}
	return nil
}

// Clone returns a copy that shares no slices with the receiver.
func (a Action) Clone() Action {
	out := a
	out.Preconditions = append(Conditions(nil), a.Preconditions...)
	out.Effects = append(Effects(nil), a.Effects...)
	return out
}

// Invocation is the input handed to a Handler for one attempt.
type Invocation struct {
	RunID   string
	Step    int
	Attempt int
	Action  Action
	State   WorldState
}

// Outcome is a successful handler result.
// Effects is an optional hint: extra deltas restricted to facts the action declares.
type Outcome struct {
	Output  any     `json:"output,omitempty"`
	Effects Effects `json:"effects,omitempty"`
}

// Handler performs the external work behind an action (typically a model call).
// It must observe ctx cancellation. Errors wrapped with Transient are retried.
type Handler interface {
	Invoke(ctx context.Context, inv Invocation) (Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv Invocation) (Outcome, error)

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, inv Invocation) (Outcome, error) {
	return f(ctx, inv)
}

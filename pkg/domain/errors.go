package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoPlanFound is returned when the goal is unreachable with the available actions.
var ErrNoPlanFound = errors.New("no plan found")

// ErrNoPlanWithinBudget is returned when the search exhausts its node-expansion budget.
var ErrNoPlanWithinBudget = errors.New("no plan within expansion budget")

// ErrTerminalActionFailure marks an action failure that will not be retried.
var ErrTerminalActionFailure = errors.New("terminal action failure")

// ErrPlanConsumed is returned when a plan is executed a second time.
var ErrPlanConsumed = errors.New("plan already consumed")

// ErrUnknownHandler is returned when no handler is registered for an action.
var ErrUnknownHandler = errors.New("no handler registered")

// ErrInvariantViolation is returned when a world state breaks a counter bound.
var ErrInvariantViolation = errors.New("world state invariant violated")

// ErrUnknownAction is returned when a name does not resolve to a catalog action.
var ErrUnknownAction = errors.New("unknown action")

// ErrStaleSnapshot is returned when a snapshot would overwrite a newer version.
var ErrStaleSnapshot = errors.New("stale snapshot version")

// ConfigError reports an invalid or duplicate catalog entry.
type ConfigError struct {
	Action string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Action == "" {
		return "catalog config: " + e.Reason
	}
	return fmt.Sprintf("catalog config: action %q: %s", e.Action, e.Reason)
}

// PlanningError wraps ErrNoPlanFound or ErrNoPlanWithinBudget with search details.
type PlanningError struct {
	Kind     error
	Goal     Conditions
	Expanded int
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("%v for goal %s (expanded %d states)", e.Kind, e.Goal, e.Expanded)
}

func (e *PlanningError) Unwrap() error { return e.Kind }

// ActionFailure classifies a handler error as transient (retryable) or terminal.
type ActionFailure struct {
	Action    string
	Transient bool
	Err       error
}

func (e *ActionFailure) Error() string {
	class := "terminal"
	if e.Transient {
		class = "transient"
	}
	if e.Action == "" {
		return fmt.Sprintf("%s failure: %v", class, e.Err)
	}
	return fmt.Sprintf("%s failure in %s: %v", class, e.Action, e.Err)
}

func (e *ActionFailure) Unwrap() error { return e.Err }

// Transient marks err as retry-eligible (network errors, timeouts).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ActionFailure{Transient: true, Err: err}
}

// Terminal marks err as non-retryable (invalid input and the like).
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &ActionFailure{Transient: false, Err: err}
}

// IsTransient reports whether err was classified as transient.
// Deadline expiry is transient; caller cancellation and unclassified errors are not.
func IsTransient(err error) bool {
	var af *ActionFailure
	if errors.As(err, &af) {
		return af.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// StepFailure is one failed action inside a partially executed plan.
type StepFailure struct {
	Step   int
	Action string
	Err    error
}

// PlanPartiallyExecuted is the run-level result when an action fails terminally
// or the run is cancelled. LastState is the last good world state.
type PlanPartiallyExecuted struct {
	Completed int
	Total     int
	StoppedAt int
	Reason    string
	Failures  []StepFailure
	Cancelled bool
	LastState WorldState
}

// Error renders "progressed to X of Y steps, stopped at step N: <reason>".
// Steps are reported one-based.
func (e *PlanPartiallyExecuted) Error() string {
	return fmt.Sprintf("progressed to %d of %d steps, stopped at step %d: %s",
		e.Completed, e.Total, e.StoppedAt+1, e.Reason)
}

// Unwrap exposes the failure causes to errors.Is / errors.As.
func (e *PlanPartiallyExecuted) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	if e.Cancelled {
		errs = append(errs, context.Canceled)
	}
	return errs
}

// FailureSummary joins the failure causes for display.
func (e *PlanPartiallyExecuted) FailureSummary() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Action, f.Err))
	}
	return strings.Join(parts, "; ")
}

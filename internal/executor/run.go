package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/quire/pkg/domain"
)

// run is the bookkeeping of one plan execution. The coordinating goroutine
// owns state; mu serializes events, hooks and state publication.
type run struct {
	ex      *Executor
	id      string
	plan    *domain.Plan
	bounds  []domain.Bound
	logger  *slog.Logger
	results []domain.ActionResult

	mu     sync.Mutex
	state  domain.WorldState
	events []domain.LogEvent
}

func (e *Executor) newRun(plan *domain.Plan, state domain.WorldState) *run {
	r := &run{
		ex:      e,
		id:      uuid.NewString(),
		plan:    plan,
		bounds:  plan.Bounds,
		results: make([]domain.ActionResult, len(plan.Steps)),
		state:   state,
	}
	if r.bounds == nil {
		r.bounds = e.catalog.Bounds()
	}
	r.logger = e.logger.With("run_id", r.id)
	for i, s := range plan.Steps {
		r.results[i] = domain.ActionResult{Step: i, Action: s.Action.Name, Status: domain.StatusPending}
	}
	return r
}

func (r *run) current() domain.WorldState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// transition records a non-terminal status change.
func (r *run) transition(ctx context.Context, res *domain.ActionResult, status domain.Status, attempt int, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.ex.now()
	if status == domain.StatusStarted && res.Started.IsZero() {
		res.Started = now
	}
	res.Status = status
	res.Attempts = attempt
	r.emitLocked(ctx, domain.LogEvent{
		Timestamp: now,
		RunID:     r.id,
		Step:      res.Step,
		Action:    res.Action,
		Status:    status,
		Attempt:   attempt,
		Detail:    detail,
	})
}

// finish records the terminal status of an action instance.
func (r *run) finish(ctx context.Context, res *domain.ActionResult, status domain.Status, attempts int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.ex.now()
	res.Status = status
	res.Attempts = attempts
	res.Err = err
	res.Finished = now

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	r.emitLocked(ctx, domain.LogEvent{
		Timestamp: now,
		RunID:     r.id,
		Step:      res.Step,
		Action:    res.Action,
		Status:    status,
		Attempt:   attempts,
		Detail:    detail,
	})
}

func (r *run) emitLocked(ctx context.Context, ev domain.LogEvent) {
	r.events = append(r.events, ev)

	level := slog.LevelDebug
	switch ev.Status {
	case domain.StatusFailed:
		level = slog.LevelWarn
	case domain.StatusSucceeded, domain.StatusCancelled:
		level = slog.LevelInfo
	}
	r.logger.Log(ctx, level, "action "+string(ev.Status),
		"action", ev.Action,
		"step", ev.Step,
		"attempt", ev.Attempt,
		"status", ev.Status,
	)

	if r.ex.hooks.OnEvent != nil {
		r.ex.hooks.OnEvent(ctx, ev)
	}
}

// apply folds the effects of the succeeded members of a batch into the world
// state, in catalog registration order, publishing each transition.
func (r *run) apply(ctx context.Context, outcomes []outcome) {
	succeeded := make([]outcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.ok {
			succeeded = append(succeeded, o)
		}
	}
	r.ex.byRegistration(succeeded)
	r.checkConflicts(succeeded)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range succeeded {
		prev := r.state
		next := domain.ApplyEffects(prev, o.effects, r.bounds...)
		r.state = next
		if r.ex.hooks.OnStateChange != nil {
			r.ex.hooks.OnStateChange(ctx, domain.StateChange{
				RunID:    r.id,
				Step:     o.step.Index,
				Previous: prev,
				Current:  next,
				Diff:     domain.Diff(prev, next),
			})
		}
	}
}

// checkConflicts reports parallel members assigning the same fact. Increments
// commute and are never reported.
func (r *run) checkConflicts(outcomes []outcome) {
	for i := 0; i < len(outcomes); i++ {
		for j := i + 1; j < len(outcomes); j++ {
			if facts := domain.Conflicts(outcomes[i].effects, outcomes[j].effects); len(facts) > 0 {
				r.logger.Warn("conflicting effects in parallel batch",
					"first", outcomes[i].step.Action.Name,
					"second", outcomes[j].step.Action.Name,
					"facts", facts,
				)
			}
		}
	}
}

// cancelPending marks every action that never reached a terminal state as cancelled.
func (r *run) cancelPending(ctx context.Context) {
	for i := range r.results {
		res := &r.results[i]
		if res.Status == domain.StatusPending {
			r.finish(ctx, res, domain.StatusCancelled, 0, ctx.Err())
		}
	}
}

func (r *run) failed() bool {
	for _, res := range r.results {
		if res.Status == domain.StatusFailed {
			return true
		}
	}
	return false
}

func (r *run) completed() int {
	n := 0
	for _, res := range r.results {
		if res.Succeeded() {
			n++
		}
	}
	return n
}

func (r *run) result() *domain.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &domain.ExecutionResult{
		RunID:      r.id,
		PlanID:     r.plan.ID,
		FinalState: r.state,
		Results:    append([]domain.ActionResult(nil), r.results...),
		Events:     append([]domain.LogEvent(nil), r.events...),
		Completed:  r.completed(),
		Total:      len(r.results),
	}
}

// partial builds the run-level error, or returns nil when every step succeeded.
func (r *run) partial(ctx context.Context) *domain.PlanPartiallyExecuted {
	completed := r.completed()
	if completed == len(r.results) {
		return nil
	}

	perr := &domain.PlanPartiallyExecuted{
		Completed: completed,
		Total:     len(r.results),
		StoppedAt: -1,
		LastState: r.current(),
		Cancelled: ctx.Err() != nil,
	}

	for _, res := range r.results {
		switch res.Status {
		case domain.StatusFailed:
			perr.Failures = append(perr.Failures, domain.StepFailure{Step: res.Step, Action: res.Action, Err: res.Err})
		case domain.StatusSucceeded:
			continue
		}
		if perr.StoppedAt < 0 {
			perr.StoppedAt = res.Step
		}
	}

	switch {
	case len(perr.Failures) > 0:
		f := perr.Failures[0]
		perr.Reason = fmt.Sprintf("%s: %v", f.Action, f.Err)
	case perr.Cancelled:
		perr.Reason = "run cancelled"
	default:
		perr.Reason = "run stopped"
	}
	return perr
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
)

// Executor runs plans by dispatching each action to its handler.
// A single Executor may serve many runs concurrently; each run owns its world state.
type Executor struct {
	catalog     *catalog.Catalog
	handlers    *catalog.Handlers
	retry       domain.RetryPolicy
	hardTimeout time.Duration
	maxParallel int
	limiter     *rate.Limiter
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	now         func() time.Time
}

// New creates an executor.
func New(c *catalog.Catalog, h *catalog.Handlers, opts ...Option) *Executor {
	e := &Executor{
		catalog:     c,
		handlers:    h,
		retry:       domain.DefaultRetryPolicy(),
		hardTimeout: DefaultHardTimeout,
		logger:      logging.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the plan from the given state.
//
// A plan can be executed once (see domain.Plan.Consume) and each of its steps
// is driven by exactly one goroutine, so an action instance is never in flight
// twice.
//
// Batches run strictly in order. A terminal failure halts the plan once the
// current batch has settled; cancellation of ctx stops dispatch, retains the
// effects of actions that already succeeded and marks the rest cancelled. In
// both cases the returned result is non-nil and the error is a
// *domain.PlanPartiallyExecuted carrying the last good state.
func (e *Executor) Execute(ctx context.Context, plan *domain.Plan, state domain.WorldState) (*domain.ExecutionResult, error) {
	if err := plan.Consume(); err != nil {
		return nil, err
	}
	if err := state.Validate(e.catalog.Bounds()...); err != nil {
		return nil, err
	}

	r := e.newRun(plan, state)
	logger := e.logger.With("run_id", r.id, "plan_id", plan.ID)
	logger.Info("run started", "steps", plan.Len(), "cost", plan.Cost)

	for _, b := range plan.Batches() {
		if ctx.Err() != nil {
			break
		}

		unit := newBatch(b)
		outcomes := unit.run(ctx, r)
		r.apply(ctx, outcomes)

		if r.failed() || ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		r.cancelPending(ctx)
	}

	result := r.result()
	if perr := r.partial(ctx); perr != nil {
		logger.Warn("run stopped", "completed", perr.Completed, "total", perr.Total, "err", perr.Reason)
		return result, perr
	}

	logger.Info("run completed", "completed", result.Completed)
	return result, nil
}

// ExecuteSingle runs one action outside any plan. The returned state has the
// action's effects applied when it succeeded and is the input state otherwise.
func (e *Executor) ExecuteSingle(ctx context.Context, a domain.Action, state domain.WorldState) (domain.ActionResult, domain.WorldState) {
	plan := &domain.Plan{
		ID:     uuid.NewString(),
		Start:  state,
		Steps:  []domain.Step{{Index: 0, Action: a}},
		Cost:   a.Cost,
		Bounds: e.catalog.Bounds(),
	}
	r := e.newRun(plan, state)

	outcomes := newBatch(domain.Batch{Mode: domain.ModeSingle, Steps: plan.Steps}).run(ctx, r)
	r.apply(ctx, outcomes)
	if ctx.Err() != nil {
		r.cancelPending(ctx)
	}

	return r.results[0], r.current()
}

// invoke drives one action instance through its state machine until it is
// succeeded, failed or cancelled.
func (e *Executor) invoke(ctx context.Context, r *run, step domain.Step, state domain.WorldState) outcome {
	a := step.Action
	res := &r.results[step.Index]
	logger := e.logger.With("run_id", r.id, "action", a.Name, "step", step.Index)

	if !a.ApplicableIn(state) {
		err := fmt.Errorf("%w: precondition no longer holds: %s", domain.ErrTerminalActionFailure, a.Preconditions)
		r.finish(ctx, res, domain.StatusFailed, 0, err)
		return outcome{step: step}
	}

	handler, err := e.handlers.Lookup(a)
	if err != nil {
		r.finish(ctx, res, domain.StatusFailed, 0, fmt.Errorf("%w: %w", domain.ErrTerminalActionFailure, err))
		return outcome{step: step}
	}

	maxAttempts := e.retry.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			r.finish(ctx, res, domain.StatusCancelled, attempt-1, ctx.Err())
			return outcome{step: step}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					r.finish(ctx, res, domain.StatusCancelled, attempt-1, ctx.Err())
				} else {
					// The token would arrive after ctx's deadline.
					r.finish(ctx, res, domain.StatusFailed, attempt-1, fmt.Errorf("%w: rate limit: %w", domain.ErrTerminalActionFailure, err))
				}
				return outcome{step: step}
			}
		}

		r.transition(ctx, res, domain.StatusStarted, attempt, "")
		out, err := e.attempt(ctx, logger, handler, domain.Invocation{
			RunID:   r.id,
			Step:    step.Index,
			Attempt: attempt,
			Action:  a,
			State:   state,
		})

		if err == nil {
			effects := e.acceptHints(logger, a, out.Effects)
			res.Output = out.Output
			res.Effects = effects
			r.finish(ctx, res, domain.StatusSucceeded, attempt, nil)
			return outcome{step: step, effects: effects, ok: true}
		}

		if ctx.Err() != nil {
			r.finish(ctx, res, domain.StatusCancelled, attempt, ctx.Err())
			return outcome{step: step}
		}

		if !domain.IsTransient(err) {
			r.finish(ctx, res, domain.StatusFailed, attempt, fmt.Errorf("%w: %w", domain.ErrTerminalActionFailure, err))
			return outcome{step: step}
		}
		if attempt == maxAttempts {
			r.finish(ctx, res, domain.StatusFailed, attempt,
				fmt.Errorf("%w: retries exhausted after %d attempts: %w", domain.ErrTerminalActionFailure, attempt, err))
			return outcome{step: step}
		}

		delay := e.retry.Backoff(attempt)
		logger.Debug("retrying action", "attempt", attempt, "delay", delay, "err", err)
		r.transition(ctx, res, domain.StatusRetried, attempt, err.Error())

		if !sleep(ctx, delay) {
			r.finish(ctx, res, domain.StatusCancelled, attempt, ctx.Err())
			return outcome{step: step}
		}
	}

	// maxAttempts >= 1, so the loop always returns.
	return outcome{step: step}
}

// attempt runs one handler call under the hard timeout and reports a soft
// timeout overrun as a warning.
func (e *Executor) attempt(ctx context.Context, logger *slog.Logger, h domain.Handler, inv domain.Invocation) (domain.Outcome, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.hardTimeout)
	defer cancel()

	if est := inv.Action.EstimatedDuration; est > 0 {
		soft := time.AfterFunc(est, func() {
			logger.Warn("action exceeded estimated duration", "attempt", inv.Attempt, "estimated", est)
		})
		defer soft.Stop()
	}

	out, err := safeInvoke(attemptCtx, logger, h, inv)
	if err != nil && !errors.Is(err, errHandlerPanic) && ctx.Err() == nil && attemptCtx.Err() == context.DeadlineExceeded {
		return out, domain.Transient(fmt.Errorf("hard timeout after %s: %w", e.hardTimeout, err))
	}
	return out, err
}

var errHandlerPanic = errors.New("handler panic")

// safeInvoke calls the handler and turns a panic into a terminal failure.
func safeInvoke(ctx context.Context, logger *slog.Logger, h domain.Handler, inv domain.Invocation) (out domain.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("handler panicked", "attempt", inv.Attempt, "panic", p, "stack", string(debug.Stack()))
			out, err = domain.Outcome{}, domain.Terminal(fmt.Errorf("%w: %v", errHandlerPanic, p))
		}
	}()
	return h.Invoke(ctx, inv)
}

// acceptHints merges handler-reported effects into the declared ones.
// Hints on facts the action does not declare are dropped.
func (e *Executor) acceptHints(logger *slog.Logger, a domain.Action, hints domain.Effects) domain.Effects {
	effects := append(domain.Effects(nil), a.Effects...)
	for _, h := range hints {
		if !a.Effects.Touches(h.Fact) || h.Validate() != nil {
			logger.Debug("ignoring effect hint", "fact", h.Fact)
			continue
		}
		effects = append(effects, h)
	}
	return effects
}

// sleep waits for d or until ctx is done; it reports whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// byRegistration orders batch outcomes by catalog rank, then by step.
func (e *Executor) byRegistration(outcomes []outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		ri := e.catalog.Index(outcomes[i].step.Action.Name)
		rj := e.catalog.Index(outcomes[j].step.Action.Name)
		if ri != rj {
			return ri < rj
		}
		return outcomes[i].step.Index < outcomes[j].step.Index
	})
}

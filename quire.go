package quire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/aretw0/quire/internal/executor"
	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/internal/planner"
	"github.com/aretw0/quire/pkg/adapters/memory"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/ports"
	"github.com/aretw0/quire/pkg/session"
)

// Engine is the high-level entry point of the quire library.
// It wires the action catalog, the planner, the executor and session
// persistence behind a small API.
type Engine struct {
	catalog  *catalog.Catalog
	handlers *catalog.Handlers
	planner  *planner.Planner
	executor *executor.Executor
	sessions *session.Manager
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	plannerOpts  []planner.Option
	executorOpts []executor.Option
	replan       bool
}

var _ ports.Engine = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithCatalog sets the action catalog. The default is catalog.Default().
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithHandlers sets the handler registry used to execute actions.
func WithHandlers(h *catalog.Handlers) Option {
	return func(e *Engine) {
		e.handlers = h
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithPlannerBudget caps the number of states the planner may expand.
func WithPlannerBudget(n int) Option {
	return func(e *Engine) {
		e.plannerOpts = append(e.plannerOpts, planner.WithBudget(n))
	}
}

// WithRetryPolicy sets how transient handler failures are retried.
func WithRetryPolicy(p domain.RetryPolicy) Option {
	return func(e *Engine) {
		e.executorOpts = append(e.executorOpts, executor.WithRetryPolicy(p))
	}
}

// WithHardTimeout sets the per-attempt handler deadline.
func WithHardTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.executorOpts = append(e.executorOpts, executor.WithHardTimeout(d))
	}
}

// WithMaxParallel bounds concurrent handlers inside a parallel batch.
func WithMaxParallel(n int) Option {
	return func(e *Engine) {
		e.executorOpts = append(e.executorOpts, executor.WithMaxParallel(n))
	}
}

// WithRateLimit throttles handler dispatch to limit per second.
func WithRateLimit(limit float64, burst int) Option {
	return func(e *Engine) {
		e.executorOpts = append(e.executorOpts, executor.WithRateLimit(rate.Limit(limit), burst))
	}
}

// WithSessions sets the session manager used by Pursue and the session API.
// The default keeps sessions in memory.
func WithSessions(m *session.Manager) Option {
	return func(e *Engine) {
		e.sessions = m
	}
}

// WithReplan toggles the single replan Pursue attempts after a terminal failure.
// It is enabled by default.
func WithReplan(enabled bool) Option {
	return func(e *Engine) {
		e.replan = enabled
	}
}

// New initializes a new Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{replan: true}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.catalog == nil {
		eng.catalog = catalog.Default()
	}
	if eng.catalog.Len() == 0 {
		return nil, &domain.ConfigError{Reason: "catalog has no actions"}
	}
	eng.catalog.Freeze()

	if eng.handlers == nil {
		eng.handlers = catalog.NewHandlers()
	}
	if missing := eng.handlers.Missing(eng.catalog); len(missing) > 0 {
		eng.logger.Warn("actions without handler will fail when executed", "actions", missing)
	}
	if eng.sessions == nil {
		eng.sessions = session.NewManager(memory.NewStore(),
			session.WithBounds(eng.catalog.Bounds()...),
			session.WithLogger(eng.logger),
		)
	}

	eng.planner = planner.New(eng.catalog, append([]planner.Option{planner.WithLogger(eng.logger)}, eng.plannerOpts...)...)
	eng.executor = executor.New(eng.catalog, eng.handlers, append([]executor.Option{
		executor.WithLogger(eng.logger),
		executor.WithHooks(eng.hooks),
	}, eng.executorOpts...)...)

	return eng, nil
}

// Catalog returns the frozen action catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Actions lists the catalog in registration order.
func (e *Engine) Actions() []domain.Action {
	return e.catalog.Actions()
}

// Applicable lists the actions whose preconditions hold in state.
func (e *Engine) Applicable(state domain.WorldState) []domain.Action {
	return e.planner.Applicable(state)
}

// Plan computes the least-cost action sequence from state to goal.
// It never invokes handlers; ctx is handed to the OnPlan hook.
func (e *Engine) Plan(ctx context.Context, state domain.WorldState, goal domain.Conditions) (*domain.Plan, error) {
	plan, err := e.planner.Plan(state, goal)
	if err != nil {
		return nil, err
	}
	if e.hooks.OnPlan != nil {
		e.hooks.OnPlan(ctx, plan)
	}
	return plan, nil
}

// Execute runs a plan from state. See executor.Executor.Execute for the failure model.
func (e *Engine) Execute(ctx context.Context, plan *domain.Plan, state domain.WorldState) (*domain.ExecutionResult, error) {
	return e.executor.Execute(ctx, plan, state)
}

// ExecuteSingle runs one named action outside a plan and returns its result
// together with the resulting state.
func (e *Engine) ExecuteSingle(ctx context.Context, name string, state domain.WorldState) (domain.ActionResult, domain.WorldState, error) {
	a, ok := e.catalog.Get(name)
	if !ok {
		return domain.ActionResult{}, state, fmt.Errorf("%w: %s", domain.ErrUnknownAction, name)
	}
	res, next := e.executor.ExecuteSingle(ctx, a, state)
	return res, next, res.Err
}

// StartSession creates a session with an initial state, or returns the existing one.
func (e *Engine) StartSession(ctx context.Context, sessionID string, initial domain.WorldState) (*domain.Snapshot, error) {
	return e.sessions.LoadOrStart(ctx, sessionID, initial)
}

// State returns the latest snapshot of a session.
func (e *Engine) State(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return e.sessions.Load(ctx, sessionID)
}

// Sessions lists known session IDs.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// DeleteSession forgets a session.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Pursue plans from the session's latest state towards goal, executes the
// plan and persists the resulting state as the next snapshot version. Partial
// progress is persisted too.
//
// When a run stops on a terminal failure, Pursue replans once from the last
// good state and executes the new plan if the goal is still reachable.
func (e *Engine) Pursue(ctx context.Context, sessionID string, goal domain.Conditions) (*domain.ExecutionResult, error) {
	var result *domain.ExecutionResult
	_, err := e.sessions.Advance(ctx, sessionID, func(ctx context.Context, cur *domain.Snapshot) (domain.WorldState, string, error) {
		logger := e.logger.With("session_id", sessionID)

		res, err := e.pursue(ctx, cur.State, goal)
		result = res
		if err == nil || !e.replan {
			return finalState(res), runID(res), err
		}

		var perr *domain.PlanPartiallyExecuted
		if !errors.As(err, &perr) || perr.Cancelled {
			return finalState(res), runID(res), err
		}

		logger.Warn("run failed, replanning once", "completed", perr.Completed, "total", perr.Total, "err", perr.Reason)
		retry, rerr := e.pursue(ctx, perr.LastState, goal)
		if retry == nil {
			// Goal unreachable from the last good state: report the original failure.
			return finalState(res), runID(res), errors.Join(err, rerr)
		}
		result = retry
		return finalState(retry), runID(retry), rerr
	})
	return result, err
}

func (e *Engine) pursue(ctx context.Context, state domain.WorldState, goal domain.Conditions) (*domain.ExecutionResult, error) {
	plan, err := e.Plan(ctx, state, goal)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, plan, state)
}

func finalState(r *domain.ExecutionResult) domain.WorldState {
	if r == nil {
		return domain.WorldState{}
	}
	return r.FinalState
}

func runID(r *domain.ExecutionResult) string {
	if r == nil {
		return ""
	}
	return r.RunID
}

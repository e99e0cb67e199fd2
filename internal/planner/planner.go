package planner

import (
	"container/heap"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aretw0/quire/internal/logging"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
)

// DefaultBudget bounds the number of node expansions per search.
const DefaultBudget = 2048

// Planner computes least-cost action sequences with a forward best-first search.
// It is pure with respect to the world: handlers are never invoked.
type Planner struct {
	catalog *catalog.Catalog
	budget  int
	logger  *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithBudget sets the maximum number of expansions. Non-positive values keep the default.
func WithBudget(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.budget = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a planner over a catalog.
func New(c *catalog.Catalog, opts ...Option) *Planner {
	p := &Planner{
		catalog: c,
		budget:  DefaultBudget,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget returns the configured expansion budget.
func (p *Planner) Budget() int { return p.budget }

// Applicable lists the actions whose preconditions hold in the state.
func (p *Planner) Applicable(s domain.WorldState) []domain.Action {
	return p.catalog.Applicable(s)
}

// Plan searches for the cheapest action sequence that takes start to a state
// satisfying every goal condition.
//
// The frontier is ordered by f = g + h, where g is the accumulated cost and h
// the number of unsatisfied goal conditions, then by h, then by the sequence of
// catalog indices along the path, then by insertion order. The result is fully
// deterministic for a given catalog, state and goal.
//
// The goal is tested when a node is popped. An exhausted frontier yields
// ErrNoPlanFound, an exhausted budget ErrNoPlanWithinBudget, both wrapped in a
// *domain.PlanningError.
func (p *Planner) Plan(start domain.WorldState, goal domain.Conditions) (*domain.Plan, error) {
	actions := p.catalog.Actions()
	bounds := p.catalog.Bounds()

	root := &node{
		state: start,
		h:     domain.Unsatisfied(start, goal),
	}

	frontier := &queue{}
	heap.Push(frontier, root)

	best := map[string]float64{start.Key(): 0}
	closed := make(map[string]bool)
	expanded := 0
	seq := 1

	for frontier.Len() > 0 {
		n := heap.Pop(frontier).(*node)
		key := n.state.Key()

		if n.h == 0 {
			plan := p.build(n, start, goal, bounds, expanded)
			p.logger.Debug("plan found",
				"plan_id", plan.ID,
				"steps", plan.Len(),
				"cost", plan.Cost,
				"expanded", expanded,
			)
			return plan, nil
		}

		if closed[key] {
			continue
		}
		if g, ok := best[key]; ok && n.g > g {
			continue
		}
		if expanded >= p.budget {
			p.logger.Debug("planning budget exhausted", "budget", p.budget, "goal", goal.String())
			return nil, &domain.PlanningError{Kind: domain.ErrNoPlanWithinBudget, Goal: goal, Expanded: expanded}
		}

		closed[key] = true
		expanded++

		for idx, a := range actions {
			if !a.ApplicableIn(n.state) {
				continue
			}
			next := domain.ApplyEffects(n.state, a.Effects, bounds...)
			nextKey := next.Key()
			if nextKey == key || closed[nextKey] {
				continue
			}
			g := n.g + a.Cost
			if prev, ok := best[nextKey]; ok && prev <= g {
				continue
			}
			best[nextKey] = g

			child := &node{
				state:  next,
				g:      g,
				h:      domain.Unsatisfied(next, goal),
				parent: n,
				action: a,
				path:   appendPath(n.path, idx),
				seq:    seq,
			}
			seq++
			heap.Push(frontier, child)
		}
	}

	return nil, &domain.PlanningError{Kind: domain.ErrNoPlanFound, Goal: goal, Expanded: expanded}
}

func (p *Planner) build(n *node, start domain.WorldState, goal domain.Conditions, bounds []domain.Bound, expanded int) *domain.Plan {
	var actions []domain.Action
	for cur := n; cur.parent != nil; cur = cur.parent {
		actions = append(actions, cur.action)
	}

	steps := make([]domain.Step, len(actions))
	for i := range actions {
		steps[i] = domain.Step{Index: i, Action: actions[len(actions)-1-i]}
	}

	return &domain.Plan{
		ID:       uuid.NewString(),
		Goal:     append(domain.Conditions(nil), goal...),
		Start:    start,
		Steps:    steps,
		Cost:     n.g,
		Expanded: expanded,
		Bounds:   bounds,
	}
}

func appendPath(path []int, idx int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = idx
	return out
}

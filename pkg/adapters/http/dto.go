package http

import (
	"errors"
	"fmt"

	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
)

// GoalRequest carries a world state and a goal expression (see catalog.ParseGoal).
type GoalRequest struct {
	State map[string]any `json:"state"`
	Goal  string         `json:"goal"`
}

// StateRequest carries a world state only.
type StateRequest struct {
	State map[string]any `json:"state"`
}

// SessionRequest creates a session.
type SessionRequest struct {
	ID    string         `json:"id"`
	State map[string]any `json:"state"`
}

// PursueRequest drives a session towards a goal.
type PursueRequest struct {
	Goal string `json:"goal"`
}

// PlanResponse is a plan together with its batch schedule.
type PlanResponse struct {
	ID       string            `json:"id"`
	Actions  []string          `json:"actions"`
	Cost     float64           `json:"cost"`
	Expanded int               `json:"expanded"`
	Batches  []BatchResponse   `json:"batches"`
	Expected domain.WorldState `json:"expected"`
}

type BatchResponse struct {
	Mode    domain.Mode `json:"mode"`
	Actions []string    `json:"actions"`
}

// ActionResultResponse is an ActionResult with its error rendered.
type ActionResultResponse struct {
	domain.ActionResult
	Error string `json:"error,omitempty"`
}

// RunResponse reports a plan execution, successful or partial.
type RunResponse struct {
	RunID      string                 `json:"run_id"`
	PlanID     string                 `json:"plan_id"`
	FinalState domain.WorldState      `json:"final_state"`
	Results    []ActionResultResponse `json:"results"`
	Events     []domain.LogEvent      `json:"events"`
	Completed  int                    `json:"completed"`
	Total      int                    `json:"total"`
	Error      string                 `json:"error,omitempty"`
	StoppedAt  *int                   `json:"stopped_at,omitempty"`
	Cancelled  bool                   `json:"cancelled,omitempty"`
}

// SingleResponse reports an ad-hoc action execution.
type SingleResponse struct {
	Result ActionResultResponse `json:"result"`
	State  domain.WorldState    `json:"state"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func parseGoalRequest(req GoalRequest) (domain.WorldState, domain.Conditions, error) {
	state, err := domain.StateFromMap(req.State)
	if err != nil {
		return state, nil, err
	}
	goal, err := catalog.ParseGoal(req.Goal)
	if err != nil {
		return state, nil, err
	}
	return state, goal, nil
}

func mapPlan(p *domain.Plan) PlanResponse {
	resp := PlanResponse{
		ID:       p.ID,
		Actions:  p.ActionNames(),
		Cost:     p.Cost,
		Expanded: p.Expanded,
		Batches:  []BatchResponse{},
		Expected: p.Expected(),
	}
	for _, b := range p.Batches() {
		br := BatchResponse{Mode: b.Mode}
		for _, s := range b.Steps {
			br.Actions = append(br.Actions, s.Action.Name)
		}
		resp.Batches = append(resp.Batches, br)
	}
	return resp
}

func mapResult(r domain.ActionResult) ActionResultResponse {
	return ActionResultResponse{ActionResult: r, Error: r.Error()}
}

func mapRun(res *domain.ExecutionResult, err error) RunResponse {
	resp := RunResponse{
		RunID:      res.RunID,
		PlanID:     res.PlanID,
		FinalState: res.FinalState,
		Results:    make([]ActionResultResponse, 0, len(res.Results)),
		Events:     res.Events,
		Completed:  res.Completed,
		Total:      res.Total,
	}
	for _, r := range res.Results {
		resp.Results = append(resp.Results, mapResult(r))
	}
	if err != nil {
		resp.Error = err.Error()
	}
	var perr *domain.PlanPartiallyExecuted
	if errors.As(err, &perr) {
		stopped := perr.StoppedAt
		resp.StoppedAt = &stopped
		resp.Cancelled = perr.Cancelled
	}
	return resp
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

var errBadRequest = errors.New("bad request")

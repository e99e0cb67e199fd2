package ports

import (
	"context"

	"github.com/aretw0/quire/pkg/domain"
)

// Engine is the surface the transport adapters (HTTP, MCP) drive.
type Engine interface {
	// Actions lists the catalog in registration order.
	Actions() []domain.Action

	// Plan computes a least-cost plan without side effects.
	Plan(ctx context.Context, state domain.WorldState, goal domain.Conditions) (*domain.Plan, error)

	// Execute runs a plan produced by Plan.
	Execute(ctx context.Context, plan *domain.Plan, state domain.WorldState) (*domain.ExecutionResult, error)

	// ExecuteSingle runs one named action outside a plan.
	ExecuteSingle(ctx context.Context, name string, state domain.WorldState) (domain.ActionResult, domain.WorldState, error)

	// StartSession creates a session with an initial state, or returns the existing one.
	StartSession(ctx context.Context, sessionID string, initial domain.WorldState) (*domain.Snapshot, error)

	// Pursue plans and executes towards goal from the session's persisted state.
	Pursue(ctx context.Context, sessionID string, goal domain.Conditions) (*domain.ExecutionResult, error)

	// State returns the latest snapshot of a session.
	State(ctx context.Context, sessionID string) (*domain.Snapshot, error)

	// Sessions lists known session IDs.
	Sessions(ctx context.Context) ([]string, error)

	// DeleteSession forgets a session.
	DeleteSession(ctx context.Context, sessionID string) error
}

package domain

import (
	"context"
	"time"
)

// Status is the state of one action instance during a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRetried   Status = "retried"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition follows.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// LogEvent is an append-only record of one action state transition.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Step      int       `json:"step"`
	Action    string    `json:"action"`
	Status    Status    `json:"status"`
	Attempt   int       `json:"attempt,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// StateChange is published after each world-state transition of a run.
type StateChange struct {
	RunID    string     `json:"run_id"`
	Step     int        `json:"step"`
	Previous WorldState `json:"previous"`
	Current  WorldState `json:"current"`
	Diff     *StateDiff `json:"diff,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks are called synchronously and in order; they must not block for long.
type LifecycleHooks struct {
	OnPlan        func(context.Context, *Plan)
	OnEvent       func(context.Context, LogEvent)
	OnStateChange func(context.Context, StateChange)
}

// CombineHooks fans each callback out to every non-nil hook, in argument order.
func CombineHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnPlan: func(ctx context.Context, p *Plan) {
			for _, h := range hooks {
				if h.OnPlan != nil {
					h.OnPlan(ctx, p)
				}
			}
		},
		OnEvent: func(ctx context.Context, e LogEvent) {
			for _, h := range hooks {
				if h.OnEvent != nil {
					h.OnEvent(ctx, e)
				}
			}
		},
		OnStateChange: func(ctx context.Context, c StateChange) {
			for _, h := range hooks {
				if h.OnStateChange != nil {
					h.OnStateChange(ctx, c)
				}
			}
		},
	}
}

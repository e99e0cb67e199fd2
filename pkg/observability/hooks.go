package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/quire/pkg/domain"
)

// LogHooks returns lifecycle callbacks that write an audit trail to logger.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPlan: func(ctx context.Context, p *domain.Plan) {
			logger.InfoContext(ctx, "plan_ready",
				"plan_id", p.ID,
				"steps", p.Len(),
				"cost", p.Cost,
				"actions", p.ActionNames(),
			)
		},
		OnEvent: func(ctx context.Context, e domain.LogEvent) {
			attrs := []any{
				"run_id", e.RunID,
				"action", e.Action,
				"step", e.Step,
				"status", e.Status,
				"attempt", e.Attempt,
			}
			if e.Detail != "" {
				attrs = append(attrs, "detail", e.Detail)
			}
			logger.InfoContext(ctx, "action_transition", attrs...)
		},
		OnStateChange: func(ctx context.Context, c domain.StateChange) {
			if c.Diff == nil || c.Diff.IsEmpty() {
				return
			}
			logger.InfoContext(ctx, "state_change",
				"run_id", c.RunID,
				"step", c.Step,
				"state", c.Current.String(),
			)
		},
	}
}

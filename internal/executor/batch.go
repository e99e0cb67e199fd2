package executor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/quire/pkg/domain"
)

// outcome is what one action instance contributes to its batch.
type outcome struct {
	step    domain.Step
	effects domain.Effects
	ok      bool
}

// batch is one scheduling unit of a plan. The set of implementations is closed:
// singleBatch and parallelBatch.
type batch interface {
	// run drives every member to a terminal state and returns their outcomes.
	// World-state changes are left to the caller.
	run(ctx context.Context, r *run) []outcome
}

func newBatch(b domain.Batch) batch {
	if b.Mode == domain.ModeParallel && len(b.Steps) > 1 {
		return parallelBatch{steps: b.Steps}
	}
	return singleBatch{step: b.Steps[0]}
}

// singleBatch runs one action to completion.
type singleBatch struct {
	step domain.Step
}

func (b singleBatch) run(ctx context.Context, r *run) []outcome {
	return []outcome{r.ex.invoke(ctx, r, b.step, r.current())}
}

// parallelBatch dispatches its members concurrently against the state the batch
// started from and waits for all of them, whatever their outcome.
type parallelBatch struct {
	steps []domain.Step
}

func (b parallelBatch) run(ctx context.Context, r *run) []outcome {
	start := r.current()
	outcomes := make([]outcome, len(b.steps))

	var g errgroup.Group
	if r.ex.maxParallel > 0 {
		g.SetLimit(r.ex.maxParallel)
	}
	for i, step := range b.steps {
		g.Go(func() error {
			outcomes[i] = r.ex.invoke(ctx, r, step, start)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

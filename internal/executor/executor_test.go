package executor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/quire/internal/executor"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func fastRetry(max int) domain.RetryPolicy {
	return domain.RetryPolicy{MaxRetries: max, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func startState(total int) domain.WorldState {
	return domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.HasOutline:    domain.Bool(true),
		domain.ChaptersTotal: domain.Int(total),
	})
}

func planOf(c *catalog.Catalog, start domain.WorldState, names ...string) *domain.Plan {
	steps := make([]domain.Step, len(names))
	for i, n := range names {
		steps[i] = domain.Step{Index: i, Action: c.MustGet(n)}
	}
	return &domain.Plan{ID: "test-plan", Start: start, Steps: steps, Bounds: c.Bounds()}
}

func succeed(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
	return domain.Outcome{Output: inv.Action.Name}, nil
}

func countStatus(events []domain.LogEvent, s domain.Status) int {
	n := 0
	for _, ev := range events {
		if ev.Status == s {
			n++
		}
	}
	return n
}

func TestExecute_Success(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	for _, a := range c.Actions() {
		h.RegisterFunc(a.Name, succeed)
	}

	var changes []domain.StateChange
	ex := executor.New(c, h, executor.WithHooks(domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, sc domain.StateChange) { changes = append(changes, sc) },
	}))

	start := startState(2).With(domain.HasOutline, domain.Bool(false))
	plan := planOf(c, start, "create_outline", "write_chapter", "write_chapter", "compile_manuscript", "publish")

	res, err := ex.Execute(context.Background(), plan, start)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Completed)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, "test-plan", res.PlanID)
	assert.NotEmpty(t, res.RunID)
	assert.True(t, res.FinalState.Bool(domain.IsPublished))
	assert.Equal(t, 2, res.FinalState.Int(domain.ChaptersCompleted))

	for _, r := range res.Results {
		assert.Equal(t, domain.StatusSucceeded, r.Status)
		assert.Equal(t, 1, r.Attempts)
		assert.Equal(t, r.Action, r.Output)
	}
	assert.Equal(t, 5, countStatus(res.Events, domain.StatusStarted))
	assert.Equal(t, 5, countStatus(res.Events, domain.StatusSucceeded))

	require.Len(t, changes, 5)
	assert.Equal(t, domain.FactChange{From: domain.Int(1), To: domain.Int(2)}, changes[2].Diff.Changed[domain.ChaptersCompleted])

	_, err = ex.Execute(context.Background(), plan, start)
	assert.ErrorIs(t, err, domain.ErrPlanConsumed)
}

func TestExecute_ParallelTerminalFailureHalts(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	var compileCalls atomic.Int32

	h.RegisterFunc("write_chapter", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		if inv.Step == 1 {
			return domain.Outcome{}, domain.Terminal(errors.New("model refused"))
		}
		return domain.Outcome{}, nil
	})
	h.RegisterFunc("compile_manuscript", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		compileCalls.Add(1)
		return domain.Outcome{}, nil
	})

	ex := executor.New(c, h, executor.WithRetryPolicy(fastRetry(2)))
	start := startState(3)
	plan := planOf(c, start, "write_chapter", "write_chapter", "write_chapter", "compile_manuscript")

	res, err := ex.Execute(context.Background(), plan, start)
	require.Error(t, err)
	require.NotNil(t, res)

	var perr *domain.PlanPartiallyExecuted
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Completed)
	assert.Equal(t, 4, perr.Total)
	assert.Equal(t, 1, perr.StoppedAt)
	assert.False(t, perr.Cancelled)
	assert.ErrorIs(t, err, domain.ErrTerminalActionFailure)
	assert.Equal(t, "progressed to 2 of 4 steps, stopped at step 2: "+perr.Reason, err.Error())

	assert.Equal(t, 2, perr.LastState.Int(domain.ChaptersCompleted), "effects of the two successful members are applied")
	assert.Equal(t, 2, res.FinalState.Int(domain.ChaptersCompleted))
	assert.Equal(t, domain.StatusFailed, res.Results[1].Status)
	assert.Equal(t, 1, res.Results[1].Attempts, "terminal failures are not retried")
	assert.Equal(t, domain.StatusPending, res.Results[3].Status)
	assert.Zero(t, compileCalls.Load(), "the step after the failed batch never runs")
}

func TestExecute_CancelMidBatch(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	var calls atomic.Int32

	h.RegisterFunc("write_chapter", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		calls.Add(1)
		if inv.Step == 0 {
			return domain.Outcome{}, nil
		}
		<-ctx.Done()
		return domain.Outcome{}, domain.Transient(ctx.Err())
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := executor.New(c, h,
		executor.WithRetryPolicy(fastRetry(2)),
		executor.WithHooks(domain.LifecycleHooks{
			OnEvent: func(_ context.Context, ev domain.LogEvent) {
				if ev.Status == domain.StatusSucceeded {
					cancel()
				}
			},
		}),
	)

	start := startState(3)
	plan := planOf(c, start, "write_chapter", "write_chapter", "write_chapter", "compile_manuscript")

	res, err := ex.Execute(ctx, plan, start)

	var perr *domain.PlanPartiallyExecuted
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, perr.Completed)

	assert.Equal(t, 1, res.FinalState.Int(domain.ChaptersCompleted))
	assert.Equal(t, domain.StatusSucceeded, res.Results[0].Status)
	assert.Equal(t, domain.StatusCancelled, res.Results[1].Status)
	assert.Equal(t, domain.StatusCancelled, res.Results[2].Status)
	assert.Equal(t, domain.StatusCancelled, res.Results[3].Status)
	assert.Zero(t, countStatus(res.Events, domain.StatusRetried), "cancelled actions are never retried")
	assert.LessOrEqual(t, calls.Load(), int32(3))
}

func TestExecute_RetryCeiling(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	var calls atomic.Int32

	h.RegisterFunc("create_outline", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		calls.Add(1)
		return domain.Outcome{}, domain.Transient(errors.New("503 service unavailable"))
	})

	ex := executor.New(c, h, executor.WithRetryPolicy(fastRetry(2)))
	start := domain.WorldState{}
	res, err := ex.Execute(context.Background(), planOf(c, start, "create_outline"), start)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTerminalActionFailure)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, res.Results[0].Attempts)
	assert.Equal(t, domain.StatusFailed, res.Results[0].Status)
	assert.Equal(t, 2, countStatus(res.Events, domain.StatusRetried))
	assert.Equal(t, 3, countStatus(res.Events, domain.StatusStarted))
	assert.False(t, res.FinalState.Bool(domain.HasOutline))
}

func TestExecute_HardTimeoutIsTransient(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()

	h.RegisterFunc("create_outline", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		if inv.Attempt == 1 {
			<-ctx.Done()
			return domain.Outcome{}, ctx.Err()
		}
		return domain.Outcome{}, nil
	})

	ex := executor.New(c, h,
		executor.WithRetryPolicy(fastRetry(1)),
		executor.WithHardTimeout(20*time.Millisecond),
	)
	start := domain.WorldState{}
	res, err := ex.Execute(context.Background(), planOf(c, start, "create_outline"), start)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Results[0].Attempts)
	assert.True(t, res.FinalState.Bool(domain.HasOutline))
	assert.Equal(t, 1, countStatus(res.Events, domain.StatusRetried))
}

func TestExecute_SequentialHalt(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	var writes atomic.Int32

	h.RegisterFunc("create_outline", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		return domain.Outcome{}, errors.New("invalid premise")
	})
	h.RegisterFunc("write_chapter", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		writes.Add(1)
		return domain.Outcome{}, nil
	})

	ex := executor.New(c, h)
	start := startState(2).With(domain.HasOutline, domain.Bool(false))
	res, err := ex.Execute(context.Background(), planOf(c, start, "create_outline", "write_chapter", "write_chapter"), start)

	var perr *domain.PlanPartiallyExecuted
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, perr.Completed)
	assert.Equal(t, 0, perr.StoppedAt)
	assert.Contains(t, perr.Reason, "invalid premise")
	assert.Zero(t, writes.Load())
	assert.True(t, res.FinalState.Equal(start))
}

func TestExecute_EffectHints(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	h.RegisterFunc("write_chapter", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		return domain.Outcome{Effects: domain.Effects{
			domain.Add(domain.ChaptersCompleted, 1),
			domain.SetBool(domain.IsPublished, true),
		}}, nil
	})

	ex := executor.New(c, h)
	start := startState(5)
	res, err := ex.Execute(context.Background(), planOf(c, start, "write_chapter"), start)
	require.NoError(t, err)

	assert.Equal(t, 2, res.FinalState.Int(domain.ChaptersCompleted), "hint on a declared fact is accepted")
	assert.False(t, res.FinalState.Bool(domain.IsPublished), "hint on an undeclared fact is ignored")
	assert.Len(t, res.Results[0].Effects, 2)
}

func TestExecute_MaxParallel(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()

	var mu sync.Mutex
	active, peak := 0, 0
	h.RegisterFunc("write_chapter", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return domain.Outcome{}, nil
	})

	ex := executor.New(c, h, executor.WithMaxParallel(2))
	start := startState(4)
	res, err := ex.Execute(context.Background(), planOf(c, start, "write_chapter", "write_chapter", "write_chapter", "write_chapter"), start)
	require.NoError(t, err)

	assert.Equal(t, 4, res.FinalState.Int(domain.ChaptersCompleted))
	assert.LessOrEqual(t, peak, 2)
}

func TestExecute_RejectsInvalidState(t *testing.T) {
	c := catalog.Default()
	ex := executor.New(c, catalog.NewHandlers())
	bad := startState(1).With(domain.ChaptersCompleted, domain.Int(4))

	_, err := ex.Execute(context.Background(), planOf(c, bad, "publish"), bad)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestExecuteSingle(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	h.RegisterFunc("create_outline", succeed)
	ex := executor.New(c, h)

	t.Run("Success", func(t *testing.T) {
		res, state := ex.ExecuteSingle(context.Background(), c.MustGet("create_outline"), domain.WorldState{})
		assert.True(t, res.Succeeded())
		assert.Equal(t, "create_outline", res.Output)
		assert.True(t, state.Bool(domain.HasOutline))
	})

	t.Run("Precondition Not Met", func(t *testing.T) {
		start := domain.WorldState{}
		res, state := ex.ExecuteSingle(context.Background(), c.MustGet("publish"), start)
		assert.Equal(t, domain.StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, domain.ErrTerminalActionFailure)
		assert.Zero(t, res.Attempts)
		assert.True(t, state.Equal(start))
	})

	t.Run("Unknown Handler", func(t *testing.T) {
		res, _ := ex.ExecuteSingle(context.Background(), c.MustGet("define_characters"), startState(1))
		assert.ErrorIs(t, res.Err, domain.ErrUnknownHandler)
	})

	t.Run("Cancelled Before Dispatch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, _ := ex.ExecuteSingle(ctx, c.MustGet("create_outline"), domain.WorldState{})
		assert.Equal(t, domain.StatusCancelled, res.Status)
	})
}

func TestExecute_HandlerPanicIsTerminal(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	var compileCalls atomic.Int32

	h.RegisterFunc("write_chapter", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		if inv.Step == 1 {
			panic("model client bug")
		}
		return domain.Outcome{}, nil
	})
	h.RegisterFunc("compile_manuscript", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		compileCalls.Add(1)
		return domain.Outcome{}, nil
	})

	ex := executor.New(c, h, executor.WithRetryPolicy(fastRetry(2)))
	start := startState(3)
	plan := planOf(c, start, "write_chapter", "write_chapter", "write_chapter", "compile_manuscript")

	res, err := ex.Execute(context.Background(), plan, start)
	require.NotNil(t, res)

	var perr *domain.PlanPartiallyExecuted
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Completed)
	assert.Equal(t, 1, perr.StoppedAt)
	assert.ErrorIs(t, err, domain.ErrTerminalActionFailure)
	assert.Contains(t, perr.Reason, "handler panic: model client bug")

	assert.Equal(t, domain.StatusFailed, res.Results[1].Status)
	assert.Equal(t, 1, res.Results[1].Attempts, "a panic is not retried")
	assert.Equal(t, 2, res.FinalState.Int(domain.ChaptersCompleted))
	assert.Zero(t, compileCalls.Load())
}

func TestExecute_RateLimitBeyondDeadlineHalts(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	for _, a := range c.Actions() {
		h.RegisterFunc(a.Name, succeed)
	}

	// One token up front, the next one far beyond the run deadline.
	ex := executor.New(c, h, executor.WithRateLimit(rate.Limit(0.01), 1))
	start := domain.NewWorldState(map[domain.Fact]domain.Value{domain.ChaptersTotal: domain.Int(1)})
	plan := planOf(c, start, "create_outline", "write_chapter", "compile_manuscript")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := ex.Execute(ctx, plan, start)
	require.NotNil(t, res)
	require.NoError(t, ctx.Err(), "the wait fails up front, not at the deadline")

	var perr *domain.PlanPartiallyExecuted
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Cancelled)
	assert.Equal(t, 1, perr.Completed)
	assert.Equal(t, 1, perr.StoppedAt)
	assert.Equal(t, domain.StatusSucceeded, res.Results[0].Status)
	assert.Equal(t, domain.StatusFailed, res.Results[1].Status)
	assert.ErrorIs(t, res.Results[1].Err, domain.ErrTerminalActionFailure)
	assert.Equal(t, domain.StatusPending, res.Results[2].Status, "the run halts instead of skipping ahead")
}

func TestExecute_PlanRunsAtMostOnce(t *testing.T) {
	c := catalog.Default()
	h := catalog.NewHandlers()
	var calls atomic.Int32
	release := make(chan struct{})
	h.RegisterFunc("write_chapter", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		calls.Add(1)
		<-release
		return domain.Outcome{}, nil
	})

	ex := executor.New(c, h)
	start := startState(2)
	plan := planOf(c, start, "write_chapter", "write_chapter")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ex.Execute(context.Background(), plan, start)
		}()
	}
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	consumed := 0
	for _, err := range errs {
		if errors.Is(err, domain.ErrPlanConsumed) {
			consumed++
			continue
		}
		assert.NoError(t, err)
	}
	assert.Equal(t, 3, consumed)
	assert.Equal(t, int32(2), calls.Load(), "each step is invoked exactly once")
}

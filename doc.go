/*
Package quire is a goal-oriented action planning engine for content production.

A project (a novel, a report, a course) is described as a world state of boolean
and integer facts. Work is a catalog of actions, each with preconditions, effects
and a cost. Given a goal, quire finds the cheapest sequence of actions with an A*
search, then executes it: independent actions run concurrently, transient handler
failures are retried with backoff and cancellation keeps whatever progress was made.

# Concept

Planning and execution are separate. The planner is pure and never calls a
handler, so a plan can be shown, stored or graphed before anything runs. The
executor owns the world state during a run and publishes every transition
through lifecycle hooks. Handlers do the real work (typically a model call or an
external agent process) and are resolved from a registry by key.

# Usage

	handlers := catalog.NewHandlers()
	handlers.RegisterFunc("write_chapter", writeChapter)
	// ... one handler per action

	eng, err := quire.New(quire.WithHandlers(handlers))
	if err != nil {
		log.Fatal(err)
	}

	start := domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.ChaptersTotal: domain.Int(3),
	})
	goal, _ := catalog.ParseGoal("chaptersCompleted >= 3")

	plan, err := eng.Plan(ctx, start, goal)
	if err != nil {
		log.Fatal(err)
	}
	result, err := eng.Execute(ctx, plan, start)

Long-lived projects go through sessions: StartSession persists the initial state
and Pursue plans, executes and saves the next snapshot version under a session lock.
*/
package quire

package quire_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/quire"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/dsl"
)

// ExampleEngine_Plan shows planning against the built-in content catalog.
func ExampleEngine_Plan() {
	eng, err := quire.New()
	if err != nil {
		log.Fatal(err)
	}

	start := domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.ChaptersTotal: domain.Int(3),
	})
	goal, err := catalog.ParseGoal("chaptersCompleted >= 3")
	if err != nil {
		log.Fatal(err)
	}

	plan, err := eng.Plan(context.Background(), start, goal)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(plan.ActionNames())
	fmt.Println("cost:", plan.Cost)
	for _, b := range plan.Batches() {
		fmt.Println(b.Mode, len(b.Steps))
	}
	// Output:
	// [create_outline write_chapter write_chapter write_chapter]
	// cost: 7
	// single 1
	// parallel 3
}

// ExampleNew_customCatalog builds a small catalog with the DSL and runs it.
func ExampleNew_customCatalog() {
	b := dsl.New()
	b.Add("draft").Marks("drafted")
	b.Add("review").When("drafted", true).Marks("reviewed").Cost(2)

	actions, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}
	c, err := catalog.Build(actions, catalog.WithBounds())
	if err != nil {
		log.Fatal(err)
	}

	handlers := catalog.NewHandlers()
	for _, a := range actions {
		handlers.RegisterFunc(a.Name, func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
			fmt.Println("running", inv.Action.Name)
			return domain.Outcome{}, nil
		})
	}

	eng, err := quire.New(quire.WithCatalog(c), quire.WithHandlers(handlers))
	if err != nil {
		log.Fatal(err)
	}

	goal, _ := catalog.ParseGoal("reviewed")
	plan, err := eng.Plan(context.Background(), domain.WorldState{}, goal)
	if err != nil {
		log.Fatal(err)
	}
	res, err := eng.Execute(context.Background(), plan, domain.WorldState{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.FinalState)
	// Output:
	// running draft
	// running review
	// {drafted=true, reviewed=true}
}

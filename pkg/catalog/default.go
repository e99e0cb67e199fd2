package catalog

import (
	"time"

	"github.com/aretw0/quire/pkg/domain"
	"github.com/aretw0/quire/pkg/dsl"
)

// DefaultActions returns the content-production action set, in registration order.
func DefaultActions() []domain.Action {
	b := dsl.New()

	b.Add("create_outline").
		Describe("Draft the book outline and chapter plan").
		Category(domain.CategoryPlanning).
		Marks(domain.HasOutline).
		Estimate(2 * time.Minute)

	b.Add("define_characters").
		Describe("Write character sheets for the main cast").
		Category(domain.CategoryDevelopment).
		Parallel().
		When(domain.HasOutline, true).
		Marks(domain.HasCharacters).
		Estimate(2 * time.Minute)

	b.Add("build_world").
		Describe("Describe setting, history and rules of the world").
		Category(domain.CategoryDevelopment).
		Parallel().
		When(domain.HasOutline, true).
		Marks(domain.HasWorldbuilding).
		Estimate(2 * time.Minute)

	b.Add("write_chapter").
		Describe("Write the next chapter from the outline").
		Category(domain.CategoryWriting).
		Parallel().
		When(domain.HasOutline, true).
		Requires(domain.CompareFact(domain.ChaptersCompleted, domain.OpLt, domain.ChaptersTotal)).
		Increments(domain.ChaptersCompleted, 1).
		Cost(2).
		Estimate(5 * time.Minute)

	b.Add("refine_chapter").
		Describe("Edit a completed chapter for style and continuity").
		Category(domain.CategoryRefinement).
		Hybrid().
		Requires(domain.CompareFact(domain.ChaptersRefined, domain.OpLt, domain.ChaptersCompleted)).
		Increments(domain.ChaptersRefined, 1).
		Estimate(3 * time.Minute)

	b.Add("compile_manuscript").
		Describe("Assemble chapters into a single manuscript").
		Category(domain.CategoryRefinement).
		Requires(
			domain.AtLeast(domain.ChaptersTotal, 1),
			domain.CompareFact(domain.ChaptersCompleted, domain.OpGte, domain.ChaptersTotal),
		).
		Marks(domain.IsCompiled).
		Estimate(time.Minute)

	b.Add("publish").
		Describe("Publish the compiled manuscript").
		Category(domain.CategoryRefinement).
		When(domain.IsCompiled, true).
		Marks(domain.IsPublished).
		Estimate(time.Minute)

	actions, err := b.Build()
	if err != nil {
		// The definitions above are static; a failure here is a programming error.
		panic(err)
	}
	return actions
}

// Default builds the frozen content-production catalog.
func Default() *Catalog {
	c, err := Build(DefaultActions())
	if err != nil {
		panic(err)
	}
	return c
}

/*
Package dsl provides a fluent Go builder for action catalogs.

It is the programmatic alternative to YAML catalog files: definitions are
type-checked, and the order in which actions are added is the order the
planner uses to break ties.

Example usage:

	b := dsl.New()

	b.Add("create_outline").
		Category(domain.CategoryPlanning).
		Marks(domain.HasOutline)

	b.Add("write_chapter").
		Category(domain.CategoryWriting).
		Parallel().
		When(domain.HasOutline, true).
		Requires(domain.CompareFact(domain.ChaptersCompleted, domain.OpLt, domain.ChaptersTotal)).
		Increments(domain.ChaptersCompleted, 1).
		Cost(2)

	actions, err := b.Build()
	// ... catalog.Build(actions)
*/
package dsl

package dsl

import (
	"testing"
	"time"

	"github.com/aretw0/quire/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_KeepsRegistrationOrder(t *testing.T) {
	b := New()

	b.Add("create_outline").
		Category(domain.CategoryPlanning).
		Marks(domain.HasOutline)

	b.Add("write_chapter").
		Category(domain.CategoryWriting).
		Parallel().
		When(domain.HasOutline, true).
		Requires(domain.CompareFact(domain.ChaptersCompleted, domain.OpLt, domain.ChaptersTotal)).
		Increments(domain.ChaptersCompleted, 1).
		Cost(2).
		Estimate(time.Minute).
		Handler("llm")

	actions, err := b.Build()
	require.NoError(t, err)
	require.Len(t, actions, 2)

	outline := actions[0]
	assert.Equal(t, "create_outline", outline.Name)
	assert.Equal(t, domain.ModeSingle, outline.Mode)
	assert.Equal(t, 1.0, outline.Cost)

	write := actions[1]
	assert.Equal(t, domain.ModeParallel, write.Mode)
	assert.Equal(t, 2.0, write.Cost)
	assert.Equal(t, time.Minute, write.EstimatedDuration)
	assert.Equal(t, "llm", write.HandlerKey())
	assert.Len(t, write.Preconditions, 2)
	assert.Equal(t, domain.Effects{domain.Add(domain.ChaptersCompleted, 1)}, write.Effects)
}

func TestBuilder_AddReturnsExisting(t *testing.T) {
	b := New()
	first := b.Add("publish")
	second := b.Add("publish").Marks(domain.IsPublished)

	assert.Same(t, first, second)

	actions, err := b.Build()
	require.NoError(t, err)
	assert.Len(t, actions, 1)
}

func TestBuilder_RejectsInvalid(t *testing.T) {
	b := New()
	b.Add("noop")
	b.Add("broken").Marks(domain.IsCompiled).Cost(-3)

	_, err := b.Build()
	require.Error(t, err)

	var cfgErr *domain.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "noop")
	assert.Contains(t, err.Error(), "broken")
}

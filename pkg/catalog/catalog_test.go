package catalog_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outline() domain.Action {
	return domain.Action{
		Name:    "create_outline",
		Mode:    domain.ModeSingle,
		Effects: domain.Effects{domain.SetBool(domain.HasOutline, true)},
		Cost:    1,
	}
}

func TestCatalog_Register(t *testing.T) {
	c := catalog.New()
	require.NoError(t, c.Register(outline()))

	t.Run("Duplicate", func(t *testing.T) {
		var cfgErr *domain.ConfigError
		require.ErrorAs(t, c.Register(outline()), &cfgErr)
		assert.Equal(t, "create_outline", cfgErr.Action)
	})

	t.Run("Invalid Leaves Catalog Untouched", func(t *testing.T) {
		good := outline()
		good.Name = "other"
		bad := outline()
		bad.Name = "bad"
		bad.Cost = -1

		err := c.Register(good, bad)
		require.Error(t, err)
		_, ok := c.Get("other")
		assert.False(t, ok, "a failed call must not register anything")
	})

	t.Run("Frozen", func(t *testing.T) {
		c.Freeze()
		extra := outline()
		extra.Name = "late"
		var cfgErr *domain.ConfigError
		assert.ErrorAs(t, c.Register(extra), &cfgErr)
		assert.True(t, c.Frozen())
	})
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	c, err := catalog.Build([]domain.Action{outline()})
	require.NoError(t, err)

	a, ok := c.Get("create_outline")
	require.True(t, ok)
	a.Effects[0] = domain.SetBool(domain.IsPublished, true)

	again := c.MustGet("create_outline")
	assert.Equal(t, domain.HasOutline, again.Effects[0].Fact)
}

func TestDefault(t *testing.T) {
	c := catalog.Default()

	names := make([]string, 0, c.Len())
	for _, a := range c.Actions() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{
		"create_outline", "define_characters", "build_world",
		"write_chapter", "refine_chapter", "compile_manuscript", "publish",
	}, names)

	assert.True(t, c.Frozen())
	assert.Equal(t, 3, c.Index("write_chapter"))
	assert.Equal(t, -1, c.Index("missing"))
	assert.Equal(t, domain.ModeParallel, c.MustGet("write_chapter").Mode)
	assert.Equal(t, domain.ModeHybrid, c.MustGet("refine_chapter").Mode)
	assert.Len(t, c.ByCategory(domain.CategoryDevelopment), 2)
	assert.Equal(t, domain.DefaultBounds, c.Bounds())

	start := domain.NewWorldState(map[domain.Fact]domain.Value{domain.ChaptersTotal: domain.Int(3)})
	applicable := c.Applicable(start)
	require.Len(t, applicable, 1)
	assert.Equal(t, "create_outline", applicable[0].Name)
}

func TestCatalog_ConcurrentReads(t *testing.T) {
	c := catalog.Default()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, a := range c.Actions() {
				_, _ = c.Get(a.Name)
				_ = c.Index(a.Name)
			}
		}()
	}
	wg.Wait()
}

func TestLoadFile(t *testing.T) {
	c, err := catalog.LoadFile("testdata/novella.yaml")
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	create := c.MustGet("create_outline")
	assert.Equal(t, domain.ModeSingle, create.Mode)
	assert.Equal(t, 2*time.Minute, create.EstimatedDuration)

	write := c.MustGet("write_chapter")
	assert.Equal(t, domain.ModeParallel, write.Mode)
	assert.Equal(t, 2.0, write.Cost)
	assert.Equal(t, "llm", write.HandlerKey())
	assert.Equal(t, domain.Conditions{
		domain.CompareFact(domain.ChaptersCompleted, domain.OpLt, domain.ChaptersTotal),
		domain.Is(domain.HasOutline, true),
	}, write.Preconditions)
	assert.Equal(t, domain.Effects{domain.Add(domain.ChaptersCompleted, 1)}, write.Effects)

	compile := c.MustGet("compile_manuscript")
	assert.Equal(t, domain.Conditions{
		domain.CompareFact(domain.ChaptersCompleted, domain.OpGte, domain.ChaptersTotal),
	}, compile.Preconditions)
	assert.Equal(t, domain.Effects{domain.SetBool(domain.IsCompiled, true)}, compile.Effects)

	assert.Equal(t, []domain.Bound{{Fact: domain.ChaptersCompleted, Limit: domain.ChaptersTotal}}, c.Bounds())
}

func TestLoad_JSON(t *testing.T) {
	doc := `{"actions":[{"name":"publish","preconditions":{"isCompiled":true},"effects":{"isPublished":true,"chaptersTotal":{"add":0}}}]}`
	c, err := catalog.Load(strings.NewReader(doc), catalog.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.MustGet("publish").Cost)
}

func TestLoad_SignedEffects(t *testing.T) {
	doc := `
actions:
  - name: write_chapter
    effects:
      chaptersCompleted: +1
      chaptersTotal: -1
  - name: revise_chapter
    effects:
      chaptersCompleted: "+2"
      revisionsLeft: 3
`
	c, err := catalog.Load(strings.NewReader(doc), catalog.FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, domain.Effects{
		domain.Add(domain.ChaptersCompleted, 1),
		domain.Add(domain.ChaptersTotal, -1),
	}, c.MustGet("write_chapter").Effects)
	assert.Equal(t, domain.Effects{
		domain.Add(domain.ChaptersCompleted, 2),
		domain.Set("revisionsLeft", domain.Int(3)),
	}, c.MustGet("revise_chapter").Effects)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", `actions: []`},
		{"unknown key", "actions:\n  - name: x\n    colour: red\n    effects: {isPublished: true}"},
		{"bad mode", "actions:\n  - name: x\n    mode: sometimes\n    effects: {isPublished: true}"},
		{"bool comparison", "actions:\n  - name: x\n    preconditions: {hasOutline: {gte: true}}\n    effects: {isPublished: true}"},
		{"add to bool", "actions:\n  - name: x\n    effects: {isPublished: {add: true}}"},
		{"signed bool", "actions:\n  - name: x\n    effects: {isPublished: \"+true\"}"},
		{"signed word", "actions:\n  - name: x\n    effects: {chaptersCompleted: \"+one\"}"},
		{"unknown effect kind", "actions:\n  - name: x\n    effects: {chaptersCompleted: {times: 2}}"},
		{"duplicate", "actions:\n  - name: x\n    effects: {isPublished: true}\n  - name: x\n    effects: {isPublished: true}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Load(strings.NewReader(tt.doc), catalog.FormatYAML)
			assert.Error(t, err)
		})
	}
}

func TestParseGoal(t *testing.T) {
	tests := []struct {
		expr string
		want domain.Conditions
	}{
		{"chaptersCompleted = 3", domain.Conditions{domain.Equals(domain.ChaptersCompleted, 3)}},
		{"chaptersCompleted >= 3, isPublished", domain.Conditions{
			domain.AtLeast(domain.ChaptersCompleted, 3),
			domain.Is(domain.IsPublished, true),
		}},
		{"!isPublished", domain.Conditions{domain.Is(domain.IsPublished, false)}},
		{"chaptersRefined == $chaptersCompleted", domain.Conditions{
			domain.CompareFact(domain.ChaptersRefined, domain.OpEq, domain.ChaptersCompleted),
		}},
		{"{chaptersCompleted: 3, hasOutline: true}", domain.Conditions{
			domain.Equals(domain.ChaptersCompleted, 3),
			domain.Is(domain.HasOutline, true),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := catalog.ParseGoal(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := catalog.ParseGoal("  ")
	assert.Error(t, err)
	_, err = catalog.ParseGoal("chaptersCompleted >= lots")
	assert.Error(t, err)
}

func TestHandlers(t *testing.T) {
	h := catalog.NewHandlers()
	h.RegisterFunc("create_outline", func(ctx context.Context, inv domain.Invocation) (domain.Outcome, error) {
		return domain.Outcome{Output: "outline"}, nil
	})

	handler, err := h.Lookup(outline())
	require.NoError(t, err)
	out, err := handler.Invoke(context.Background(), domain.Invocation{})
	require.NoError(t, err)
	assert.Equal(t, "outline", out.Output)

	_, err = h.Lookup(domain.Action{Name: "publish"})
	assert.ErrorIs(t, err, domain.ErrUnknownHandler)

	missing := h.Missing(catalog.Default())
	assert.NotContains(t, missing, "create_outline")
	assert.Contains(t, missing, "publish")
	assert.Equal(t, []string{"create_outline"}, h.Keys())
}

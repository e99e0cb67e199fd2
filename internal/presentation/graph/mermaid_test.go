package graph_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aretw0/quire/internal/presentation/graph"
	"github.com/aretw0/quire/pkg/catalog"
	"github.com/aretw0/quire/pkg/domain"
)

func testPlan() *domain.Plan {
	c := catalog.Default()
	outline := c.MustGet("create_outline")
	write := c.MustGet("write_chapter")
	compile := c.MustGet("compile_manuscript")
	return &domain.Plan{
		ID:    "p1",
		Goal:  domain.Conditions{domain.Is(domain.IsCompiled, true)},
		Start: domain.NewWorldState(map[domain.Fact]domain.Value{domain.ChaptersTotal: domain.Int(2)}),
		Steps: []domain.Step{
			{Index: 0, Action: outline},
			{Index: 1, Action: write},
			{Index: 2, Action: write},
			{Index: 3, Action: compile},
		},
	}
}

func TestGeneratePlan(t *testing.T) {
	tests := []struct {
		name     string
		overlay  *graph.RunOverlay
		contains []string
		excludes []string
	}{
		{
			name: "Batches and Shapes",
			contains: []string{
				"graph LR",
				`start(("start"))`,
				`step0(["1. create_outline <br/> ⏱️ 2m0s"])`,
				`subgraph batch1["batch 2 (parallel)"]`,
				`step1["2. write_chapter <br/> ⏱️ 5m0s"]`,
				`step3{{"4. compile_manuscript <br/> ⏱️ 1m0s"}}`,
				"start --> step0",
				"step0 --> step1",
				"step0 --> step2",
				"step1 --> step3",
				"step2 --> step3",
				"step3 --> goal",
			},
			excludes: []string{"classDef", "subgraph batch0"},
		},
		{
			name: "Run Overlay",
			overlay: &graph.RunOverlay{Status: map[int]domain.Status{
				0: domain.StatusSucceeded,
				1: domain.StatusSucceeded,
				2: domain.StatusFailed,
				3: domain.StatusPending,
			}},
			contains: []string{
				"classDef succeeded",
				"class step0 succeeded;",
				"class step1 succeeded;",
				"class step2 failed;",
			},
			excludes: []string{"class step3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GeneratePlan(testPlan(), tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GeneratePlan() = \n%v\nWant substring: %v", got, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("GeneratePlan() = \n%v\nUnexpected substring: %v", got, unwanted)
				}
			}
		})
	}
}

func TestOverlayFromResult(t *testing.T) {
	if graph.OverlayFromResult(nil) != nil {
		t.Fatal("expected nil overlay for nil result")
	}
	o := graph.OverlayFromResult(&domain.ExecutionResult{Results: []domain.ActionResult{
		{Step: 0, Status: domain.StatusSucceeded},
		{Step: 1, Status: domain.StatusCancelled},
	}})
	if o.Status[0] != domain.StatusSucceeded || o.Status[1] != domain.StatusCancelled {
		t.Errorf("unexpected overlay: %+v", o.Status)
	}
}

func TestGenerateCatalog(t *testing.T) {
	tests := []struct {
		name     string
		actions  []domain.Action
		contains []string
		excludes []string
	}{
		{
			name:    "Default Catalog",
			actions: catalog.DefaultActions(),
			contains: []string{
				"graph TD",
				`create_outline -. "hasOutline" .-> write_chapter`,
				`write_chapter -- "chaptersCompleted" --> compile_manuscript`,
				`compile_manuscript -- "isCompiled" --> publish`,
			},
			excludes: []string{"write_chapter -- \"chaptersCompleted\" --> write_chapter"},
		},
		{
			name: "ID Sanitization and Escaping",
			actions: []domain.Action{
				{Name: "draft-intro", Category: domain.CategoryWriting, Mode: domain.ModeSingle,
					Effects: domain.Effects{domain.SetBool("intro", true)}},
				{Name: "review.intro", Category: domain.CategoryRefinement, Mode: domain.ModeSingle,
					Preconditions: domain.Conditions{domain.Is("intro", true)}, EstimatedDuration: time.Second},
			},
			contains: []string{
				`draft_intro["draft-intro"]`,
				`review_intro{{"review.intro <br/> ⏱️ 1s"}}`,
				`draft_intro -- "intro" --> review_intro`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateCatalog(tt.actions)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateCatalog() = \n%v\nWant substring: %v", got, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("GenerateCatalog() = \n%v\nUnexpected substring: %v", got, unwanted)
				}
			}
		})
	}
}

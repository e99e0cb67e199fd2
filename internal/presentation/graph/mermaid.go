package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/quire/pkg/domain"
)

// RunOverlay contains execution data to visualize on a plan graph.
type RunOverlay struct {
	// Status holds the status of each step, by step index.
	Status map[int]domain.Status
}

// OverlayFromResult builds an overlay from an execution result.
func OverlayFromResult(res *domain.ExecutionResult) *RunOverlay {
	if res == nil {
		return nil
	}
	o := &RunOverlay{Status: make(map[int]domain.Status, len(res.Results))}
	for _, r := range res.Results {
		o.Status[r.Step] = r.Status
	}
	return o
}

// GeneratePlan produces a Mermaid flowchart of a plan. Steps of the same
// batch are grouped in a subgraph and fan in to the next batch.
// Node shapes follow the action category:
// - Planning: ([Stadium])
// - Development: [[Subroutine]]
// - Refinement: {{Hexagon}}
// - Default: [Rectangle]
func GeneratePlan(plan *domain.Plan, overlay *RunOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	sb.WriteString("    start((\"start\"))\n")

	prev := []string{"start"}
	for i, b := range plan.Batches() {
		ids := make([]string, 0, len(b.Steps))
		if len(b.Steps) > 1 {
			sb.WriteString(fmt.Sprintf("    subgraph batch%d[\"batch %d (%s)\"]\n", i, i+1, b.Mode))
		}
		for _, st := range b.Steps {
			id := stepID(st.Index)
			ids = append(ids, id)
			indent := "    "
			if len(b.Steps) > 1 {
				indent = "        "
			}
			sb.WriteString(indent + node(id, st.Action, fmt.Sprintf("%d. %s", st.Index+1, st.Action.Name)) + "\n")
		}
		if len(b.Steps) > 1 {
			sb.WriteString("    end\n")
		}
		for _, from := range prev {
			for _, to := range ids {
				sb.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
			}
		}
		prev = ids
	}

	goal := "goal"
	if len(plan.Goal) > 0 {
		goal = escape(plan.Goal.String())
	}
	sb.WriteString(fmt.Sprintf("    goal(((\"%s\")))\n", goal))
	for _, from := range prev {
		sb.WriteString(fmt.Sprintf("    %s --> goal\n", from))
	}

	if overlay != nil && len(overlay.Status) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef succeeded fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffebee,stroke:#c62828,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef cancelled fill:#eceff1,stroke:#546e7a,stroke-dasharray:4,color:#000;\n")
		sb.WriteString("    classDef running fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		steps := make([]int, 0, len(overlay.Status))
		for i := range overlay.Status {
			steps = append(steps, i)
		}
		sort.Ints(steps)
		for _, i := range steps {
			if class := statusClass(overlay.Status[i]); class != "" {
				sb.WriteString(fmt.Sprintf("    class %s %s;\n", stepID(i), class))
			}
		}
	}

	return sb.String()
}

// GenerateCatalog produces a Mermaid flowchart of the action catalog. An edge
// A --> B means an effect of A touches a fact that B's preconditions read.
func GenerateCatalog(actions []domain.Action) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, a := range actions {
		sb.WriteString("    " + node(sanitizeMermaidID(a.Name), a, a.Name) + "\n")
	}

	for _, from := range actions {
		for _, to := range actions {
			if from.Name == to.Name {
				continue
			}
			facts := enables(from, to)
			if len(facts) == 0 {
				continue
			}
			arrow := fmt.Sprintf("-- \"%s\" -->", escape(strings.Join(facts, ", ")))
			if to.Mode != domain.ModeSingle {
				arrow = fmt.Sprintf("-. \"%s\" .->", escape(strings.Join(facts, ", ")))
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(from.Name), arrow, sanitizeMermaidID(to.Name)))
		}
	}

	return sb.String()
}

// enables lists the facts written by from and read by to's preconditions.
func enables(from, to domain.Action) []string {
	read := make(map[domain.Fact]bool)
	for _, c := range to.Preconditions {
		read[c.Fact] = true
		if c.Ref != "" {
			read[c.Ref] = true
		}
	}
	var out []string
	for _, f := range from.Effects.Facts() {
		if read[f] {
			out = append(out, string(f))
		}
	}
	return out
}

func node(id string, a domain.Action, label string) string {
	opener, closer := "[", "]"
	switch a.Category {
	case domain.CategoryPlanning:
		opener, closer = "([", "])"
	case domain.CategoryDevelopment:
		opener, closer = "[[", "]]"
	case domain.CategoryRefinement:
		opener, closer = "{{", "}}"
	}

	text := escape(label)
	if a.EstimatedDuration > 0 {
		text = fmt.Sprintf("%s <br/> ⏱️ %s", text, a.EstimatedDuration)
	}
	return fmt.Sprintf("%s%s\"%s\"%s", id, opener, text, closer)
}

func statusClass(s domain.Status) string {
	switch s {
	case domain.StatusSucceeded:
		return "succeeded"
	case domain.StatusFailed:
		return "failed"
	case domain.StatusCancelled:
		return "cancelled"
	case domain.StatusStarted, domain.StatusRetried:
		return "running"
	}
	return ""
}

func stepID(i int) string {
	return fmt.Sprintf("step%d", i)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

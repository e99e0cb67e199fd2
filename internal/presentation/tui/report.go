package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/quire/pkg/domain"
)

var statusIcons = map[domain.Status]string{
	domain.StatusPending:   "⏸",
	domain.StatusStarted:   "▶",
	domain.StatusRetried:   "↻",
	domain.StatusSucceeded: "✅",
	domain.StatusFailed:    "❌",
	domain.StatusCancelled: "⛔",
}

// PlanMarkdown describes a plan as a markdown document.
func PlanMarkdown(plan *domain.Plan) string {
	var sb strings.Builder
	sb.WriteString("# Plan\n\n")
	if plan.Empty() {
		sb.WriteString("The goal already holds. Nothing to do.\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "**Goal:** `%s`  \n", plan.Goal)
	fmt.Fprintf(&sb, "**Cost:** %g · **Steps:** %d · **Expanded:** %d\n\n", plan.Cost, plan.Len(), plan.Expanded)

	sb.WriteString("| Batch | Step | Action | Category | Cost |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for i, b := range plan.Batches() {
		for _, st := range b.Steps {
			fmt.Fprintf(&sb, "| %d (%s) | %d | %s | %s | %g |\n",
				i+1, b.Mode, st.Index+1, st.Action.Name, st.Action.Category, st.Action.Cost)
		}
	}

	sb.WriteString("\n**Expected state:** `")
	sb.WriteString(plan.Expected().String())
	sb.WriteString("`\n")
	return sb.String()
}

// RunMarkdown describes an execution result, and the error the run ended with,
// as a markdown document.
func RunMarkdown(res *domain.ExecutionResult, runErr error) string {
	var sb strings.Builder
	sb.WriteString("# Run\n\n")
	if res == nil {
		if runErr != nil {
			fmt.Fprintf(&sb, "Run did not start: %v\n", runErr)
		}
		return sb.String()
	}

	fmt.Fprintf(&sb, "**Run:** `%s` · **Completed:** %d/%d\n\n", res.RunID, res.Completed, res.Total)

	sb.WriteString("| Step | Action | Status | Attempts | Duration |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, r := range res.Results {
		duration := "-"
		if !r.Started.IsZero() && !r.Finished.IsZero() {
			duration = r.Finished.Sub(r.Started).Round(time.Millisecond).String()
		}
		fmt.Fprintf(&sb, "| %d | %s | %s %s | %d | %s |\n",
			r.Step+1, r.Action, statusIcons[r.Status], r.Status, r.Attempts, duration)
	}

	var perr *domain.PlanPartiallyExecuted
	switch {
	case errors.As(runErr, &perr):
		sb.WriteString("\n> **Stopped:** ")
		sb.WriteString(perr.Reason)
		sb.WriteString("\n")
	case runErr != nil:
		fmt.Fprintf(&sb, "\n> **Error:** %v\n", runErr)
	}

	sb.WriteString("\n**Final state:** `")
	sb.WriteString(res.FinalState.String())
	sb.WriteString("`\n")
	return sb.String()
}

// SnapshotMarkdown describes a persisted session snapshot.
func SnapshotMarkdown(snap *domain.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session %s\n\n", snap.SessionID)
	fmt.Fprintf(&sb, "**Version:** %d", snap.Version)
	if snap.RunID != "" {
		fmt.Fprintf(&sb, " · **Last run:** `%s`", snap.RunID)
	}
	sb.WriteString("\n\n| Fact | Value |\n|---|---|\n")
	for _, f := range snap.State.Facts() {
		v, _ := snap.State.Get(f)
		fmt.Fprintf(&sb, "| %s | %s |\n", f, v)
	}
	return sb.String()
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/quire/internal/presentation/tui"
	"github.com/aretw0/quire/pkg/domain"
)

// Printer writes command results either as rendered markdown or as JSON.
type Printer struct {
	out    io.Writer
	json   bool
	render func(string) (string, error)
}

// NewPrinter creates a printer for out. Markdown is rendered with glamour
// only when out is a terminal.
func NewPrinter(out io.Writer, jsonMode bool) *Printer {
	return &Printer{
		out:    out,
		json:   jsonMode,
		render: tui.NewRenderer(out),
	}
}

// JSONMode reports whether the printer emits JSON.
func (p *Printer) JSONMode() bool { return p.json }

// Plan prints a plan.
func (p *Printer) Plan(plan *domain.Plan) error {
	if p.json {
		return p.JSON(plan)
	}
	return p.markdown(tui.PlanMarkdown(plan))
}

// Run prints an execution result and the error the run ended with.
func (p *Printer) Run(res *domain.ExecutionResult, runErr error) error {
	if p.json {
		type runOutput struct {
			*domain.ExecutionResult
			Error string `json:"error,omitempty"`
		}
		out := runOutput{ExecutionResult: res}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		return p.JSON(out)
	}
	return p.markdown(tui.RunMarkdown(res, runErr))
}

// Snapshot prints a session snapshot.
func (p *Printer) Snapshot(snap *domain.Snapshot) error {
	if p.json {
		return p.JSON(snap)
	}
	return p.markdown(tui.SnapshotMarkdown(snap))
}

// JSON prints v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Line prints a plain line.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) markdown(md string) error {
	rendered, err := p.render(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(p.out, rendered)
	return err
}

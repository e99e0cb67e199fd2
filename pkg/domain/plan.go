package domain

import (
	"strings"
	"sync/atomic"
)

// Step is one position of a Plan.
type Step struct {
	Index  int    `json:"index"`
	Action Action `json:"action"`
}

// Plan is an ordered, costed action sequence produced for one goal request.
// It is immutable once returned and may be consumed by an executor exactly once.
type Plan struct {
	ID       string     `json:"id"`
	Goal     Conditions `json:"goal"`
	Start    WorldState `json:"start"`
	Steps    []Step     `json:"steps"`
	Cost     float64    `json:"cost"`
	Expanded int        `json:"expanded"`

	// Bounds are the catalog invariants used when the plan was searched.
	Bounds []Bound `json:"-"`

	consumed atomic.Bool
}

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.Steps) }

// Empty reports whether the goal already held at planning time.
func (p *Plan) Empty() bool { return len(p.Steps) == 0 }

// ActionNames lists the step action names in order.
func (p *Plan) ActionNames() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Action.Name
	}
	return out
}

func (p *Plan) String() string {
	return "[" + strings.Join(p.ActionNames(), ", ") + "]"
}

// Consume marks the plan as executed. The second call returns ErrPlanConsumed.
func (p *Plan) Consume() error {
	if !p.consumed.CompareAndSwap(false, true) {
		return ErrPlanConsumed
	}
	return nil
}

// Consumed reports whether the plan has been handed to an executor.
func (p *Plan) Consumed() bool { return p.consumed.Load() }

// Expected returns the world state the plan predicts after every step succeeds.
func (p *Plan) Expected() WorldState {
	s := p.Start
	for _, step := range p.Steps {
		s = ApplyEffects(s, step.Action.Effects, p.Bounds...)
	}
	return s
}

// Batch is a maximal run of steps sharing one scheduling mode.
type Batch struct {
	Mode  Mode   `json:"mode"`
	Steps []Step `json:"steps"`
}

// Batches partitions the plan, in order, into runs the executor schedules as a unit.
//
// Single steps always form their own batch. Parallel steps join the open parallel
// batch; hybrid steps join it too, or open one when the next step is parallel, and
// otherwise run alone. A step only joins a parallel batch when its preconditions
// already hold in the state the batch starts from, since members run concurrently.
func (p *Plan) Batches() []Batch {
	var (
		out        []Batch
		open       = -1
		batchStart = p.Start
		state      = p.Start
	)

	closeOpen := func() { open = -1 }

	for i, step := range p.Steps {
		mode := step.Action.Mode
		concurrent := mode == ModeParallel ||
			(mode == ModeHybrid && (open >= 0 || p.nextIsParallel(i)))

		if concurrent && open >= 0 && !step.Action.ApplicableIn(batchStart) {
			closeOpen()
			if mode == ModeHybrid {
				concurrent = p.nextIsParallel(i)
			}
		}

		switch {
		case !concurrent:
			closeOpen()
			out = append(out, Batch{Mode: ModeSingle, Steps: []Step{step}})
		case open >= 0:
			out[open].Steps = append(out[open].Steps, step)
		default:
			batchStart = state
			out = append(out, Batch{Mode: ModeParallel, Steps: []Step{step}})
			open = len(out) - 1
		}

		state = ApplyEffects(state, step.Action.Effects, p.Bounds...)
	}
	return out
}

func (p *Plan) nextIsParallel(i int) bool {
	return i+1 < len(p.Steps) && p.Steps[i+1].Action.Mode == ModeParallel
}

package domain

import (
	"fmt"
	"strings"
)

// EffectKind tells whether an effect assigns or increments a fact.
type EffectKind string

const (
	EffectSet EffectKind = "set"
	EffectAdd EffectKind = "add"
)

// Effect is one fact delta applied when an action succeeds.
type Effect struct {
	Fact  Fact       `json:"fact"`
	Kind  EffectKind `json:"kind"`
	Value Value      `json:"value"`
}

// Set assigns a value.
func Set(f Fact, v Value) Effect { return Effect{Fact: f, Kind: EffectSet, Value: v} }

// SetBool assigns a boolean.
func SetBool(f Fact, b bool) Effect { return Set(f, Bool(b)) }

// Add increments an integer fact by n (n may be negative).
func Add(f Fact, n int) Effect { return Effect{Fact: f, Kind: EffectAdd, Value: Int(n)} }

func (e Effect) String() string {
	if e.Kind == EffectAdd {
		return fmt.Sprintf("%s += %d", e.Fact, e.Value.AsInt())
	}
	return fmt.Sprintf("%s = %s", e.Fact, e.Value)
}

// Validate rejects effects without a fact or with an unknown kind.
func (e Effect) Validate() error {
	if e.Fact == "" {
		return fmt.Errorf("effect has no fact")
	}
	switch e.Kind {
	case EffectSet:
	case EffectAdd:
		if e.Value.Kind() == KindBool {
			return fmt.Errorf("effect on %s: cannot add to a boolean", e.Fact)
		}
	default:
		return fmt.Errorf("effect on %s: unknown kind %q", e.Fact, e.Kind)
	}
	return nil
}

// Effects is an ordered list of deltas.
type Effects []Effect

// Facts lists the touched facts in order, without duplicates.
func (es Effects) Facts() []Fact {
	seen := make(map[Fact]bool, len(es))
	out := make([]Fact, 0, len(es))
	for _, e := range es {
		if !seen[e.Fact] {
			seen[e.Fact] = true
			out = append(out, e.Fact)
		}
	}
	return out
}

// Touches reports whether any effect names the fact.
func (es Effects) Touches(f Fact) bool {
	for _, e := range es {
		if e.Fact == f {
			return true
		}
	}
	return false
}

func (es Effects) String() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Conflicts returns the facts both effect lists assign with EffectSet.
// Increments commute, so overlapping EffectAdd deltas are not conflicts.
func Conflicts(a, b Effects) []Fact {
	var out []Fact
	for _, ea := range a {
		for _, eb := range b {
			if ea.Fact != eb.Fact {
				continue
			}
			if ea.Kind == EffectSet || eb.Kind == EffectSet {
				out = append(out, ea.Fact)
			}
		}
	}
	return out
}

// ApplyEffects returns a new state with the effects applied in order.
// Facts the effects do not name are copied unchanged. Touched integer facts are
// clamped to zero and, when a Bound names them, to the value of the limit fact.
func ApplyEffects(s WorldState, effects Effects, bounds ...Bound) WorldState {
	next := make(map[Fact]Value, len(s.facts)+len(effects))
	for k, v := range s.facts {
		next[k] = v
	}

	for _, e := range effects {
		switch e.Kind {
		case EffectAdd:
			cur := next[e.Fact]
			n := cur.AsInt() + e.Value.AsInt()
			if n < 0 {
				n = 0
			}
			next[e.Fact] = Int(n)
		default:
			next[e.Fact] = e.Value
		}
	}

	out := WorldState{facts: next}
	for _, b := range bounds {
		if !effects.Touches(b.Fact) {
			continue
		}
		v := next[b.Fact]
		if v.Kind() == KindBool {
			continue
		}
		if limit := out.Int(b.Limit); v.AsInt() > limit {
			next[b.Fact] = Int(limit)
		}
	}
	return out
}

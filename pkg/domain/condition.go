package domain

import (
	"fmt"
	"strings"
)

// Op is a comparison operator used by conditions.
type Op string

const (
	OpEq  Op = "eq"
	OpNe  Op = "ne"
	OpGte Op = "gte"
	OpGt  Op = "gt"
	OpLte Op = "lte"
	OpLt  Op = "lt"
)

var opSymbols = map[Op]string{
	OpEq: "==", OpNe: "!=", OpGte: ">=", OpGt: ">", OpLte: "<=", OpLt: "<",
}

// Valid reports whether the operator is known.
func (o Op) Valid() bool {
	_, ok := opSymbols[o]
	return ok
}

// Condition is one fact constraint. When Ref is set the fact is compared
// against the current value of Ref instead of the literal Value.
type Condition struct {
	Fact  Fact  `json:"fact"`
	Op    Op    `json:"op"`
	Value Value `json:"value"`
	Ref   Fact  `json:"ref,omitempty"`
}

// Is requires a boolean fact to hold the given value.
func Is(f Fact, b bool) Condition { return Condition{Fact: f, Op: OpEq, Value: Bool(b)} }

// Equals requires an integer fact to equal n.
func Equals(f Fact, n int) Condition { return Condition{Fact: f, Op: OpEq, Value: Int(n)} }

// AtLeast requires an integer fact to be >= n.
func AtLeast(f Fact, n int) Condition { return Condition{Fact: f, Op: OpGte, Value: Int(n)} }

// Compare builds a condition with an explicit operator.
func Compare(f Fact, op Op, n int) Condition { return Condition{Fact: f, Op: op, Value: Int(n)} }

// CompareFact compares a fact against another fact of the same state.
func CompareFact(f Fact, op Op, ref Fact) Condition { return Condition{Fact: f, Op: op, Ref: ref} }

// Holds evaluates the condition against a state.
func (c Condition) Holds(s WorldState) bool {
	left := s.Int(c.Fact)
	right := c.Value.AsInt()
	if c.Ref != "" {
		right = s.Int(c.Ref)
	}
	switch c.Op {
	case OpEq, "":
		return left == right
	case OpNe:
		return left != right
	case OpGte:
		return left >= right
	case OpGt:
		return left > right
	case OpLte:
		return left <= right
	case OpLt:
		return left < right
	}
	return false
}

// Validate rejects unknown operators and ordered comparisons on booleans.
func (c Condition) Validate() error {
	if c.Fact == "" {
		return fmt.Errorf("condition has no fact")
	}
	op := c.Op
	if op == "" {
		op = OpEq
	}
	if !op.Valid() {
		return fmt.Errorf("condition on %s: unknown operator %q", c.Fact, c.Op)
	}
	if c.Ref == "" && c.Value.Kind() == KindBool && op != OpEq && op != OpNe {
		return fmt.Errorf("condition on %s: operator %s is not defined for booleans", c.Fact, op)
	}
	return nil
}

func (c Condition) String() string {
	op := c.Op
	if op == "" {
		op = OpEq
	}
	right := c.Value.String()
	if c.Ref != "" {
		right = "$" + string(c.Ref)
	}
	return fmt.Sprintf("%s %s %s", c.Fact, opSymbols[op], right)
}

// Conditions is an ordered conjunction. Facts it does not mention are wildcards.
type Conditions []Condition

// Satisfies reports whether every condition holds in the state.
func Satisfies(s WorldState, conds Conditions) bool {
	for _, c := range conds {
		if !c.Holds(s) {
			return false
		}
	}
	return true
}

// Unsatisfied counts the conditions that do not hold.
func Unsatisfied(s WorldState, conds Conditions) int {
	n := 0
	for _, c := range conds {
		if !c.Holds(s) {
			n++
		}
	}
	return n
}

// Facts lists the facts the conditions constrain, in order, without duplicates.
func (cs Conditions) Facts() []Fact {
	seen := make(map[Fact]bool, len(cs))
	out := make([]Fact, 0, len(cs))
	for _, c := range cs {
		if !seen[c.Fact] {
			seen[c.Fact] = true
			out = append(out, c.Fact)
		}
	}
	return out
}

func (cs Conditions) String() string {
	if len(cs) == 0 {
		return "{}"
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

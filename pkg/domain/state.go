package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fact names a single piece of production progress.
type Fact string

// Well-known facts of the content-production workflow.
const (
	HasOutline        Fact = "hasOutline"
	HasCharacters     Fact = "hasCharacters"
	HasWorldbuilding  Fact = "hasWorldbuilding"
	ChaptersCompleted Fact = "chaptersCompleted"
	ChaptersTotal     Fact = "chaptersTotal"
	ChaptersRefined   Fact = "chaptersRefined"
	IsCompiled        Fact = "isCompiled"
	IsPublished       Fact = "isPublished"
)

// Kind tells how a Value was declared.
type Kind uint8

const (
	KindUnset Kind = iota
	KindBool
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	default:
		return "unset"
	}
}

// Value is a boolean or integer fact value.
// Booleans are stored as 0/1 so that comparisons are uniform.
type Value struct {
	kind Kind
	n    int
}

// Bool returns a boolean Value.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

// Int returns an integer Value.
func Int(n int) Value {
	return Value{kind: KindInt, n: n}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) AsInt() int { return v.n }
func (v Value) AsBool() bool { return v.n != 0 }

func (v Value) String() string {
	if v.kind == KindBool {
		return strconv.FormatBool(v.AsBool())
	}
	return strconv.Itoa(v.n)
}

// MarshalJSON encodes the value as a native JSON bool or number.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindBool {
		return json.Marshal(v.AsBool())
	}
	return json.Marshal(v.n)
}

// UnmarshalJSON accepts a JSON bool or integer.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(string(bytes.TrimSpace(data)))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseValue parses "true", "false" or an integer literal.
func ParseValue(s string) (Value, error) {
	switch strings.TrimSpace(s) {
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Value{}, fmt.Errorf("invalid fact value %q: expected bool or integer", s)
	}
	return Int(n), nil
}

// ValueOf converts a decoded YAML/JSON scalar into a Value.
func ValueOf(raw any) (Value, error) {
	switch v := raw.(type) {
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(v), nil
	case int64:
		return Int(int(v)), nil
	case uint64:
		return Int(int(v)), nil
	case float64:
		if v != float64(int(v)) {
			return Value{}, fmt.Errorf("invalid fact value %v: must be an integer", v)
		}
		return Int(int(v)), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid fact value %s: %w", v, err)
		}
		return Int(int(n)), nil
	case string:
		return ParseValue(v)
	default:
		return Value{}, fmt.Errorf("unsupported fact value type %T", raw)
	}
}

// WorldState is an immutable snapshot of facts. Missing facts read as false / 0.
// The zero value is an empty state and is ready to use.
type WorldState struct {
	facts map[Fact]Value
}

// NewWorldState copies the given facts into a new state.
func NewWorldState(facts map[Fact]Value) WorldState {
	cp := make(map[Fact]Value, len(facts))
	for k, v := range facts {
		cp[k] = v
	}
	return WorldState{facts: cp}
}

// Get returns the value of a fact and whether it was explicitly set.
func (s WorldState) Get(f Fact) (Value, bool) {
	v, ok := s.facts[f]
	return v, ok
}

func (s WorldState) Bool(f Fact) bool { return s.facts[f].AsBool() }
func (s WorldState) Int(f Fact) int { return s.facts[f].AsInt() }

// Len returns the number of explicitly set facts.
func (s WorldState) Len() int { return len(s.facts) }

// With returns a copy of the state with one fact replaced.
func (s WorldState) With(f Fact, v Value) WorldState {
	cp := make(map[Fact]Value, len(s.facts)+1)
	for k, old := range s.facts {
		cp[k] = old
	}
	cp[f] = v
	return WorldState{facts: cp}
}

// Facts returns the explicitly set fact names in sorted order.
func (s WorldState) Facts() []Fact {
	out := make([]Fact, 0, len(s.facts))
	for f := range s.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Map returns a copy of the underlying facts.
func (s WorldState) Map() map[Fact]Value {
	cp := make(map[Fact]Value, len(s.facts))
	for k, v := range s.facts {
		cp[k] = v
	}
	return cp
}

// Key returns a canonical encoding used for value-equality deduplication.
// Facts holding the zero value are omitted, so an unset fact and an explicit false are equal.
func (s WorldState) Key() string {
	var sb strings.Builder
	for _, f := range s.Facts() {
		v := s.facts[f]
		if v.n == 0 {
			continue
		}
		sb.WriteString(string(f))
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(v.n))
		sb.WriteByte(';')
	}
	return sb.String()
}

// Equal reports value equality (see Key).
func (s WorldState) Equal(other WorldState) bool {
	return s.Key() == other.Key()
}

func (s WorldState) String() string {
	parts := make([]string, 0, len(s.facts))
	for _, f := range s.Facts() {
		parts = append(parts, fmt.Sprintf("%s=%s", f, s.facts[f]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the state as a flat JSON object.
func (s WorldState) MarshalJSON() ([]byte, error) {
	if s.facts == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.facts)
}

// UnmarshalJSON decodes a flat JSON object of bools and integers.
func (s *WorldState) UnmarshalJSON(data []byte) error {
	raw := map[Fact]Value{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode world state: %w", err)
	}
	s.facts = raw
	return nil
}

// StateFromMap converts loosely typed facts (decoded YAML/JSON) into a WorldState.
func StateFromMap(raw map[string]any) (WorldState, error) {
	facts := make(map[Fact]Value, len(raw))
	for k, v := range raw {
		val, err := ValueOf(v)
		if err != nil {
			return WorldState{}, fmt.Errorf("fact %s: %w", k, err)
		}
		facts[Fact(k)] = val
	}
	return WorldState{facts: facts}, nil
}

// Bound declares that Fact must stay within [0, value of Limit].
type Bound struct {
	Fact  Fact `json:"fact" yaml:"fact" mapstructure:"fact"`
	Limit Fact `json:"limit" yaml:"limit" mapstructure:"limit"`
}

// DefaultBounds are the counter invariants of the content-production workflow.
var DefaultBounds = []Bound{
	{Fact: ChaptersCompleted, Limit: ChaptersTotal},
	{Fact: ChaptersRefined, Limit: ChaptersCompleted},
}

// Validate reports every bound the state violates.
func (s WorldState) Validate(bounds ...Bound) error {
	var problems []string
	for _, b := range bounds {
		n := s.Int(b.Fact)
		limit := s.Int(b.Limit)
		if n < 0 || n > limit {
			problems = append(problems, fmt.Sprintf("%s=%d outside [0, %s=%d]", b.Fact, n, b.Limit, limit))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvariantViolation, strings.Join(problems, "; "))
	}
	return nil
}

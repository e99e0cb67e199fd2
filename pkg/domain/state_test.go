package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aretw0/quire/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() domain.WorldState {
	return domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.HasOutline:        domain.Bool(true),
		domain.HasCharacters:     domain.Bool(false),
		domain.ChaptersCompleted: domain.Int(1),
		domain.ChaptersTotal:     domain.Int(5),
	})
}

func TestApplyEffects_FrameProperty(t *testing.T) {
	effectSets := []domain.Effects{
		{domain.SetBool(domain.HasCharacters, true)},
		{domain.Add(domain.ChaptersCompleted, 1)},
		{domain.SetBool(domain.IsPublished, true), domain.Set(domain.ChaptersTotal, domain.Int(7))},
		{},
	}

	s := sampleState()
	for _, effects := range effectSets {
		next := domain.ApplyEffects(s, effects, domain.DefaultBounds...)
		for _, f := range s.Facts() {
			if effects.Touches(f) {
				continue
			}
			before, _ := s.Get(f)
			after, ok := next.Get(f)
			assert.True(t, ok, "fact %s must be preserved", f)
			assert.Equal(t, before, after, "fact %s must be unchanged by %s", f, effects)
		}
	}
}

func TestApplyEffects_IsPure(t *testing.T) {
	s := sampleState()
	_ = domain.ApplyEffects(s, domain.Effects{domain.Add(domain.ChaptersCompleted, 2)})
	assert.Equal(t, 1, s.Int(domain.ChaptersCompleted), "input state must not be mutated")
}

func TestApplyEffects_IncrementAccumulates(t *testing.T) {
	write := domain.Effects{domain.Add(domain.ChaptersCompleted, 1)}
	s := domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.ChaptersCompleted: domain.Int(0),
		domain.ChaptersTotal:     domain.Int(3),
	})

	s = domain.ApplyEffects(s, write, domain.DefaultBounds...)
	s = domain.ApplyEffects(s, write, domain.DefaultBounds...)

	assert.Equal(t, 2, s.Int(domain.ChaptersCompleted))
}

func TestApplyEffects_ClampsToBounds(t *testing.T) {
	s := domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.ChaptersCompleted: domain.Int(3),
		domain.ChaptersTotal:     domain.Int(3),
	})

	over := domain.ApplyEffects(s, domain.Effects{domain.Add(domain.ChaptersCompleted, 1)}, domain.DefaultBounds...)
	assert.Equal(t, 3, over.Int(domain.ChaptersCompleted))

	under := domain.ApplyEffects(s, domain.Effects{domain.Add(domain.ChaptersCompleted, -10)}, domain.DefaultBounds...)
	assert.Equal(t, 0, under.Int(domain.ChaptersCompleted))
	assert.NoError(t, under.Validate(domain.DefaultBounds...))
}

func TestWorldState_Validate(t *testing.T) {
	bad := domain.NewWorldState(map[domain.Fact]domain.Value{
		domain.ChaptersCompleted: domain.Int(4),
		domain.ChaptersTotal:     domain.Int(3),
	})
	err := bad.Validate(domain.DefaultBounds...)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestWorldState_KeyTreatsUnsetAsZero(t *testing.T) {
	a := domain.NewWorldState(map[domain.Fact]domain.Value{domain.HasOutline: domain.Bool(false)})
	b := domain.WorldState{}
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())

	c := b.With(domain.HasOutline, domain.Bool(true))
	assert.False(t, c.Equal(b))
	assert.False(t, b.Bool(domain.HasOutline), "With must not mutate the receiver")
}

func TestWorldState_JSON(t *testing.T) {
	s := sampleState()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hasOutline":true,"hasCharacters":false,"chaptersCompleted":1,"chaptersTotal":5}`, string(data))

	var decoded domain.WorldState
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(s))
	v, _ := decoded.Get(domain.HasOutline)
	assert.Equal(t, domain.KindBool, v.Kind())

	assert.Error(t, json.Unmarshal([]byte(`{"hasOutline":"maybe"}`), &decoded))
}

func TestStateFromMap(t *testing.T) {
	s, err := domain.StateFromMap(map[string]any{
		"hasOutline":        true,
		"chaptersTotal":     float64(3),
		"chaptersCompleted": "2",
	})
	require.NoError(t, err)
	assert.True(t, s.Bool(domain.HasOutline))
	assert.Equal(t, 3, s.Int(domain.ChaptersTotal))
	assert.Equal(t, 2, s.Int(domain.ChaptersCompleted))

	_, err = domain.StateFromMap(map[string]any{"chaptersTotal": 2.5})
	assert.Error(t, err)
}

func TestConditions(t *testing.T) {
	s := sampleState()

	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"bool eq", domain.Is(domain.HasOutline, true), true},
		{"bool unset reads false", domain.Is(domain.IsPublished, false), true},
		{"gte", domain.AtLeast(domain.ChaptersCompleted, 1), true},
		{"gt", domain.Compare(domain.ChaptersCompleted, domain.OpGt, 1), false},
		{"lt ref", domain.CompareFact(domain.ChaptersCompleted, domain.OpLt, domain.ChaptersTotal), true},
		{"eq ref", domain.CompareFact(domain.ChaptersCompleted, domain.OpEq, domain.ChaptersTotal), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Holds(s))
		})
	}

	assert.True(t, domain.Satisfies(s, nil), "empty conditions are wildcards")
	goal := domain.Conditions{
		domain.Is(domain.HasOutline, true),
		domain.CompareFact(domain.ChaptersCompleted, domain.OpEq, domain.ChaptersTotal),
		domain.Is(domain.IsPublished, true),
	}
	assert.False(t, domain.Satisfies(s, goal))
	assert.Equal(t, 2, domain.Unsatisfied(s, goal))
	assert.Equal(t, "{hasOutline == true, chaptersCompleted == $chaptersTotal, isPublished == true}", goal.String())
}

func TestCondition_Validate(t *testing.T) {
	assert.NoError(t, domain.Is(domain.HasOutline, true).Validate())
	assert.Error(t, domain.Condition{Fact: domain.HasOutline, Op: domain.OpGte, Value: domain.Bool(true)}.Validate())
	assert.Error(t, domain.Condition{Fact: domain.HasOutline, Op: "~="}.Validate())
	assert.Error(t, domain.Condition{Op: domain.OpEq}.Validate())
}

func TestConflicts(t *testing.T) {
	writeA := domain.Effects{domain.Add(domain.ChaptersCompleted, 1)}
	writeB := domain.Effects{domain.Add(domain.ChaptersCompleted, 1)}
	assert.Empty(t, domain.Conflicts(writeA, writeB), "increments commute")

	setA := domain.Effects{domain.SetBool(domain.HasCharacters, true)}
	setB := domain.Effects{domain.SetBool(domain.HasCharacters, false)}
	assert.Equal(t, []domain.Fact{domain.HasCharacters}, domain.Conflicts(setA, setB))
}

package domain

// FactChange is the before/after value of one fact.
type FactChange struct {
	From Value `json:"from"`
	To   Value `json:"to"`
}

// StateDiff represents the changes between two world states.
// It is designed to be serialized to JSON for partial updates on observers.
type StateDiff struct {
	Changed map[Fact]FactChange `json:"changed"`
}

// Diff calculates the difference between two states.
// Facts compare by value, so an unset fact equals an explicit false / 0.
// Returns nil when nothing changed.
func Diff(oldState, newState WorldState) *StateDiff {
	delta := make(map[Fact]FactChange)

	// Check for Added or Modified
	for f, newVal := range newState.facts {
		oldVal := oldState.facts[f]
		if oldVal.n != newVal.n {
			delta[f] = FactChange{From: oldVal, To: newVal}
		}
	}

	// Check for Deletions
	for f, oldVal := range oldState.facts {
		if _, exists := newState.facts[f]; !exists && oldVal.n != 0 {
			delta[f] = FactChange{From: oldVal, To: Value{kind: oldVal.kind}}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return &StateDiff{Changed: delta}
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d == nil || len(d.Changed) == 0
}

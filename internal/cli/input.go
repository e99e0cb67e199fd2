package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/quire/pkg/domain"
)

// ParseState reads a world state from a command-line argument. It accepts a
// JSON object, "@path" to a JSON file, or comma separated fact=value pairs
// such as "hasOutline=true,chaptersTotal=3".
func ParseState(arg string) (domain.WorldState, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return domain.WorldState{}, nil
	}

	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.WorldState{}, fmt.Errorf("failed to read state file: %w", err)
		}
		arg = strings.TrimSpace(string(data))
	}

	if strings.HasPrefix(arg, "{") {
		var raw map[string]any
		if err := json.Unmarshal([]byte(arg), &raw); err != nil {
			return domain.WorldState{}, fmt.Errorf("error parsing state JSON: %w", err)
		}
		return domain.StateFromMap(raw)
	}

	facts := make(map[domain.Fact]domain.Value)
	for _, pair := range strings.Split(arg, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return domain.WorldState{}, fmt.Errorf("invalid fact %q, want fact=value", strings.TrimSpace(pair))
		}
		v, err := domain.ParseValue(strings.TrimSpace(raw))
		if err != nil {
			return domain.WorldState{}, fmt.Errorf("fact %s: %w", name, err)
		}
		facts[domain.Fact(name)] = v
	}
	return domain.NewWorldState(facts), nil
}

package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/quire/pkg/domain"
)

// Format selects the catalog file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf infers the format from a file extension; anything but .json is YAML.
func FormatOf(path string) Format {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return FormatJSON
	}
	return FormatYAML
}

// actionSpec is the file representation of one action.
type actionSpec struct {
	Name              string         `mapstructure:"name"`
	Description       string         `mapstructure:"description"`
	Category          string         `mapstructure:"category"`
	Mode              string         `mapstructure:"mode"`
	Cost              *float64       `mapstructure:"cost"`
	EstimatedDuration time.Duration  `mapstructure:"estimated_duration"`
	Handler           string         `mapstructure:"handler"`
	Preconditions     map[string]any `mapstructure:"preconditions"`
	Effects           map[string]any `mapstructure:"effects"`
}

type boundSpec struct {
	Fact  string `mapstructure:"fact"`
	Limit string `mapstructure:"limit"`
}

type fileSpec struct {
	Bounds  []boundSpec  `mapstructure:"bounds"`
	Actions []actionSpec `mapstructure:"actions"`
}

// LoadFile reads a YAML or JSON catalog and returns it frozen.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	c, err := Load(f, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load parses a catalog document and returns it frozen.
//
// Fact maps accept a shorthand. Preconditions: `hasOutline: true`,
// `chaptersTotal: 3`, `chaptersCompleted: {gte: 1}`, `chaptersCompleted: "< $chaptersTotal"`.
// Effects: `isCompiled: true` and `chaptersTotal: 3` assign; `chaptersCompleted: +1`,
// `chaptersCompleted: "+1"` and `chaptersCompleted: {add: 1}` increment.
func Load(r io.Reader, format Format) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	raw := map[string]any{}
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &raw)
	default:
		raw, err = decodeYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	var spec fileSpec
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      &spec,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if len(spec.Actions) == 0 {
		return nil, &domain.ConfigError{Reason: "catalog defines no actions"}
	}

	actions := make([]domain.Action, 0, len(spec.Actions))
	for _, as := range spec.Actions {
		a, err := as.toAction()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	var opts []Option
	if len(spec.Bounds) > 0 {
		bounds := make([]domain.Bound, 0, len(spec.Bounds))
		for _, b := range spec.Bounds {
			if b.Fact == "" || b.Limit == "" {
				return nil, &domain.ConfigError{Reason: "bound needs both fact and limit"}
			}
			bounds = append(bounds, domain.Bound{Fact: domain.Fact(b.Fact), Limit: domain.Fact(b.Limit)})
		}
		opts = append(opts, WithBounds(bounds...))
	}

	return Build(actions, opts...)
}

func (s actionSpec) toAction() (domain.Action, error) {
	a := domain.Action{
		Name:              s.Name,
		Description:       s.Description,
		Category:          domain.Category(s.Category),
		Mode:              domain.Mode(s.Mode),
		Cost:              1,
		EstimatedDuration: s.EstimatedDuration,
		Handler:           s.Handler,
	}
	if a.Mode == "" {
		a.Mode = domain.ModeSingle
	}
	if s.Cost != nil {
		a.Cost = *s.Cost
	}

	pre, err := ParseConditions(s.Preconditions)
	if err != nil {
		return a, &domain.ConfigError{Action: s.Name, Reason: err.Error()}
	}
	a.Preconditions = pre

	effects, err := ParseEffects(s.Effects)
	if err != nil {
		return a, &domain.ConfigError{Action: s.Name, Reason: err.Error()}
	}
	a.Effects = effects
	return a, nil
}

// ParseEffects converts a shorthand effect map into effects, sorted by fact.
func ParseEffects(raw map[string]any) (domain.Effects, error) {
	var out domain.Effects
	for _, fact := range sortedKeys(raw) {
		e, err := parseEffect(domain.Fact(fact), raw[fact])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ParseConditions converts a shorthand fact map into conditions, sorted by fact.
func ParseConditions(raw map[string]any) (domain.Conditions, error) {
	var out domain.Conditions
	for _, fact := range sortedKeys(raw) {
		c, err := parseCondition(domain.Fact(fact), raw[fact])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ParseGoal parses a goal expression.
//
// Two forms are accepted: a YAML/JSON flow map using the precondition shorthand,
// e.g. `{chaptersCompleted: 3, isPublished: true}`, or a comma-separated clause
// list such as `chaptersCompleted >= 3, isPublished, !hasOutline`.
func ParseGoal(expr string) (domain.Conditions, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty goal")
	}

	if strings.HasPrefix(expr, "{") {
		raw := map[string]any{}
		if err := yaml.Unmarshal([]byte(expr), &raw); err != nil {
			return nil, fmt.Errorf("invalid goal %q: %w", expr, err)
		}
		return ParseConditions(raw)
	}

	var out domain.Conditions
	for _, clause := range strings.Split(expr, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		c, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty goal")
	}
	return out, nil
}

// clauseOps is ordered so two-character operators match first.
var clauseOps = []struct {
	sym string
	op  domain.Op
}{
	{"==", domain.OpEq},
	{"!=", domain.OpNe},
	{">=", domain.OpGte},
	{"<=", domain.OpLte},
	{">", domain.OpGt},
	{"<", domain.OpLt},
	{"=", domain.OpEq},
}

func parseClause(clause string) (domain.Condition, error) {
	for _, o := range clauseOps {
		if i := strings.Index(clause, o.sym); i > 0 {
			fact := domain.Fact(strings.TrimSpace(clause[:i]))
			return operand(fact, o.op, strings.TrimSpace(clause[i+len(o.sym):]))
		}
	}
	if strings.HasPrefix(clause, "!") {
		return validated(domain.Is(domain.Fact(strings.TrimSpace(clause[1:])), false))
	}
	return validated(domain.Is(domain.Fact(clause), true))
}

func parseCondition(fact domain.Fact, raw any) (domain.Condition, error) {
	switch v := raw.(type) {
	case string:
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "$") {
			return operand(fact, domain.OpEq, v)
		}
		for _, o := range clauseOps {
			if strings.HasPrefix(v, o.sym) {
				return operand(fact, o.op, strings.TrimSpace(v[len(o.sym):]))
			}
		}
		return operand(fact, domain.OpEq, v)
	case map[string]any:
		if len(v) != 1 {
			return domain.Condition{}, fmt.Errorf("condition on %s: expected exactly one operator, got %d", fact, len(v))
		}
		for op, arg := range v {
			return operand(fact, domain.Op(op), arg)
		}
	}
	return operand(fact, domain.OpEq, raw)
}

// operand builds a condition whose right-hand side is a literal or a "$fact" reference.
func operand(fact domain.Fact, op domain.Op, arg any) (domain.Condition, error) {
	if s, ok := arg.(string); ok {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "$") {
			return validated(domain.Condition{Fact: fact, Op: op, Ref: domain.Fact(s[1:])})
		}
		v, err := domain.ParseValue(s)
		if err != nil {
			return domain.Condition{}, fmt.Errorf("condition on %s: %w", fact, err)
		}
		return validated(domain.Condition{Fact: fact, Op: op, Value: v})
	}
	v, err := domain.ValueOf(arg)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition on %s: %w", fact, err)
	}
	return validated(domain.Condition{Fact: fact, Op: op, Value: v})
}

func validated(c domain.Condition) (domain.Condition, error) {
	if err := c.Validate(); err != nil {
		return domain.Condition{}, err
	}
	return c, nil
}

func parseEffect(fact domain.Fact, raw any) (domain.Effect, error) {
	e, err := effectOf(fact, raw)
	if err != nil {
		return domain.Effect{}, err
	}
	if err := e.Validate(); err != nil {
		return domain.Effect{}, err
	}
	return e, nil
}

func effectOf(fact domain.Fact, raw any) (domain.Effect, error) {
	switch v := raw.(type) {
	case string:
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "+") || strings.HasPrefix(v, "-") {
			val, err := domain.ParseValue(strings.TrimPrefix(v, "+"))
			if err != nil {
				return domain.Effect{}, fmt.Errorf("effect on %s: %w", fact, err)
			}
			if val.Kind() != domain.KindInt {
				return domain.Effect{}, fmt.Errorf("effect on %s: increment %q is not an integer", fact, v)
			}
			return domain.Add(fact, val.AsInt()), nil
		}
		val, err := domain.ParseValue(v)
		if err != nil {
			return domain.Effect{}, fmt.Errorf("effect on %s: %w", fact, err)
		}
		return domain.Set(fact, val), nil
	case map[string]any:
		if len(v) != 1 {
			return domain.Effect{}, fmt.Errorf("effect on %s: expected exactly one of set/add", fact)
		}
		for kind, arg := range v {
			val, err := domain.ValueOf(arg)
			if err != nil {
				return domain.Effect{}, fmt.Errorf("effect on %s: %w", fact, err)
			}
			return domain.Effect{Fact: fact, Kind: domain.EffectKind(kind), Value: val}, nil
		}
	}
	val, err := domain.ValueOf(raw)
	if err != nil {
		return domain.Effect{}, fmt.Errorf("effect on %s: %w", fact, err)
	}
	return domain.Set(fact, val), nil
}

// decodeYAML decodes a catalog document, keeping effect scalars written with an
// explicit sign (`chaptersCompleted: +1`) as strings so they parse as increments
// rather than as the integer they resolve to.
func decodeYAML(data []byte) (map[string]any, error) {
	raw := map[string]any{}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return raw, nil
	}
	if err := doc.Decode(&raw); err != nil {
		return nil, err
	}

	actionNodes := mappingValue(doc.Content[0], "actions")
	actions, ok := raw["actions"].([]any)
	if actionNodes == nil || actionNodes.Kind != yaml.SequenceNode || !ok || len(actions) != len(actionNodes.Content) {
		return raw, nil
	}
	for i, node := range actionNodes.Content {
		effectNodes := mappingValue(node, "effects")
		action, ok := actions[i].(map[string]any)
		if effectNodes == nil || effectNodes.Kind != yaml.MappingNode || !ok {
			continue
		}
		effects, ok := action["effects"].(map[string]any)
		if !ok {
			continue
		}
		for j := 0; j+1 < len(effectNodes.Content); j += 2 {
			key, val := effectNodes.Content[j], effectNodes.Content[j+1]
			if signedNumber(val) {
				effects[key.Value] = val.Value
			}
		}
	}
	return raw, nil
}

// mappingValue returns the value node of key in a mapping node, or nil.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func signedNumber(n *yaml.Node) bool {
	if n.Kind != yaml.ScalarNode || n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) != 0 {
		return false
	}
	if tag := n.ShortTag(); tag != "!!int" && tag != "!!float" {
		return false
	}
	return strings.HasPrefix(n.Value, "+") || strings.HasPrefix(n.Value, "-")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

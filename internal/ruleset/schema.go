package ruleset

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Direction tells the replayer how a feature-bound parameter gates an
// entry. AtMost means the feature must be at or below the parameter
// value for the decision to fire (oversold thresholds), AtLeast the
// opposite (regime-strength cutoffs). None means the parameter does not
// filter historical records (sizing multipliers and the like).
type Direction string

const (
	AtMost  Direction = "at_most"
	AtLeast Direction = "at_least"
	None    Direction = "none"
)

// ParamSpec declares the valid range and grid step for one numeric
// parameter, plus an optional feature binding used during replay.
type ParamSpec struct {
	Key       string    `json:"key"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Step      float64   `json:"step"`
	Feature   string    `json:"feature,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

func (p ParamSpec) validate() error {
	if strings.TrimSpace(p.Key) == "" {
		return fmt.Errorf("param spec: key cannot be empty")
	}
	if p.Step <= 0 {
		return fmt.Errorf("param %s: step must be positive, got %g", p.Key, p.Step)
	}
	if p.Min >= p.Max {
		return fmt.Errorf("param %s: min %g must be below max %g", p.Key, p.Min, p.Max)
	}
	switch p.Direction {
	case AtMost, AtLeast:
		if strings.TrimSpace(p.Feature) == "" {
			return fmt.Errorf("param %s: direction %s requires a feature binding", p.Key, p.Direction)
		}
	case None, "":
	default:
		return fmt.Errorf("param %s: unknown direction %q", p.Key, p.Direction)
	}
	return nil
}

// onGrid reports whether v sits on the declared grid within tolerance.
func (p ParamSpec) onGrid(v float64) bool {
	if v < p.Min-1e-9 || v > p.Max+1e-9 {
		return false
	}
	steps := (v - p.Min) / p.Step
	return math.Abs(steps-math.Round(steps)) < 1e-6
}

// clamp snaps v into [Min, Max].
func (p ParamSpec) clamp(v float64) float64 {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// Schema is the declared parameter space of a strategy. Key order is
// fixed at construction and drives deterministic candidate generation.
type Schema struct {
	specs []ParamSpec
	byKey map[string]ParamSpec
}

// NewSchema builds a schema, rejecting duplicate or malformed specs.
// Specs are sorted by key so iteration order never depends on input
// order.
func NewSchema(specs []ParamSpec) (*Schema, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("schema requires at least one param spec")
	}
	sorted := make([]ParamSpec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	byKey := make(map[string]ParamSpec, len(sorted))
	for _, spec := range sorted {
		if err := spec.validate(); err != nil {
			return nil, err
		}
		if _, dup := byKey[spec.Key]; dup {
			return nil, fmt.Errorf("duplicate param spec: %s", spec.Key)
		}
		byKey[spec.Key] = spec
	}
	return &Schema{specs: sorted, byKey: byKey}, nil
}

// Keys returns the schema keys in canonical order.
func (s *Schema) Keys() []string {
	out := make([]string, len(s.specs))
	for i, spec := range s.specs {
		out[i] = spec.Key
	}
	return out
}

// Spec looks up one parameter spec.
func (s *Schema) Spec(key string) (ParamSpec, bool) {
	spec, ok := s.byKey[key]
	return spec, ok
}

// Validate checks a full parameter vector against the schema: no
// unknown keys, no missing keys, every value in range and on grid.
func (s *Schema) Validate(params map[string]float64) error {
	for key := range params {
		if _, ok := s.byKey[key]; !ok {
			return fmt.Errorf("unknown param: %s", key)
		}
	}
	for _, spec := range s.specs {
		v, ok := params[spec.Key]
		if !ok {
			return fmt.Errorf("missing param: %s", spec.Key)
		}
		if !spec.onGrid(v) {
			return fmt.Errorf("param %s: value %g outside grid [%g,%g] step %g",
				spec.Key, v, spec.Min, spec.Max, spec.Step)
		}
	}
	return nil
}

package ruleset

import (
	"fmt"
	"sort"
	"strings"
)

// Schedule bounds the perturbation search. Offsets are grid steps
// applied per key; MaxJoint caps how many adjacent key pairs get joint
// perturbations. The schedule plus the base rule set fully determine
// the candidate list, so repeated runs against unchanged input produce
// identical candidates.
type Schedule struct {
	Offsets  []int `json:"offsets"`
	MaxJoint int   `json:"max_joint"`
}

// DefaultSchedule is one grid step in each direction per parameter and
// joint moves on the first four adjacent key pairs.
func DefaultSchedule() Schedule {
	return Schedule{Offsets: []int{-1, 1}, MaxJoint: 4}
}

// Candidate is one perturbed rule set with a stable id used for
// reproducible tie-breaking.
type Candidate struct {
	ID      string  `json:"id"`
	RuleSet RuleSet `json:"rule_set"`
}

// Generate produces the bounded candidate neighborhood of base. The
// base must validate against the schema. Candidates that clamp back
// onto the base value are dropped; duplicates collapse to one entry.
// The returned list is sorted by candidate id.
func Generate(schema *Schema, base RuleSet, schedule Schedule) ([]Candidate, error) {
	if err := schema.Validate(base.Params); err != nil {
		return nil, fmt.Errorf("base rule set invalid: %w", err)
	}
	offsets := schedule.Offsets
	if len(offsets) == 0 {
		offsets = []int{-1, 1}
	}
	keys := schema.Keys()
	seen := make(map[string]bool)
	var out []Candidate

	add := func(id string, rs RuleSet) {
		sig := signature(rs)
		if seen[sig] {
			return
		}
		seen[sig] = true
		out = append(out, Candidate{ID: id, RuleSet: rs})
	}

	// Single-parameter moves.
	for _, key := range keys {
		spec, _ := schema.Spec(key)
		for _, off := range offsets {
			next := spec.clamp(base.Params[key] + float64(off)*spec.Step)
			if next == base.Params[key] {
				continue
			}
			rs := base.Clone()
			rs.Params[key] = next
			add(fmt.Sprintf("%s%+d", key, off), rs)
		}
	}

	// Joint moves on adjacent key pairs, same offset both keys.
	joint := schedule.MaxJoint
	for i := 0; i+1 < len(keys) && i < joint; i++ {
		a, b := keys[i], keys[i+1]
		specA, _ := schema.Spec(a)
		specB, _ := schema.Spec(b)
		for _, off := range offsets {
			nextA := specA.clamp(base.Params[a] + float64(off)*specA.Step)
			nextB := specB.clamp(base.Params[b] + float64(off)*specB.Step)
			if nextA == base.Params[a] && nextB == base.Params[b] {
				continue
			}
			rs := base.Clone()
			rs.Params[a] = nextA
			rs.Params[b] = nextB
			add(fmt.Sprintf("%s%+d,%s%+d", a, off, b, off), rs)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func signature(rs RuleSet) string {
	keys := make([]string, 0, len(rs.Params))
	for k := range rs.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%.9f;", k, rs.Params[k])
	}
	return sb.String()
}

package ruleset

import (
	"recal/internal/record"
)

// Replay selects the historical decisions a rule set would have taken:
// a record is included iff every feature-bound parameter's direction
// holds against the record's stored feature value. Records missing a
// bound feature are excluded, since the rule could not have evaluated
// them. Unbound parameters never filter.
//
// The returned slice preserves chronological order; replay must never
// reorder its input.
func Replay(schema *Schema, rs RuleSet, records []record.DecisionRecord) []record.DecisionRecord {
	out := make([]record.DecisionRecord, 0, len(records))
	for _, rec := range records {
		if Accepts(schema, rs, rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Accepts applies the rule set's feature-bound thresholds to a single
// record.
func Accepts(schema *Schema, rs RuleSet, rec record.DecisionRecord) bool {
	for _, key := range schema.Keys() {
		spec, _ := schema.Spec(key)
		if spec.Direction != AtMost && spec.Direction != AtLeast {
			continue
		}
		value, ok := rec.Features[spec.Feature]
		if !ok {
			return false
		}
		threshold := rs.Params[key]
		if spec.Direction == AtMost && value > threshold {
			return false
		}
		if spec.Direction == AtLeast && value < threshold {
			return false
		}
	}
	return true
}

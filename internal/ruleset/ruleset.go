package ruleset

import (
	"time"
)

// RuleSet is a named parameter vector.
type RuleSet struct {
	Name   string             `json:"name"`
	Params map[string]float64 `json:"params"`
}

// Clone performs a deep copy so candidates never share param maps.
func (r RuleSet) Clone() RuleSet {
	params := make(map[string]float64, len(r.Params))
	for k, v := range r.Params {
		params[k] = v
	}
	return RuleSet{Name: r.Name, Params: params}
}

// Version is one immutable, parent-linked snapshot of the active rule
// set.
type Version struct {
	ID          string    `json:"id"`
	ParentID    string    `json:"parent_id,omitempty"`
	RuleSet     RuleSet   `json:"rule_set"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

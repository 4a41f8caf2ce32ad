package config

import (
	"strings"
	"time"

	"recal/internal/calibration"
	"recal/internal/evaluate"
	"recal/internal/gates"
	"recal/internal/learner"
	"recal/internal/ruleset"

	"gopkg.in/yaml.v3"
)

// Schema builds the parameter schema from the declared params.
func (c *Config) Schema() (*ruleset.Schema, error) {
	specs := make([]ruleset.ParamSpec, 0, len(c.Params))
	for _, p := range c.Params {
		specs = append(specs, ruleset.ParamSpec{
			Key:       strings.TrimSpace(p.Key),
			Min:       p.Min,
			Max:       p.Max,
			Step:      p.Step,
			Feature:   strings.TrimSpace(p.Feature),
			Direction: direction(p.Direction),
		})
	}
	return ruleset.NewSchema(specs)
}

func direction(s string) ruleset.Direction {
	switch strings.TrimSpace(s) {
	case "at_most":
		return ruleset.AtMost
	case "at_least":
		return ruleset.AtLeast
	default:
		return ruleset.None
	}
}

// BaselineRuleSet is the initial rule set used to seed an empty store.
func (c *Config) BaselineRuleSet() ruleset.RuleSet {
	params := make(map[string]float64, len(c.Baseline.Params))
	for k, v := range c.Baseline.Params {
		params[k] = v
	}
	name := strings.TrimSpace(c.Baseline.Name)
	if name == "" {
		name = "baseline"
	}
	return ruleset.RuleSet{Name: name, Params: params}
}

// LearnerConfig assembles the learner settings from all sections.
func (c *Config) LearnerConfig() learner.Config {
	return learner.Config{
		Window:      time.Duration(c.Learner.WindowDays) * 24 * time.Hour,
		MinRecords:  c.Learner.MinRecords,
		Parallelism: c.Learner.Parallelism,
		Schedule: ruleset.Schedule{
			Offsets:  append([]int(nil), c.Learner.Offsets...),
			MaxJoint: c.Learner.MaxJoint,
		},
		Eval:        c.EvalConfig(),
		Calibration: c.CalibrationConfig(),
	}
}

// EvalConfig maps the evaluate section onto the metric settings.
func (c *Config) EvalConfig() evaluate.Config {
	return evaluate.Config{
		MinTrades:           c.Evaluate.MinTrades,
		AnnualizationFactor: c.Evaluate.AnnualizationFactor,
		Bins:                c.Evaluate.Bins,
		BootstrapIterations: c.Evaluate.BootstrapIterations,
		BootstrapSeed:       c.Evaluate.BootstrapSeed,
		DriftFlagThreshold:  c.Evaluate.DriftFlagThreshold,
	}
}

// CalibrationConfig maps the calibration section onto fit settings.
func (c *Config) CalibrationConfig() calibration.Config {
	method := calibration.Isotonic
	if strings.TrimSpace(c.Calibration.Method) == "platt" {
		method = calibration.Platt
	}
	return calibration.Config{
		Method:      method,
		MinPairs:    c.Calibration.MinPairs,
		HoldoutFrac: c.Calibration.HoldoutFrac,
		MaxAge:      time.Duration(c.Calibration.MaxAgeDays) * 24 * time.Hour,
	}
}

// Thresholds is the bootstrap gate threshold set.
func (c *Config) Thresholds() gates.Thresholds {
	return gates.Thresholds{
		MinTestTrades:        c.Gates.MinTestTrades,
		MinSharpeAbs:         c.Gates.MinSharpeAbs,
		MinSharpeRel:         c.Gates.MinSharpeRel,
		BrierTolerance:       c.Gates.BrierTolerance,
		SlopeMin:             c.Gates.SlopeMin,
		SlopeMax:             c.Gates.SlopeMax,
		MaxDrawdownTolerance: c.Gates.MaxDrawdownTolerance,
		HitRatePValue:        c.Gates.HitRatePValue,
		PSIMax:               c.Gates.PSIMax,
		MaxTradesPerDay:      c.Gates.MaxTradesPerDay,
	}
}

// RunInterval is the cadence of scheduled learning runs.
func (c *Config) RunInterval() time.Duration {
	return time.Duration(c.Learner.RunIntervalHours) * time.Hour
}

// Dump renders the effective configuration as YAML for the debug
// endpoint.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}

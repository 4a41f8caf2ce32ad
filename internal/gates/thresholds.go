package gates

import (
	"fmt"
)

// ConfigError marks a malformed threshold configuration. Updates
// failing validation are rejected outright, never coerced.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "gate config: " + e.Reason }

// Kind is the machine-readable error class recorded on learning runs.
func (e *ConfigError) Kind() string { return "gate_config" }

// Thresholds is the declarative promotion rule book. Mutable only
// through the audited configuration-update path.
type Thresholds struct {
	MinTestTrades        int     `json:"min_test_trades"`
	MinSharpeAbs         float64 `json:"min_sharpe_abs"`
	MinSharpeRel         float64 `json:"min_sharpe_rel"`
	BrierTolerance       float64 `json:"brier_tolerance"`
	SlopeMin             float64 `json:"slope_min"`
	SlopeMax             float64 `json:"slope_max"`
	MaxDrawdownTolerance float64 `json:"max_drawdown_tolerance"`
	HitRatePValue        float64 `json:"hit_rate_p_value"`
	PSIMax               float64 `json:"psi_max"`
	MaxTradesPerDay      float64 `json:"max_trades_per_day"`
}

// DefaultThresholds carries the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTestTrades:        200,
		MinSharpeAbs:         0.20,
		MinSharpeRel:         0.15,
		BrierTolerance:       0.02,
		SlopeMin:             0.8,
		SlopeMax:             1.2,
		MaxDrawdownTolerance: 0.10,
		HitRatePValue:        0.05,
		PSIMax:               0.25,
		MaxTradesPerDay:      50,
	}
}

// Validate rejects threshold sets that could never gate sanely.
func (t Thresholds) Validate() error {
	if t.MinTestTrades <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("min_test_trades must be positive, got %d", t.MinTestTrades)}
	}
	if t.MinSharpeAbs < 0 {
		return &ConfigError{Reason: "min_sharpe_abs cannot be negative"}
	}
	if t.MinSharpeRel < 0 {
		return &ConfigError{Reason: "min_sharpe_rel cannot be negative"}
	}
	if t.BrierTolerance < 0 {
		return &ConfigError{Reason: "brier_tolerance cannot be negative"}
	}
	if t.SlopeMin >= t.SlopeMax {
		return &ConfigError{Reason: fmt.Sprintf("slope band [%g,%g] is empty", t.SlopeMin, t.SlopeMax)}
	}
	if t.MaxDrawdownTolerance < 0 {
		return &ConfigError{Reason: "max_drawdown_tolerance cannot be negative"}
	}
	if t.HitRatePValue <= 0 || t.HitRatePValue >= 1 {
		return &ConfigError{Reason: fmt.Sprintf("hit_rate_p_value %g outside (0,1)", t.HitRatePValue)}
	}
	if t.PSIMax <= 0 {
		return &ConfigError{Reason: "psi_max must be positive"}
	}
	if t.MaxTradesPerDay <= 0 {
		return &ConfigError{Reason: "max_trades_per_day must be positive"}
	}
	return nil
}

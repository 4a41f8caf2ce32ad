package gates

import (
	"fmt"
	"math"

	"recal/internal/evaluate"
)

// Gate names, stable for audit queries.
const (
	GateMinTrades = "min_test_trades"
	GateSharpeAbs = "sharpe_improvement_abs"
	GateSharpeRel = "sharpe_improvement_rel"
	GateBrier     = "brier_no_regression"
	GateSlope     = "calibration_slope_band"
	GateDrawdown  = "drawdown_no_deterioration"
	GateHitRate   = "hit_rate_significance"
	GatePSI       = "feature_stability"
	GateTurnover  = "turnover_cap"
)

// Result is one gate's verdict with the measured value and the bound it
// was held against.
type Result struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Detail    string  `json:"detail,omitempty"`
}

// Check compares the candidate's test-slice metrics against the
// baseline under the given thresholds. Pure: identical inputs yield an
// identical result list, and the overall verdict is the AND of every
// gate. The result order is fixed.
func Check(baseline, candidate evaluate.Bundle, cmp evaluate.Comparison, stability evaluate.StabilityReport, t Thresholds) (bool, []Result) {
	var results []Result
	add := func(name string, passed bool, value, threshold float64, detail string) {
		results = append(results, Result{Name: name, Passed: passed, Value: value, Threshold: threshold, Detail: detail})
	}

	add(GateMinTrades,
		candidate.Trades >= t.MinTestTrades,
		float64(candidate.Trades), float64(t.MinTestTrades),
		"trades in test slice")

	absImp := candidate.Sharpe - baseline.Sharpe
	add(GateSharpeAbs,
		absImp >= t.MinSharpeAbs,
		absImp, t.MinSharpeAbs,
		fmt.Sprintf("baseline %.4f candidate %.4f", baseline.Sharpe, candidate.Sharpe))

	// With a near-zero baseline the relative measure is meaningless;
	// defer to the absolute gate and report the finite absolute
	// improvement so the result survives JSON encoding.
	if math.Abs(baseline.Sharpe) > 1e-9 {
		relImp := absImp / math.Abs(baseline.Sharpe)
		add(GateSharpeRel,
			relImp >= t.MinSharpeRel,
			relImp, t.MinSharpeRel,
			"relative to |baseline|")
	} else {
		add(GateSharpeRel,
			absImp >= t.MinSharpeAbs,
			absImp, t.MinSharpeAbs,
			"baseline near zero, absolute improvement reported")
	}

	brierLimit := baseline.Brier + t.BrierTolerance
	add(GateBrier,
		candidate.Brier <= brierLimit,
		candidate.Brier, brierLimit,
		fmt.Sprintf("baseline %.4f", baseline.Brier))

	add(GateSlope,
		candidate.CalibrationSlope >= t.SlopeMin && candidate.CalibrationSlope <= t.SlopeMax,
		candidate.CalibrationSlope, t.SlopeMax,
		fmt.Sprintf("band [%.2f,%.2f]", t.SlopeMin, t.SlopeMax))

	ddLimit := baseline.MaxDrawdown * (1 + t.MaxDrawdownTolerance)
	add(GateDrawdown,
		candidate.MaxDrawdown <= ddLimit,
		candidate.MaxDrawdown, ddLimit,
		fmt.Sprintf("baseline %.4f tolerance %.0f%%", baseline.MaxDrawdown, t.MaxDrawdownTolerance*100))

	add(GateHitRate,
		cmp.HitRatePValue < t.HitRatePValue,
		cmp.HitRatePValue, t.HitRatePValue,
		fmt.Sprintf("hit-rate diff %+.4f", cmp.HitRateDiff))

	add(GatePSI,
		stability.Aggregate < t.PSIMax,
		stability.Aggregate, t.PSIMax,
		fmt.Sprintf("%d features drifted", len(stability.Drifted)))

	add(GateTurnover,
		candidate.TradesPerDay <= t.MaxTradesPerDay,
		candidate.TradesPerDay, t.MaxTradesPerDay,
		"implied trades per day")

	passed := true
	for _, r := range results {
		if !r.Passed {
			passed = false
			break
		}
	}
	return passed, results
}

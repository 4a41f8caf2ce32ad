package gates

import (
	"encoding/json"
	"math"
	"testing"

	"recal/internal/evaluate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingInputs() (evaluate.Bundle, evaluate.Bundle, evaluate.Comparison, evaluate.StabilityReport) {
	baseline := evaluate.Bundle{
		Trades:       300,
		Sharpe:       1.0,
		Brier:        0.20,
		MaxDrawdown:  100,
		TradesPerDay: 8,
	}
	candidate := evaluate.Bundle{
		Trades:           300,
		Sharpe:           1.4,
		Brier:            0.19,
		CalibrationSlope: 0.95,
		MaxDrawdown:      90,
		TradesPerDay:     8,
	}
	cmp := evaluate.Comparison{HitRateDiff: 0.04, HitRatePValue: 0.01}
	stability := evaluate.StabilityReport{Aggregate: 0.05}
	return baseline, candidate, cmp, stability
}

func resultByName(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("gate %q missing from results", name)
	return Result{}
}

func TestCheckAllGatesPass(t *testing.T) {
	baseline, candidate, cmp, stability := passingInputs()
	passed, results := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	require.True(t, passed)
	require.Len(t, results, 9)
	for _, r := range results {
		assert.True(t, r.Passed, "gate %s should pass", r.Name)
	}
}

func TestCheckSingleFailureVetoes(t *testing.T) {
	baseline, candidate, cmp, stability := passingInputs()
	stability.Aggregate = 0.40 // drifted features beyond the cap

	passed, results := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	assert.False(t, passed, "one failed gate vetoes promotion")

	psi := resultByName(t, results, GatePSI)
	assert.False(t, psi.Passed)
	assert.InDelta(t, 0.40, psi.Value, 1e-9)

	for _, r := range results {
		if r.Name != GatePSI {
			assert.True(t, r.Passed, "gate %s should still pass", r.Name)
		}
	}
}

func TestCheckImprovementWithoutSignificance(t *testing.T) {
	baseline, candidate, cmp, stability := passingInputs()
	cmp.HitRatePValue = 0.30 // better Sharpe but the hit-rate edge is noise

	passed, results := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	assert.False(t, passed)
	assert.False(t, resultByName(t, results, GateHitRate).Passed)
	assert.True(t, resultByName(t, results, GateSharpeAbs).Passed)
}

func TestCheckRelativeSharpeNearZeroBaseline(t *testing.T) {
	baseline, candidate, cmp, stability := passingInputs()
	baseline.Sharpe = 0
	candidate.Sharpe = 0.5 // clears the absolute bar

	passed, results := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	assert.True(t, passed, "relative gate defers to absolute when baseline is flat")
	assert.True(t, resultByName(t, results, GateSharpeRel).Passed)

	candidate.Sharpe = 0.1 // under the absolute bar too
	passed, results = Check(baseline, candidate, cmp, stability, DefaultThresholds())
	assert.False(t, passed)
	assert.False(t, resultByName(t, results, GateSharpeRel).Passed)
}

func TestCheckResultsEncodeWithZeroBaseline(t *testing.T) {
	baseline, candidate, cmp, stability := passingInputs()
	baseline.Sharpe = 0
	candidate.Sharpe = 0.5

	_, results := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	rel := resultByName(t, results, GateSharpeRel)
	assert.False(t, math.IsInf(rel.Value, 0), "gate values must stay finite")
	assert.InDelta(t, 0.5, rel.Value, 1e-9)

	_, err := json.Marshal(results)
	require.NoError(t, err, "gate results are embedded in persisted run records")
}

func TestCheckDrawdownTolerance(t *testing.T) {
	baseline, candidate, cmp, stability := passingInputs()
	candidate.MaxDrawdown = 109 // within the 10% band over baseline 100
	passed, _ := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	assert.True(t, passed)

	candidate.MaxDrawdown = 111
	passed, results := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	assert.False(t, passed)
	assert.False(t, resultByName(t, results, GateDrawdown).Passed)
}

func TestCheckDeterministic(t *testing.T) {
	baseline, candidate, cmp, stability := passingInputs()
	_, first := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	_, second := Check(baseline, candidate, cmp, stability, DefaultThresholds())
	assert.Equal(t, first, second, "pure check, fixed order")

	names := make([]string, len(first))
	for i, r := range first {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		GateMinTrades, GateSharpeAbs, GateSharpeRel, GateBrier, GateSlope,
		GateDrawdown, GateHitRate, GatePSI, GateTurnover,
	}, names)
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	cases := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"zero min trades", func(th *Thresholds) { th.MinTestTrades = 0 }},
		{"negative sharpe floor", func(th *Thresholds) { th.MinSharpeAbs = -0.1 }},
		{"empty slope band", func(th *Thresholds) { th.SlopeMin = 1.2; th.SlopeMax = 1.2 }},
		{"p-value out of range", func(th *Thresholds) { th.HitRatePValue = 1 }},
		{"non-positive psi cap", func(th *Thresholds) { th.PSIMax = 0 }},
		{"non-positive turnover cap", func(th *Thresholds) { th.MaxTradesPerDay = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			th := DefaultThresholds()
			tc.mutate(&th)
			err := th.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "gate_config", cfgErr.Kind())
		})
	}
}

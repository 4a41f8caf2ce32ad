package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sigmoidPairs builds samples where the true win probability rises with
// the raw score but the raw score itself is systematically optimistic.
func sigmoidPairs(n int) []Pair {
	pairs := make([]Pair, n)
	for i := range pairs {
		p := 0.2 + 0.6*float64(i)/float64(n-1)
		// Deterministic outcomes: win whenever the running fraction is
		// below the true probability, which is p shrunk toward 0.5.
		truth := 0.5 + (p-0.5)*0.5
		outcome := 0.0
		if float64(i%10)/10 < truth {
			outcome = 1
		}
		pairs[i] = Pair{Prob: p, Outcome: outcome}
	}
	return pairs
}

func TestFitIsotonicMonotone(t *testing.T) {
	m, err := Fit(sigmoidPairs(200), Config{Method: Isotonic, MinPairs: 50})
	require.NoError(t, err)
	require.NotEmpty(t, m.Xs)
	assert.Equal(t, Isotonic, m.Method)

	for i := 1; i < len(m.Ys); i++ {
		assert.GreaterOrEqual(t, m.Ys[i], m.Ys[i-1], "block values must be non-decreasing")
	}
	prev := m.Predict(0)
	for p := 0.05; p <= 1.0; p += 0.05 {
		cur := m.Predict(p)
		assert.GreaterOrEqual(t, cur, prev, "predicted curve must be non-decreasing")
		prev = cur
	}
}

func TestFitPlattMonotone(t *testing.T) {
	m, err := Fit(sigmoidPairs(200), Config{Method: Platt, MinPairs: 50})
	require.NoError(t, err)
	assert.LessOrEqual(t, m.A, 0.0, "sigmoid slope coefficient is clamped non-positive")

	prev := m.Predict(0)
	for p := 0.05; p <= 1.0; p += 0.05 {
		cur := m.Predict(p)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestFitTooFewPairs(t *testing.T) {
	_, err := Fit(sigmoidPairs(20), Config{MinPairs: 50})
	var fitErr *FitError
	require.ErrorAs(t, err, &fitErr)
	assert.Equal(t, "calibration_fit", fitErr.Kind())
}

func TestFitSingleLabel(t *testing.T) {
	pairs := make([]Pair, 100)
	for i := range pairs {
		pairs[i] = Pair{Prob: float64(i) / 100, Outcome: 1}
	}
	_, err := Fit(pairs, Config{MinPairs: 50})
	var fitErr *FitError
	require.ErrorAs(t, err, &fitErr)
}

func TestPredictClamped(t *testing.T) {
	m := &Model{Method: Isotonic, Xs: []float64{0.2, 0.8}, Ys: []float64{0.1, 0.9}}
	assert.GreaterOrEqual(t, m.Predict(-5), 0.0)
	assert.LessOrEqual(t, m.Predict(5), 1.0)
	assert.InDelta(t, 0.5, m.Predict(0.5), 1e-9, "midpoint interpolates linearly")
}

func TestPredictAllPreservesOrder(t *testing.T) {
	m := &Model{Method: Isotonic, Xs: []float64{0, 1}, Ys: []float64{0, 1}}
	in := []float64{0.9, 0.1, 0.5}
	out := m.PredictAll(in)
	require.Len(t, out, 3)
	assert.InDelta(t, 0.9, out[0], 1e-9)
	assert.InDelta(t, 0.1, out[1], 1e-9)
	assert.InDelta(t, 0.5, out[2], 1e-9)
}

func TestStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := &Model{TrainedAt: now.Add(-8 * 24 * time.Hour)}
	assert.True(t, m.Stale(7*24*time.Hour, now))
	assert.False(t, m.Stale(9*24*time.Hour, now))
	assert.False(t, m.Stale(0, now), "zero max age disables staleness")
}

func TestFitQualityHoldout(t *testing.T) {
	m, err := Fit(sigmoidPairs(500), Config{Method: Isotonic, MinPairs: 50, HoldoutFrac: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 100, m.Quality.HoldoutSize)
	assert.Equal(t, 400, m.Samples)
	assert.False(t, m.TrainedAt.IsZero())
}

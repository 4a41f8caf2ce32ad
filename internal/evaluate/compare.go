package evaluate

import (
	"math"
	"math/rand"
	"sort"

	"recal/internal/record"
)

// Comparison is the statistical view of candidate vs baseline on the
// same held-out slice.
type Comparison struct {
	SharpeDiff     float64 `json:"sharpe_diff"`
	SharpeCILower  float64 `json:"sharpe_ci_lower"`
	SharpeCIUpper  float64 `json:"sharpe_ci_upper"`
	HitRateDiff    float64 `json:"hit_rate_diff"`
	HitRatePValue  float64 `json:"hit_rate_p_value"`
	BootstrapIters int     `json:"bootstrap_iters"`
}

// Compare bootstraps a confidence interval for the Sharpe difference
// (trades resampled with replacement, seeded so runs are reproducible)
// and runs a one-sided pooled two-proportion z-test on the hit-rate
// improvement.
func Compare(baseline, candidate []record.DecisionRecord, cfg Config) Comparison {
	cfg = cfg.withDefaults()
	baseRet := returnsOf(baseline)
	candRet := returnsOf(candidate)
	cmp := Comparison{BootstrapIters: cfg.BootstrapIterations}
	cmp.SharpeDiff = sharpeOf(candRet, cfg) - sharpeOf(baseRet, cfg)

	if len(baseRet) >= 2 && len(candRet) >= 2 {
		rng := rand.New(rand.NewSource(cfg.BootstrapSeed))
		diffs := make([]float64, cfg.BootstrapIterations)
		baseSample := make([]float64, len(baseRet))
		candSample := make([]float64, len(candRet))
		for i := 0; i < cfg.BootstrapIterations; i++ {
			resample(rng, baseRet, baseSample)
			resample(rng, candRet, candSample)
			diffs[i] = sharpeOf(candSample, cfg) - sharpeOf(baseSample, cfg)
		}
		sort.Float64s(diffs)
		cmp.SharpeCILower = percentile(diffs, 0.025)
		cmp.SharpeCIUpper = percentile(diffs, 0.975)
	}

	cmp.HitRateDiff, cmp.HitRatePValue = hitRateTest(baseline, candidate)
	return cmp
}

func returnsOf(records []record.DecisionRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.Filled() {
			out = append(out, tradeReturn(rec))
		}
	}
	return out
}

func sharpeOf(returns []float64, cfg Config) float64 {
	m := mean(returns)
	std := stddev(returns, m)
	if std == 0 {
		return 0
	}
	return m / std * cfg.AnnualizationFactor
}

func resample(rng *rand.Rand, src, dst []float64) {
	for i := range dst {
		dst[i] = src[rng.Intn(len(src))]
	}
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

// hitRateTest returns the hit-rate difference and the one-sided p-value
// that the candidate's hit rate is genuinely higher. A zero or negative
// difference yields p >= 0.5 by construction, so a no-op candidate can
// never clear a significance gate.
func hitRateTest(baseline, candidate []record.DecisionRecord) (diff, pValue float64) {
	n0, w0 := winCount(baseline)
	n1, w1 := winCount(candidate)
	if n0 == 0 || n1 == 0 {
		return 0, 1
	}
	p0 := float64(w0) / float64(n0)
	p1 := float64(w1) / float64(n1)
	diff = p1 - p0
	pooled := float64(w0+w1) / float64(n0+n1)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n0) + 1/float64(n1)))
	if se == 0 {
		if diff > 0 {
			return diff, 0
		}
		return diff, 1
	}
	z := diff / se
	return diff, 1 - normalCDF(z)
}

func winCount(records []record.DecisionRecord) (total, wins int) {
	for _, rec := range records {
		if !rec.Filled() {
			continue
		}
		total++
		if rec.Won() {
			wins++
		}
	}
	return total, wins
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

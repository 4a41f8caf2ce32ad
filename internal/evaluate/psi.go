package evaluate

import (
	"math"
	"sort"

	"recal/internal/record"
)

// StabilityReport is the feature-drift picture between two windows.
type StabilityReport struct {
	PerFeature map[string]float64 `json:"per_feature"`
	Drifted    []string           `json:"drifted,omitempty"`
	Aggregate  float64            `json:"aggregate"`
}

// PSI computes the Population Stability Index per shared feature
// between a baseline window and a candidate window, plus the aggregate
// mean. Bin edges are baseline quantiles; proportions are Laplace
// smoothed so empty bins never divide by zero. Features above
// driftThreshold are flagged.
func PSI(baseline, candidate []record.DecisionRecord, bins int, driftThreshold float64) StabilityReport {
	if bins <= 0 {
		bins = 10
	}
	if driftThreshold <= 0 {
		driftThreshold = 0.2
	}
	report := StabilityReport{PerFeature: make(map[string]float64)}
	baseVals := featureValues(baseline)
	candVals := featureValues(candidate)
	var names []string
	for name := range baseVals {
		if _, ok := candVals[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		base := baseVals[name]
		cand := candVals[name]
		if len(base) < bins || len(cand) == 0 {
			continue
		}
		v := psiValue(base, cand, bins)
		report.PerFeature[name] = v
		report.Aggregate += v
		if v > driftThreshold {
			report.Drifted = append(report.Drifted, name)
		}
	}
	if len(report.PerFeature) > 0 {
		report.Aggregate /= float64(len(report.PerFeature))
	}
	return report
}

func featureValues(records []record.DecisionRecord) map[string][]float64 {
	out := make(map[string][]float64)
	for _, rec := range records {
		for name, v := range rec.Features {
			out[name] = append(out[name], v)
		}
	}
	return out
}

func psiValue(base, cand []float64, bins int) float64 {
	edges := quantileEdges(base, bins)
	baseCounts := binCounts(base, edges)
	candCounts := binCounts(cand, edges)
	psi := 0.0
	for i := range baseCounts {
		pb := smoothed(baseCounts[i], len(base), bins)
		pc := smoothed(candCounts[i], len(cand), bins)
		psi += (pc - pb) * math.Log(pc/pb)
	}
	return psi
}

// quantileEdges returns bins-1 interior cut points from the sorted
// baseline distribution.
func quantileEdges(values []float64, bins int) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	edges := make([]float64, 0, bins-1)
	for i := 1; i < bins; i++ {
		idx := i * len(sorted) / bins
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		edges = append(edges, sorted[idx])
	}
	return edges
}

func binCounts(values []float64, edges []float64) []int {
	counts := make([]int, len(edges)+1)
	for _, v := range values {
		idx := sort.SearchFloat64s(edges, v)
		counts[idx]++
	}
	return counts
}

func smoothed(count, total, bins int) float64 {
	return (float64(count) + 0.5) / (float64(total) + 0.5*float64(bins))
}

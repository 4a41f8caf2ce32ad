package calibration

import (
	"sort"
)

// fitIsotonic runs pool-adjacent-violators over the pairs sorted by raw
// probability and returns block centers and block means. The result is
// non-decreasing by construction.
func fitIsotonic(pairs []Pair) (xs, ys []float64) {
	sorted := make([]Pair, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Prob < sorted[j].Prob })

	type block struct {
		xSum, ySum, weight float64
	}
	blocks := make([]block, 0, len(sorted))
	for _, p := range sorted {
		blocks = append(blocks, block{xSum: p.Prob, ySum: p.Outcome, weight: 1})
		// Merge backwards while the monotonicity constraint is violated.
		for len(blocks) >= 2 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.ySum/prev.weight <= last.ySum/last.weight {
				break
			}
			merged := block{
				xSum:   prev.xSum + last.xSum,
				ySum:   prev.ySum + last.ySum,
				weight: prev.weight + last.weight,
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, merged)
		}
	}
	xs = make([]float64, len(blocks))
	ys = make([]float64, len(blocks))
	for i, b := range blocks {
		xs[i] = b.xSum / b.weight
		ys[i] = b.ySum / b.weight
	}
	return xs, ys
}

// isotonicPredict linearly interpolates between block centers, holding
// the boundary values flat outside the fitted range. Non-decreasing
// because the block values are.
func isotonicPredict(xs, ys []float64, p float64) float64 {
	if len(xs) == 0 {
		return p
	}
	if p <= xs[0] {
		return ys[0]
	}
	if p >= xs[len(xs)-1] {
		return ys[len(ys)-1]
	}
	idx := sort.SearchFloat64s(xs, p)
	// xs[idx-1] < p <= xs[idx]
	x0, x1 := xs[idx-1], xs[idx]
	y0, y1 := ys[idx-1], ys[idx]
	if x1 == x0 {
		return y1
	}
	return y0 + (y1-y0)*(p-x0)/(x1-x0)
}

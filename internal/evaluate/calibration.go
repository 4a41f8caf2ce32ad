package evaluate

// Brier is the mean squared error between predicted probabilities and
// binary outcomes. Lower is better calibrated.
func Brier(probs, outcomes []float64) float64 {
	if len(probs) == 0 || len(probs) != len(outcomes) {
		return 0
	}
	sum := 0.0
	for i, p := range probs {
		d := p - outcomes[i]
		sum += d * d
	}
	return sum / float64(len(probs))
}

// Reliability bins predictions into equal-width probability bins and
// reports mean prediction vs observed frequency per bin.
func Reliability(probs, outcomes []float64, bins int) []ReliabilityBin {
	if bins <= 0 {
		bins = 10
	}
	width := 1.0 / float64(bins)
	sums := make([]float64, bins)
	hits := make([]float64, bins)
	counts := make([]int, bins)
	for i, p := range probs {
		idx := int(p / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		sums[idx] += p
		hits[idx] += outcomes[i]
		counts[idx]++
	}
	out := make([]ReliabilityBin, 0, bins)
	for i := 0; i < bins; i++ {
		bin := ReliabilityBin{
			Lower: float64(i) * width,
			Upper: float64(i+1) * width,
			Count: counts[i],
		}
		if counts[i] > 0 {
			bin.MeanPredicted = sums[i] / float64(counts[i])
			bin.ObservedRate = hits[i] / float64(counts[i])
		}
		out = append(out, bin)
	}
	return out
}

// CalibrationFit regresses observed frequency on mean predicted
// probability across non-empty bins, weighted by bin count. A
// well-calibrated model has slope 1 and intercept 0.
func CalibrationFit(bins []ReliabilityBin) (slope, intercept float64) {
	var n, sumX, sumY, sumXX, sumXY float64
	for _, b := range bins {
		if b.Count == 0 {
			continue
		}
		w := float64(b.Count)
		n += w
		sumX += w * b.MeanPredicted
		sumY += w * b.ObservedRate
		sumXX += w * b.MeanPredicted * b.MeanPredicted
		sumXY += w * b.MeanPredicted * b.ObservedRate
	}
	if n == 0 {
		return 0, 0
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		// All predictions in one spot: slope undefined, report neutral.
		return 1, sumY/n - sumX/n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

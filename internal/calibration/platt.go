package calibration

import (
	"math"
)

// fitPlatt fits the sigmoid P(win|p) = 1/(1+exp(A*p+B)) by Newton
// iterations on the regularized log-likelihood (Platt 1999, with the
// usual target smoothing). A is clamped non-positive afterwards so the
// mapping is always non-decreasing in p; anti-correlated input
// degrades to a constant rather than an inverted curve.
func fitPlatt(pairs []Pair) (a, b float64) {
	nPos, nNeg := 0, 0
	for _, p := range pairs {
		if p.Outcome > 0.5 {
			nPos++
		} else {
			nNeg++
		}
	}
	tPos := (float64(nPos) + 1) / (float64(nPos) + 2)
	tNeg := 1 / (float64(nNeg) + 2)

	a, b = 0, math.Log((float64(nNeg)+1)/(float64(nPos)+1))
	const iterations = 50
	const minStep = 1e-10
	for iter := 0; iter < iterations; iter++ {
		var g1, g2, h11, h12, h22 float64
		for _, pair := range pairs {
			t := tNeg
			if pair.Outcome > 0.5 {
				t = tPos
			}
			fApB := a*pair.Prob + b
			var p, q float64
			if fApB >= 0 {
				p = math.Exp(-fApB) / (1 + math.Exp(-fApB))
				q = 1 / (1 + math.Exp(-fApB))
			} else {
				p = 1 / (1 + math.Exp(fApB))
				q = math.Exp(fApB) / (1 + math.Exp(fApB))
			}
			d1 := t - p
			d2 := p * q
			g1 += pair.Prob * d1
			g2 += d1
			h11 += pair.Prob * pair.Prob * d2
			h12 += pair.Prob * d2
			h22 += d2
		}
		if math.Abs(g1) < 1e-5 && math.Abs(g2) < 1e-5 {
			break
		}
		// Levenberg-style damping keeps the Hessian invertible.
		h11 += 1e-12
		h22 += 1e-12
		det := h11*h22 - h12*h12
		if math.Abs(det) < minStep {
			break
		}
		dA := -(h22*g1 - h12*g2) / det
		dB := -(-h12*g1 + h11*g2) / det
		a += dA
		b += dB
		if math.Abs(dA) < minStep && math.Abs(dB) < minStep {
			break
		}
	}
	if a > 0 {
		a = 0
	}
	return a, b
}

func plattPredict(a, b, p float64) float64 {
	fApB := a*p + b
	if fApB >= 0 {
		return math.Exp(-fApB) / (1 + math.Exp(-fApB))
	}
	return 1 / (1 + math.Exp(fApB))
}

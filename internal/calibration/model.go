package calibration

import (
	"fmt"
	"time"

	"recal/internal/evaluate"
)

// Method selects the fitting strategy.
type Method string

const (
	Isotonic Method = "isotonic"
	Platt    Method = "platt"
)

// FitError marks degenerate training input (too few pairs, single
// label). Callers fall back to raw probabilities and flag low
// confidence; they never abort a run over it.
type FitError struct {
	Reason string
}

func (e *FitError) Error() string { return "calibration fit: " + e.Reason }

// Kind is the machine-readable error class recorded on learning runs.
func (e *FitError) Kind() string { return "calibration_fit" }

// Pair is one (raw predicted probability, binary outcome) sample.
type Pair struct {
	Prob    float64 `json:"prob"`
	Outcome float64 `json:"outcome"`
}

// Config tunes fitting. HoldoutFrac of the most recent pairs is kept
// out of the fit and used only for quality scoring.
type Config struct {
	Method      Method
	MinPairs    int
	HoldoutFrac float64
	MaxAge      time.Duration
}

// DefaultConfig fits isotonic with a 20% holdout and a 7-day rebuild
// horizon.
func DefaultConfig() Config {
	return Config{Method: Isotonic, MinPairs: 50, HoldoutFrac: 0.2, MaxAge: 7 * 24 * time.Hour}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Method == "" {
		c.Method = d.Method
	}
	if c.MinPairs <= 0 {
		c.MinPairs = d.MinPairs
	}
	if c.HoldoutFrac <= 0 || c.HoldoutFrac >= 1 {
		c.HoldoutFrac = d.HoldoutFrac
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	return c
}

// Quality reports how the fitted mapping performed on the holdout
// slice.
type Quality struct {
	BrierRaw        float64 `json:"brier_raw"`
	BrierCalibrated float64 `json:"brier_calibrated"`
	Improvement     float64 `json:"improvement"`
	Slope           float64 `json:"slope"`
	Intercept       float64 `json:"intercept"`
	HoldoutSize     int     `json:"holdout_size"`
}

// Model is a fitted monotone probability-correction mapping. The zero
// value is unusable; construct through Fit.
type Model struct {
	Method    Method    `json:"method"`
	Xs        []float64 `json:"xs,omitempty"` // isotonic block centers
	Ys        []float64 `json:"ys,omitempty"` // isotonic block values
	A         float64   `json:"a,omitempty"`  // platt coefficients
	B         float64   `json:"b,omitempty"`
	Samples   int       `json:"samples"`
	TrainedAt time.Time `json:"trained_at"`
	Quality   Quality   `json:"quality"`
}

// Fit trains a calibration model on ordered pairs, holding the most
// recent cfg.HoldoutFrac out for quality scoring. Degenerate input
// (fewer than cfg.MinPairs pairs, or a single outcome label) returns a
// *FitError.
func Fit(pairs []Pair, cfg Config) (*Model, error) {
	cfg = cfg.withDefaults()
	if len(pairs) < cfg.MinPairs {
		return nil, &FitError{Reason: fmt.Sprintf("need at least %d pairs, got %d", cfg.MinPairs, len(pairs))}
	}
	if singleLabel(pairs) {
		return nil, &FitError{Reason: "all outcomes share one label"}
	}
	cut := len(pairs) - int(float64(len(pairs))*cfg.HoldoutFrac)
	if cut <= 0 || cut >= len(pairs) {
		cut = len(pairs) - 1
	}
	train, holdout := pairs[:cut], pairs[cut:]
	if singleLabel(train) {
		return nil, &FitError{Reason: "training slice has one label after holdout"}
	}

	m := &Model{Method: cfg.Method, Samples: len(train), TrainedAt: time.Now()}
	switch cfg.Method {
	case Isotonic:
		m.Xs, m.Ys = fitIsotonic(train)
	case Platt:
		m.A, m.B = fitPlatt(train)
	default:
		return nil, &FitError{Reason: fmt.Sprintf("unknown method %q", cfg.Method)}
	}
	m.Quality = m.scoreHoldout(holdout)
	return m, nil
}

// Predict maps a raw probability to a calibrated one. The mapping is
// monotonically non-decreasing and clamped to [0,1].
func (m *Model) Predict(p float64) float64 {
	var out float64
	switch m.Method {
	case Platt:
		out = plattPredict(m.A, m.B, p)
	default:
		out = isotonicPredict(m.Xs, m.Ys, p)
	}
	if out < 0 {
		return 0
	}
	if out > 1 {
		return 1
	}
	return out
}

// PredictAll maps a batch, preserving order.
func (m *Model) PredictAll(probs []float64) []float64 {
	out := make([]float64, len(probs))
	for i, p := range probs {
		out[i] = m.Predict(p)
	}
	return out
}

// Stale reports whether the model should be refit.
func (m *Model) Stale(maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(m.TrainedAt) > maxAge
}

func (m *Model) scoreHoldout(holdout []Pair) Quality {
	raw := make([]float64, len(holdout))
	calibrated := make([]float64, len(holdout))
	outcomes := make([]float64, len(holdout))
	for i, pair := range holdout {
		raw[i] = pair.Prob
		calibrated[i] = m.Predict(pair.Prob)
		outcomes[i] = pair.Outcome
	}
	q := Quality{
		BrierRaw:        evaluate.Brier(raw, outcomes),
		BrierCalibrated: evaluate.Brier(calibrated, outcomes),
		HoldoutSize:     len(holdout),
	}
	q.Improvement = q.BrierRaw - q.BrierCalibrated
	bins := evaluate.Reliability(calibrated, outcomes, 10)
	q.Slope, q.Intercept = evaluate.CalibrationFit(bins)
	return q
}

func singleLabel(pairs []Pair) bool {
	if len(pairs) == 0 {
		return true
	}
	first := pairs[0].Outcome
	for _, p := range pairs[1:] {
		if p.Outcome != first {
			return false
		}
	}
	return true
}

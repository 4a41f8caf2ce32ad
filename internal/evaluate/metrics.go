package evaluate

import (
	"math"
	"time"

	"recal/internal/record"

	"github.com/shopspring/decimal"
)

// Config tunes the evaluation engine. AnnualizationFactor scales the
// per-trade Sharpe/Sortino to an annual figure; the default assumes
// roughly three trades a day (sqrt(1095)).
type Config struct {
	MinTrades           int
	AnnualizationFactor float64
	Bins                int
	BootstrapIterations int
	BootstrapSeed       int64
	DriftFlagThreshold  float64
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinTrades:           200,
		AnnualizationFactor: math.Sqrt(1095),
		Bins:                10,
		BootstrapIterations: 1000,
		BootstrapSeed:       1,
		DriftFlagThreshold:  0.2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinTrades <= 0 {
		c.MinTrades = d.MinTrades
	}
	if c.AnnualizationFactor <= 0 {
		c.AnnualizationFactor = d.AnnualizationFactor
	}
	if c.Bins <= 0 {
		c.Bins = d.Bins
	}
	if c.BootstrapIterations <= 0 {
		c.BootstrapIterations = d.BootstrapIterations
	}
	if c.DriftFlagThreshold <= 0 {
		c.DriftFlagThreshold = d.DriftFlagThreshold
	}
	return c
}

// ReliabilityBin is one row of the reliability diagram.
type ReliabilityBin struct {
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	MeanPredicted float64 `json:"mean_predicted"`
	ObservedRate  float64 `json:"observed_rate"`
	Count         int     `json:"count"`
}

// Bundle is the full metrics set for one record slice.
type Bundle struct {
	Trades     int  `json:"trades"`
	Sufficient bool `json:"sufficient"`

	HitRate    float64 `json:"hit_rate"`
	Expectancy float64 `json:"expectancy"`
	TotalPnL   float64 `json:"total_pnl"`
	Sharpe     float64 `json:"sharpe"`
	Sortino    float64 `json:"sortino"`
	Calmar     float64 `json:"calmar"`

	MaxDrawdown      float64       `json:"max_drawdown"`
	DrawdownTrades   int           `json:"drawdown_trades"`
	DrawdownDuration time.Duration `json:"drawdown_duration"`

	HasCalibration       bool             `json:"has_calibration"`
	Brier                float64          `json:"brier"`
	CalibrationSlope     float64          `json:"calibration_slope"`
	CalibrationIntercept float64          `json:"calibration_intercept"`
	ReliabilityBins      []ReliabilityBin `json:"reliability_bins,omitempty"`

	TradesPerDay float64   `json:"trades_per_day"`
	Start        time.Time `json:"start,omitempty"`
	End          time.Time `json:"end,omitempty"`
}

// Evaluate computes the metrics bundle over a chronologically ordered
// slice of filled records. calibratedProbs, when non-nil, must be
// positionally aligned with records and replaces the raw predicted
// probabilities for the calibration-quality metrics. Below
// cfg.MinTrades the bundle reports insufficient data and leaves the
// ratio metrics zeroed rather than produce unstable values.
func Evaluate(records []record.DecisionRecord, calibratedProbs []float64, cfg Config) Bundle {
	cfg = cfg.withDefaults()
	b := Bundle{Trades: len(records)}
	if len(records) == 0 {
		return b
	}
	b.Start = records[0].CreatedAt
	b.End = records[len(records)-1].CreatedAt
	b.TradesPerDay = tradesPerDay(len(records), b.Start, b.End)
	if len(records) < cfg.MinTrades {
		return b
	}
	b.Sufficient = true

	returns := make([]float64, len(records))
	wins := 0
	total := decimal.Zero
	for i, rec := range records {
		pnl := rec.Outcome.RealizedPnL
		total = total.Add(decimal.NewFromFloat(pnl))
		returns[i] = tradeReturn(rec)
		if pnl > 0 {
			wins++
		}
	}
	b.TotalPnL, _ = total.Float64()
	b.HitRate = float64(wins) / float64(len(records))
	b.Expectancy = b.TotalPnL / float64(len(records))

	meanRet := mean(returns)
	std := stddev(returns, meanRet)
	if std > 0 {
		b.Sharpe = meanRet / std * cfg.AnnualizationFactor
	}
	if down := downsideDev(returns); down > 0 {
		b.Sortino = meanRet / down * cfg.AnnualizationFactor
	}

	b.MaxDrawdown, b.DrawdownTrades, b.DrawdownDuration = maxDrawdown(records)
	if b.MaxDrawdown > 0 {
		// Annualized P&L over drawdown, both in currency units, so the
		// ratio is independent of position sizing.
		annualized := b.Expectancy * cfg.AnnualizationFactor * cfg.AnnualizationFactor
		b.Calmar = annualized / b.MaxDrawdown
	}

	probs, outcomes := probPairs(records, calibratedProbs)
	if len(probs) > 0 {
		b.HasCalibration = true
		b.Brier = Brier(probs, outcomes)
		b.ReliabilityBins = Reliability(probs, outcomes, cfg.Bins)
		b.CalibrationSlope, b.CalibrationIntercept = CalibrationFit(b.ReliabilityBins)
	}
	return b
}

// tradeReturn normalizes realized P&L by the entry notional so trades
// of different sizes are comparable. Falls back to raw P&L when the
// notional is degenerate.
func tradeReturn(rec record.DecisionRecord) float64 {
	notional := math.Abs(rec.Quantity) * rec.EntryPrice
	if notional <= 0 {
		return rec.Outcome.RealizedPnL
	}
	return rec.Outcome.RealizedPnL / notional
}

// maxDrawdown walks the cumulative P&L equity curve. A curve that never
// dips below its running peak reports zero drawdown. Duration is the
// longest peak-to-recovery stretch, in trades and wall-clock time.
func maxDrawdown(records []record.DecisionRecord) (float64, int, time.Duration) {
	equity := 0.0
	peak := 0.0
	peakIdx := 0
	maxDD := 0.0
	worstTrades := 0
	var worstSpan time.Duration
	for i, rec := range records {
		equity += rec.Outcome.RealizedPnL
		if equity >= peak {
			peak = equity
			peakIdx = i
			continue
		}
		dd := peak - equity
		if dd > maxDD {
			maxDD = dd
		}
		span := rec.CreatedAt.Sub(records[peakIdx].CreatedAt)
		if trades := i - peakIdx; trades > worstTrades {
			worstTrades = trades
			worstSpan = span
		}
	}
	return maxDD, worstTrades, worstSpan
}

func probPairs(records []record.DecisionRecord, calibrated []float64) ([]float64, []float64) {
	var probs, outcomes []float64
	for i, rec := range records {
		var p float64
		switch {
		case calibrated != nil && i < len(calibrated):
			p = calibrated[i]
		case rec.PredictedProb != nil:
			p = *rec.PredictedProb
		default:
			continue
		}
		// Probabilities live in [0,1]; anything outside marks a
		// record with no usable prediction.
		if p < 0 || p > 1 {
			continue
		}
		probs = append(probs, p)
		if rec.Won() {
			outcomes = append(outcomes, 1)
		} else {
			outcomes = append(outcomes, 0)
		}
	}
	return probs, outcomes
}

func tradesPerDay(n int, start, end time.Time) float64 {
	days := end.Sub(start).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(n) / days
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func downsideDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		if x < 0 {
			sum += x * x
		}
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

package record

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ExitReason describes how a position was closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTime       ExitReason = "time_exit"
	ExitManual     ExitReason = "manual"
)

// ParseExitReason validates a stored exit reason string.
func ParseExitReason(s string) (ExitReason, error) {
	switch ExitReason(strings.ToLower(strings.TrimSpace(s))) {
	case ExitTakeProfit:
		return ExitTakeProfit, nil
	case ExitStopLoss:
		return ExitStopLoss, nil
	case ExitTime:
		return ExitTime, nil
	case ExitManual:
		return ExitManual, nil
	default:
		return "", fmt.Errorf("unknown exit reason: %q", s)
	}
}

// Outcome holds the asynchronously-filled result of a decision. Outcome
// fields are write-once: once Filled is set the record may only change
// through the correction path, which preserves the original in an audit
// row.
type Outcome struct {
	Return1h    float64    `json:"return_1h"`
	Return4h    float64    `json:"return_4h"`
	Return24h   float64    `json:"return_24h"`
	ExitPrice   float64    `json:"exit_price"`
	Fees        float64    `json:"fees"`
	Slippage    float64    `json:"slippage"`
	ExitReason  ExitReason `json:"exit_reason"`
	RealizedPnL float64    `json:"realized_pnl"`
	ClosedAt    time.Time  `json:"closed_at"`
}

// DecisionRecord is one trading decision and its eventual outcome.
// Records are ordered by CreatedAt (ties broken by ID); that order is
// the only valid ordering for time-series splits.
type DecisionRecord struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Ticker    string    `json:"ticker"`
	Regime    string    `json:"regime"`

	Features      map[string]float64 `json:"features"`
	Signal        string             `json:"signal"`
	Params        map[string]float64 `json:"params"`
	PredictedProb *float64           `json:"predicted_prob,omitempty"`

	Quantity   float64  `json:"quantity"`
	EntryPrice float64  `json:"entry_price"`
	StopPrice  *float64 `json:"stop_price,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`

	Outcome *Outcome `json:"outcome,omitempty"`

	RuleVersion   string `json:"rule_version"`
	SignalVersion string `json:"signal_version"`
}

// Filled reports whether the outcome has been written.
func (r DecisionRecord) Filled() bool {
	return r.Outcome != nil
}

// Won reports whether the realized P&L was positive. Only meaningful on
// filled records.
func (r DecisionRecord) Won() bool {
	return r.Outcome != nil && r.Outcome.RealizedPnL > 0
}

// SortChronological orders records by creation time, id as tiebreak.
// Callers must never shuffle records before splitting.
func SortChronological(records []DecisionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

package learner

import (
	"time"

	"recal/internal/evaluate"
	"recal/internal/gates"
)

// Recommendation is the final verdict of one learner invocation.
type Recommendation string

const (
	RecommendPromote          Recommendation = "promote"
	RecommendReject           Recommendation = "reject"
	RecommendNoImprovement    Recommendation = "no-improvement"
	RecommendInsufficientData Recommendation = "insufficient-data"
	RecommendError            Recommendation = "error"
)

// TestMetrics bundles everything the Gate Checker saw for the selected
// candidate on the held-out test slice.
type TestMetrics struct {
	Baseline   evaluate.Bundle          `json:"baseline"`
	Candidate  evaluate.Bundle          `json:"candidate"`
	Comparison evaluate.Comparison      `json:"comparison"`
	Stability  evaluate.StabilityReport `json:"stability"`
}

// RunRecord is the immutable audit record of one learner invocation.
// Exactly one is written per invocation, whatever the outcome.
type RunRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	RecordCount    int       `json:"record_count"`
	TrainSize      int       `json:"train_size"`
	ValidationSize int       `json:"validation_size"`
	TestSize       int       `json:"test_size"`

	BaselineVersion string             `json:"baseline_version"`
	CandidateID     string             `json:"candidate_id,omitempty"`
	CandidateParams map[string]float64 `json:"candidate_params,omitempty"`
	Candidates      int                `json:"candidates"`

	BestValidationSharpe     float64 `json:"best_validation_sharpe"`
	BaselineValidationSharpe float64 `json:"baseline_validation_sharpe"`

	Test        *TestMetrics   `json:"test,omitempty"`
	GateResults []gates.Result `json:"gate_results,omitempty"`
	GatesPassed bool           `json:"gates_passed"`

	Recommendation  Recommendation `json:"recommendation"`
	PromotedVersion string         `json:"promoted_version,omitempty"`
	LowConfidence   bool           `json:"low_confidence"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

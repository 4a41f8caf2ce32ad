package model

import (
	"gorm.io/datatypes"
)

// DecisionRecordModel persists one trading decision. Outcome columns
// stay NULL-ish behind the Filled flag until the outcome arrives; after
// that they are write-once.
type DecisionRecordModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
	Ticker        string         `gorm:"column:ticker;index"`
	Regime        string         `gorm:"column:regime"`
	Features      datatypes.JSON `gorm:"column:features_json"`
	Signal        string         `gorm:"column:signal"`
	Params        datatypes.JSON `gorm:"column:params_json"`
	PredictedProb *float64       `gorm:"column:predicted_prob"`
	Quantity      float64        `gorm:"column:quantity"`
	EntryPrice    float64        `gorm:"column:entry_price"`
	StopPrice     *float64       `gorm:"column:stop_price"`
	TakeProfit    *float64       `gorm:"column:take_profit"`
	RuleVersion   string         `gorm:"column:rule_version;index"`
	SignalVersion string         `gorm:"column:signal_version"`

	Filled       int     `gorm:"column:filled;index"`
	Return1h     float64 `gorm:"column:return_1h"`
	Return4h     float64 `gorm:"column:return_4h"`
	Return24h    float64 `gorm:"column:return_24h"`
	ExitPrice    float64 `gorm:"column:exit_price"`
	Fees         float64 `gorm:"column:fees"`
	Slippage     float64 `gorm:"column:slippage"`
	ExitReason   string  `gorm:"column:exit_reason"`
	RealizedPnL  float64 `gorm:"column:realized_pnl"`
	ClosedAtUnix int64   `gorm:"column:closed_at"`
}

func (DecisionRecordModel) TableName() string { return "decision_records" }

// OutcomeCorrectionModel preserves the original outcome whenever the
// explicit correction path overwrites a filled record.
type OutcomeCorrectionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	RecordID      int64          `gorm:"column:record_id;index"`
	Original      datatypes.JSON `gorm:"column:original_json"`
	Corrected     datatypes.JSON `gorm:"column:corrected_json"`
	Reason        string         `gorm:"column:reason"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (OutcomeCorrectionModel) TableName() string { return "outcome_corrections" }

// RuleVersionModel is one immutable parent-linked version of the
// active parameter set.
type RuleVersionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	VersionID     string         `gorm:"column:version_id;uniqueIndex"`
	ParentID      string         `gorm:"column:parent_id;index"`
	Name          string         `gorm:"column:name"`
	Params        datatypes.JSON `gorm:"column:params_json"`
	Description   string         `gorm:"column:description"`
	LearningRunID string         `gorm:"column:learning_run_id"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (RuleVersionModel) TableName() string { return "rule_versions" }

// ActivePointerModel is the single-row active-version pointer. The
// version_id column doubles as the compare-and-swap guard for
// promotion.
type ActivePointerModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	VersionID     string `gorm:"column:version_id"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (ActivePointerModel) TableName() string { return "active_rule_version" }

// LearningRunModel is the append-only log of learner invocations.
type LearningRunModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	RunID           string         `gorm:"column:run_id;uniqueIndex"`
	StartedAtUnix   int64          `gorm:"column:started_at;index"`
	FinishedAtUnix  int64          `gorm:"column:finished_at"`
	BaselineVersion string         `gorm:"column:baseline_version"`
	CandidateID     string         `gorm:"column:candidate_id"`
	Recommendation  string         `gorm:"column:recommendation;index"`
	GatesPassed     int            `gorm:"column:gates_passed"`
	PromotedVersion string         `gorm:"column:promoted_version"`
	LowConfidence   int            `gorm:"column:low_confidence"`
	ErrorKind       string         `gorm:"column:error_kind"`
	ErrorMessage    string         `gorm:"column:error_message"`
	Payload         datatypes.JSON `gorm:"column:payload_json"`
}

func (LearningRunModel) TableName() string { return "learning_runs" }

// CalibrationArtifactModel versions fitted calibration models
// independently of rule versions.
type CalibrationArtifactModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Method        string         `gorm:"column:method"`
	Samples       int            `gorm:"column:samples"`
	TrainedAtUnix int64          `gorm:"column:trained_at;index"`
	Model         datatypes.JSON `gorm:"column:model_json"`
	Quality       datatypes.JSON `gorm:"column:quality_json"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (CalibrationArtifactModel) TableName() string { return "calibration_artifacts" }

// GateThresholdModel is an append-only audit chain; the newest row is
// the current threshold set.
type GateThresholdModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Payload       datatypes.JSON `gorm:"column:payload_json"`
	UpdatedBy     string         `gorm:"column:updated_by"`
	Reason        string         `gorm:"column:reason"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (GateThresholdModel) TableName() string { return "gate_thresholds" }

package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"recal/internal/learner"
	"recal/internal/store"
	"recal/internal/store/model"

	"gorm.io/gorm"
)

// AppendRun persists one learner invocation. The full record goes into
// the payload column; the summary columns exist for listing and
// filtering without decoding payloads.
func (s *Store) AppendRun(ctx context.Context, rec learner.RunRecord) error {
	if err := s.ready(); err != nil {
		return err
	}
	if rec.ID == "" {
		return fmt.Errorf("learning run id cannot be empty")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	gatesPassed := 0
	for _, g := range rec.GateResults {
		if g.Passed {
			gatesPassed++
		}
	}
	lowConfidence := 0
	if rec.LowConfidence {
		lowConfidence = 1
	}
	row := model.LearningRunModel{
		RunID:           rec.ID,
		StartedAtUnix:   rec.StartedAt.Unix(),
		FinishedAtUnix:  rec.FinishedAt.Unix(),
		BaselineVersion: rec.BaselineVersion,
		CandidateID:     rec.CandidateID,
		Recommendation:  string(rec.Recommendation),
		GatesPassed:     gatesPassed,
		PromotedVersion: rec.PromotedVersion,
		LowConfidence:   lowConfidence,
		ErrorKind:       rec.ErrorKind,
		ErrorMessage:    rec.ErrorMessage,
		Payload:         payload,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Run loads one full run record by its id.
func (s *Store) Run(ctx context.Context, runID string) (learner.RunRecord, error) {
	if err := s.ready(); err != nil {
		return learner.RunRecord{}, err
	}
	var row model.LearningRunModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return learner.RunRecord{}, store.ErrRunNotFound
	}
	if err != nil {
		return learner.RunRecord{}, err
	}
	return decodeRun(row)
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (learner.RunRecord, error) {
	if err := s.ready(); err != nil {
		return learner.RunRecord{}, err
	}
	var row model.LearningRunModel
	err := s.db.WithContext(ctx).Order("started_at DESC, id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return learner.RunRecord{}, store.ErrRunNotFound
	}
	if err != nil {
		return learner.RunRecord{}, err
	}
	return decodeRun(row)
}

// RunSummary is the listing view of a run, cheap to scan because it
// never touches the payload column.
type RunSummary struct {
	RunID           string `json:"run_id"`
	StartedAt       int64  `json:"started_at"`
	FinishedAt      int64  `json:"finished_at"`
	BaselineVersion string `json:"baseline_version"`
	CandidateID     string `json:"candidate_id,omitempty"`
	Recommendation  string `json:"recommendation"`
	GatesPassed     int    `json:"gates_passed"`
	PromotedVersion string `json:"promoted_version,omitempty"`
	LowConfidence   bool   `json:"low_confidence"`
	ErrorKind       string `json:"error_kind,omitempty"`
}

// ListRuns returns run summaries newest first, capped at limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []model.LearningRunModel
	err := s.db.WithContext(ctx).
		Select("run_id", "started_at", "finished_at", "baseline_version", "candidate_id",
			"recommendation", "gates_passed", "promoted_version", "low_confidence", "error_kind").
		Order("started_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	summaries := make([]RunSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, RunSummary{
			RunID:           row.RunID,
			StartedAt:       row.StartedAtUnix,
			FinishedAt:      row.FinishedAtUnix,
			BaselineVersion: row.BaselineVersion,
			CandidateID:     row.CandidateID,
			Recommendation:  row.Recommendation,
			GatesPassed:     row.GatesPassed,
			PromotedVersion: row.PromotedVersion,
			LowConfidence:   row.LowConfidence != 0,
			ErrorKind:       row.ErrorKind,
		})
	}
	return summaries, nil
}

func decodeRun(row model.LearningRunModel) (learner.RunRecord, error) {
	var rec learner.RunRecord
	if err := json.Unmarshal(row.Payload, &rec); err != nil {
		return learner.RunRecord{}, fmt.Errorf("decode run %s: %w", row.RunID, err)
	}
	return rec, nil
}

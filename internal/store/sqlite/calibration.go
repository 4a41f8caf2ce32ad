package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recal/internal/calibration"
	"recal/internal/store"
	"recal/internal/store/model"

	"gorm.io/gorm"
)

// SaveCalibration appends a fitted calibration model. Artifacts are
// never overwritten; the newest row is the current one.
func (s *Store) SaveCalibration(ctx context.Context, m calibration.Model) error {
	if err := s.ready(); err != nil {
		return err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal calibration model: %w", err)
	}
	quality, err := json.Marshal(m.Quality)
	if err != nil {
		return fmt.Errorf("marshal calibration quality: %w", err)
	}
	row := model.CalibrationArtifactModel{
		Method:        string(m.Method),
		Samples:       m.Samples,
		TrainedAtUnix: m.TrainedAt.Unix(),
		Model:         body,
		Quality:       quality,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// CurrentCalibration loads the most recently trained artifact.
func (s *Store) CurrentCalibration(ctx context.Context) (calibration.Model, error) {
	if err := s.ready(); err != nil {
		return calibration.Model{}, err
	}
	var row model.CalibrationArtifactModel
	err := s.db.WithContext(ctx).Order("trained_at DESC, id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return calibration.Model{}, store.ErrNoCalibration
	}
	if err != nil {
		return calibration.Model{}, err
	}
	var m calibration.Model
	if err := json.Unmarshal(row.Model, &m); err != nil {
		return calibration.Model{}, fmt.Errorf("decode calibration artifact %d: %w", row.ID, err)
	}
	return m, nil
}

// CalibrationSummary is the listing view over stored artifacts.
type CalibrationSummary struct {
	ID        int64               `json:"id"`
	Method    string              `json:"method"`
	Samples   int                 `json:"samples"`
	TrainedAt int64               `json:"trained_at"`
	Quality   calibration.Quality `json:"quality"`
}

// ListCalibrations returns artifact summaries newest first.
func (s *Store) ListCalibrations(ctx context.Context, limit int) ([]CalibrationSummary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	var rows []model.CalibrationArtifactModel
	err := s.db.WithContext(ctx).
		Order("trained_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]CalibrationSummary, 0, len(rows))
	for _, row := range rows {
		var q calibration.Quality
		if len(row.Quality) > 0 {
			if err := json.Unmarshal(row.Quality, &q); err != nil {
				return nil, fmt.Errorf("decode calibration quality %d: %w", row.ID, err)
			}
		}
		out = append(out, CalibrationSummary{
			ID:        row.ID,
			Method:    row.Method,
			Samples:   row.Samples,
			TrainedAt: row.TrainedAtUnix,
			Quality:   q,
		})
	}
	return out, nil
}

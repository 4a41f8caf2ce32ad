package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recal/internal/gates"
	"recal/internal/store/model"

	"gorm.io/gorm"
)

// CurrentThresholds returns the newest audited threshold set, falling
// back to the documented defaults when none was ever written.
func (s *Store) CurrentThresholds(ctx context.Context) (gates.Thresholds, error) {
	if err := s.ready(); err != nil {
		return gates.Thresholds{}, err
	}
	var row model.GateThresholdModel
	err := s.db.WithContext(ctx).Order("id DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gates.DefaultThresholds(), nil
	}
	if err != nil {
		return gates.Thresholds{}, err
	}
	var t gates.Thresholds
	if err := json.Unmarshal(row.Payload, &t); err != nil {
		return gates.Thresholds{}, fmt.Errorf("decode thresholds %d: %w", row.ID, err)
	}
	return t, nil
}

// UpdateThresholds validates and appends a new threshold set. The old
// rows stay behind as the audit chain.
func (s *Store) UpdateThresholds(ctx context.Context, t gates.Thresholds, updatedBy, reason string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal thresholds: %w", err)
	}
	row := model.GateThresholdModel{
		Payload:       payload,
		UpdatedBy:     updatedBy,
		Reason:        reason,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ThresholdRevision is one entry of the threshold audit chain.
type ThresholdRevision struct {
	ID         int64            `json:"id"`
	Thresholds gates.Thresholds `json:"thresholds"`
	UpdatedBy  string           `json:"updated_by"`
	Reason     string           `json:"reason"`
	CreatedAt  int64            `json:"created_at"`
}

// ThresholdAudit returns the revision chain newest first.
func (s *Store) ThresholdAudit(ctx context.Context, limit int) ([]ThresholdRevision, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	var rows []model.GateThresholdModel
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ThresholdRevision, 0, len(rows))
	for _, row := range rows {
		var t gates.Thresholds
		if err := json.Unmarshal(row.Payload, &t); err != nil {
			return nil, fmt.Errorf("decode thresholds %d: %w", row.ID, err)
		}
		out = append(out, ThresholdRevision{
			ID:         row.ID,
			Thresholds: t,
			UpdatedBy:  row.UpdatedBy,
			Reason:     row.Reason,
			CreatedAt:  row.CreatedAtUnix,
		})
	}
	return out, nil
}

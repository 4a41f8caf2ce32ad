package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recal/internal/ruleset"
	"recal/internal/store"
	"recal/internal/store/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnsureInitial seeds the version chain when the store is empty. It is
// a no-op when an active version already exists.
func (s *Store) EnsureInitial(ctx context.Context, rs ruleset.RuleSet, description string) (ruleset.Version, error) {
	if err := s.ready(); err != nil {
		return ruleset.Version{}, err
	}
	active, err := s.Active(ctx)
	if err == nil {
		return active, nil
	}
	if !errors.Is(err, store.ErrNoActiveVersion) {
		return ruleset.Version{}, err
	}
	version := newVersion(rs, "", description)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(versionToModelPtr(version, "")).Error; err != nil {
			return err
		}
		pointer := model.ActivePointerModel{ID: 1, VersionID: version.ID, UpdatedAtUnix: time.Now().UnixMilli()}
		return tx.Create(&pointer).Error
	})
	if err != nil {
		return ruleset.Version{}, err
	}
	return version, nil
}

// Active resolves the current active version.
func (s *Store) Active(ctx context.Context) (ruleset.Version, error) {
	if err := s.ready(); err != nil {
		return ruleset.Version{}, err
	}
	var pointer model.ActivePointerModel
	if err := s.db.WithContext(ctx).First(&pointer, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ruleset.Version{}, store.ErrNoActiveVersion
		}
		return ruleset.Version{}, err
	}
	return s.Version(ctx, pointer.VersionID)
}

// Version looks up one immutable version by id.
func (s *Store) Version(ctx context.Context, versionID string) (ruleset.Version, error) {
	if err := s.ready(); err != nil {
		return ruleset.Version{}, err
	}
	var m model.RuleVersionModel
	if err := s.db.WithContext(ctx).Where("version_id = ?", versionID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ruleset.Version{}, store.ErrVersionNotFound
		}
		return ruleset.Version{}, err
	}
	return modelToVersion(m), nil
}

// Promote writes a new immutable version and atomically swings the
// active pointer from expectedParent to it. The pointer update is a
// compare-and-swap: when another run already moved the pointer the
// whole transaction rolls back with ErrPromotionConflict and no
// version row survives. Promotion is all-or-nothing.
func (s *Store) Promote(ctx context.Context, rs ruleset.RuleSet, expectedParent, learningRunID, description string) (ruleset.Version, error) {
	if err := s.ready(); err != nil {
		return ruleset.Version{}, err
	}
	version := newVersion(rs, expectedParent, description)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(versionToModelPtr(version, learningRunID)).Error; err != nil {
			return err
		}
		res := tx.Model(&model.ActivePointerModel{}).
			Where("id = 1 AND version_id = ?", expectedParent).
			Updates(map[string]interface{}{
				"version_id": version.ID,
				"updated_at": time.Now().UnixMilli(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrPromotionConflict
		}
		return nil
	})
	if err != nil {
		return ruleset.Version{}, err
	}
	return version, nil
}

// Rollback re-activates a prior version without deleting history. The
// target must exist; the pointer move is unconditional because rollback
// is an operator action, not a race participant.
func (s *Store) Rollback(ctx context.Context, toVersionID string) (ruleset.Version, error) {
	if err := s.ready(); err != nil {
		return ruleset.Version{}, err
	}
	target, err := s.Version(ctx, toVersionID)
	if err != nil {
		return ruleset.Version{}, err
	}
	res := s.db.WithContext(ctx).Model(&model.ActivePointerModel{}).
		Where("id = 1").
		Updates(map[string]interface{}{
			"version_id": target.ID,
			"updated_at": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return ruleset.Version{}, res.Error
	}
	if res.RowsAffected == 0 {
		return ruleset.Version{}, store.ErrNoActiveVersion
	}
	return target, nil
}

// History walks the parent chain from the active version back to the
// root, newest first.
func (s *Store) History(ctx context.Context) ([]ruleset.Version, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	var chain []ruleset.Version
	current := active
	for {
		chain = append(chain, current)
		if current.ParentID == "" {
			return chain, nil
		}
		parent, err := s.Version(ctx, current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("broken parent chain at %s: %w", current.ParentID, err)
		}
		current = parent
	}
}

func newVersion(rs ruleset.RuleSet, parentID, description string) ruleset.Version {
	return ruleset.Version{
		ID:          uuid.NewString(),
		ParentID:    parentID,
		RuleSet:     rs.Clone(),
		Description: description,
		CreatedAt:   time.Now(),
	}
}

func versionToModelPtr(v ruleset.Version, learningRunID string) *model.RuleVersionModel {
	paramsJSON, _ := json.Marshal(v.RuleSet.Params)
	return &model.RuleVersionModel{
		VersionID:     v.ID,
		ParentID:      v.ParentID,
		Name:          v.RuleSet.Name,
		Params:        datatypes.JSON(paramsJSON),
		Description:   v.Description,
		LearningRunID: learningRunID,
		CreatedAtUnix: v.CreatedAt.UnixMilli(),
	}
}

func modelToVersion(m model.RuleVersionModel) ruleset.Version {
	v := ruleset.Version{
		ID:          m.VersionID,
		ParentID:    m.ParentID,
		Description: m.Description,
		CreatedAt:   time.UnixMilli(m.CreatedAtUnix),
		RuleSet:     ruleset.RuleSet{Name: m.Name, Params: map[string]float64{}},
	}
	if len(m.Params) > 0 {
		_ = json.Unmarshal(m.Params, &v.RuleSet.Params)
	}
	return v
}

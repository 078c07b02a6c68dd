package repository

import (
	"context"
	"errors"

	"clubpoints/internal/apperr"
	"clubpoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPolicyNotFound = apperr.New(apperr.ErrNotFound, "倍率策略不存在")
	ErrPolicyExists   = apperr.New(apperr.ErrConflict, "同一目标与指标下已存在该等级的策略")
)

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func (r *PolicyRepository) Create(ctx context.Context, p *model.MultiplierPolicy) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrPolicyExists
	}
	return err
}

func (r *PolicyRepository) GetByID(ctx context.Context, id int64) (*model.MultiplierPolicy, error) {
	var p model.MultiplierPolicy
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Update 按 id 覆盖可编辑字段
func (r *PolicyRepository) Update(ctx context.Context, p *model.MultiplierPolicy) error {
	result := r.db.WithContext(ctx).
		Model(&model.MultiplierPolicy{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"level_or_status":      p.LevelOrStatus,
			"min_events_threshold": p.MinEventsThreshold,
			"multiplier":           p.Multiplier,
			"active":               p.Active,
			"effective_from":       p.EffectiveFrom,
			"updated_by":           p.UpdatedBy,
		})
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return ErrPolicyExists
	}
	return result.Error
}

// List 按目标类型和指标过滤，空字符串表示不过滤
func (r *PolicyRepository) List(ctx context.Context, target model.TargetType, activity string, activeOnly bool) ([]model.MultiplierPolicy, error) {
	query := r.db.WithContext(ctx).Model(&model.MultiplierPolicy{})
	if target != "" {
		query = query.Where("target_type = ?", target)
	}
	if activity != "" {
		query = query.Where("activity_type = ?", activity)
	}
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var list []model.MultiplierPolicy
	err := query.Order("target_type ASC, activity_type ASC, min_events_threshold DESC").Find(&list).Error
	return list, err
}

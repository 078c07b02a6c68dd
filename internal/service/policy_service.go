package service

import (
	"context"
	"sync"
	"time"

	"clubpoints/internal/apperr"
	"clubpoints/internal/config"
	"clubpoints/internal/model"
	"clubpoints/internal/policy"
	"clubpoints/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PolicyService 倍率策略的维护与解析
// 解析读取带 TTL 的进程内快照，任何写操作都会让快照失效
type PolicyService struct {
	repo *repository.PolicyRepository
	log  *logrus.Logger
	ttl  time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	snapshot *policy.Set
}

func NewPolicyService(db *gorm.DB, log *logrus.Logger, cfg config.PolicyConfig) *PolicyService {
	return &PolicyService{
		repo: repository.NewPolicyRepository(db),
		log:  log,
		ttl:  cfg.CacheTTL,
		now:  time.Now,
	}
}

type CreatePolicyRequest struct {
	TargetType         model.TargetType `json:"target_type" binding:"required"`
	ActivityType       string           `json:"activity_type" binding:"required"`
	LevelOrStatus      string           `json:"level_or_status" binding:"required"`
	MinEventsThreshold float64          `json:"min_events_threshold"`
	Multiplier         float64          `json:"multiplier"`
	EffectiveFrom      *time.Time       `json:"effective_from"`
	OperatorID         int64            `json:"operator_id"`
}

type UpdatePolicyRequest struct {
	LevelOrStatus      *string    `json:"level_or_status"`
	MinEventsThreshold *float64   `json:"min_events_threshold"`
	Multiplier         *float64   `json:"multiplier"`
	Active             *bool      `json:"active"`
	EffectiveFrom      *time.Time `json:"effective_from"`
	OperatorID         int64      `json:"operator_id"`
}

func validatePolicy(p *model.MultiplierPolicy) error {
	if !p.TargetType.Valid() {
		return apperr.Newf(apperr.ErrInvalidArgument, "未知的目标类型: %s", p.TargetType)
	}
	if !policy.ValidActivity(p.TargetType, p.ActivityType) {
		return apperr.Newf(apperr.ErrInvalidArgument, "指标 %s 不适用于 %s", p.ActivityType, p.TargetType)
	}
	if p.LevelOrStatus == "" {
		return apperr.New(apperr.ErrInvalidArgument, "等级不能为空")
	}
	if p.MinEventsThreshold < 0 {
		return apperr.New(apperr.ErrInvalidArgument, "阈值不能为负数")
	}
	if p.Multiplier < 0 {
		return apperr.New(apperr.ErrInvalidArgument, "倍率不能为负数")
	}
	return nil
}

func (s *PolicyService) Create(ctx context.Context, req *CreatePolicyRequest) (*model.MultiplierPolicy, error) {
	p := &model.MultiplierPolicy{
		TargetType:         req.TargetType,
		ActivityType:       req.ActivityType,
		LevelOrStatus:      req.LevelOrStatus,
		MinEventsThreshold: req.MinEventsThreshold,
		Multiplier:         req.Multiplier,
		Active:             true,
		EffectiveFrom:      s.now().UTC(),
		UpdatedBy:          req.OperatorID,
	}
	if req.EffectiveFrom != nil {
		p.EffectiveFrom = req.EffectiveFrom.UTC()
	}
	if err := validatePolicy(p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "创建倍率策略失败")
	}
	s.Invalidate()
	s.log.WithFields(logrus.Fields{
		"policy_id": p.ID,
		"target":    p.TargetType,
		"activity":  p.ActivityType,
		"level":     p.LevelOrStatus,
	}).Info("倍率策略已创建")
	return p, nil
}

func (s *PolicyService) Update(ctx context.Context, id int64, req *UpdatePolicyRequest) (*model.MultiplierPolicy, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.LevelOrStatus != nil {
		p.LevelOrStatus = *req.LevelOrStatus
	}
	if req.MinEventsThreshold != nil {
		p.MinEventsThreshold = *req.MinEventsThreshold
	}
	if req.Multiplier != nil {
		p.Multiplier = *req.Multiplier
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if req.EffectiveFrom != nil {
		p.EffectiveFrom = req.EffectiveFrom.UTC()
	}
	p.UpdatedBy = req.OperatorID
	if err := validatePolicy(p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "更新倍率策略 %d 失败", id)
	}
	s.Invalidate()
	return p, nil
}

func (s *PolicyService) Deactivate(ctx context.Context, id, operatorID int64) (*model.MultiplierPolicy, error) {
	inactive := false
	return s.Update(ctx, id, &UpdatePolicyRequest{Active: &inactive, OperatorID: operatorID})
}

func (s *PolicyService) List(ctx context.Context, target model.TargetType, activity string, activeOnly bool) ([]model.MultiplierPolicy, error) {
	return s.repo.List(ctx, target, activity, activeOnly)
}

// Snapshot 返回当前生效的策略快照，TTL 内可能读到旧数据
func (s *PolicyService) Snapshot(ctx context.Context) (*policy.Set, error) {
	now := s.now()

	s.mu.RLock()
	if s.snapshot != nil && now.Sub(s.snapshot.AsOf()) < s.ttl {
		set := s.snapshot
		s.mu.RUnlock()
		return set, nil
	}
	s.mu.RUnlock()

	policies, err := s.repo.List(ctx, "", "", true)
	if err != nil {
		return nil, errors.Wrap(err, "加载倍率策略失败")
	}
	set := policy.NewSet(policies, now.UTC())

	s.mu.Lock()
	s.snapshot = set
	s.mu.Unlock()
	return set, nil
}

func (s *PolicyService) Invalidate() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

func (s *PolicyService) Resolve(ctx context.Context, target model.TargetType, activity string, metric float64) (policy.Resolution, error) {
	if !policy.ValidActivity(target, activity) {
		return policy.Resolution{}, apperr.Newf(apperr.ErrInvalidArgument, "指标 %s 不适用于 %s", activity, target)
	}
	set, err := s.Snapshot(ctx)
	if err != nil {
		return policy.Resolution{}, err
	}
	return set.Resolve(target, activity, metric), nil
}

package service

import (
	"context"
	"strings"
	"time"

	"clubpoints/internal/apperr"
	"clubpoints/internal/model"
	"clubpoints/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecordService 写入处罚和工作评价，两者都只追加，作为月度评分的输入
type RecordService struct {
	log        *logrus.Logger
	now        func() time.Time
	clubRepo   *repository.ClubRepository
	recordRepo *repository.RecordRepository
}

func NewRecordService(db *gorm.DB, log *logrus.Logger) *RecordService {
	return &RecordService{
		log:        log,
		now:        time.Now,
		clubRepo:   repository.NewClubRepository(db),
		recordRepo: repository.NewRecordRepository(db),
	}
}

type PenaltyRequest struct {
	MembershipID int64      `json:"membership_id" binding:"required"`
	Points       int        `json:"points" binding:"required"`
	Reason       string     `json:"reason" binding:"required"`
	OperatorID   int64      `json:"operator_id" binding:"required"`
	OccurredAt   *time.Time `json:"occurred_at"`
}

type StaffPerformanceRequest struct {
	MembershipID int64      `json:"membership_id" binding:"required"`
	EventID      *int64     `json:"event_id"`
	Evaluation   string     `json:"evaluation" binding:"required"`
	Note         string     `json:"note"`
	OperatorID   int64      `json:"operator_id" binding:"required"`
	EvaluatedAt  *time.Time `json:"evaluated_at"`
}

func (s *RecordService) at(t *time.Time) time.Time {
	if t != nil {
		return t.UTC()
	}
	return s.now().UTC()
}

// RecordPenalty 处罚扣分，Points 必须为负数
func (s *RecordService) RecordPenalty(ctx context.Context, req *PenaltyRequest) (*model.ClubPenalty, error) {
	if req.Points >= 0 {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "处罚分必须为负数: %d", req.Points)
	}
	membership, err := s.clubRepo.GetMembership(ctx, nil, req.MembershipID)
	if err != nil {
		return nil, err
	}
	penalty := &model.ClubPenalty{
		MembershipID: membership.ID,
		ClubID:       membership.ClubID,
		Points:       req.Points,
		Reason:       req.Reason,
		CreatedBy:    req.OperatorID,
		OccurredAt:   s.at(req.OccurredAt),
	}
	if err := s.recordRepo.CreatePenalty(ctx, penalty); err != nil {
		return nil, errors.Wrap(err, "写入处罚记录失败")
	}
	s.log.WithFields(logrus.Fields{
		"membership_id": membership.ID,
		"club_id":       membership.ClubID,
		"points":        req.Points,
	}).Info("处罚已记录")
	return penalty, nil
}

func (s *RecordService) RecordStaffPerformance(ctx context.Context, req *StaffPerformanceRequest) (*model.StaffPerformance, error) {
	evaluation := strings.ToUpper(req.Evaluation)
	if !model.ValidEvaluation(evaluation) {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "未知的评价等级: %s", req.Evaluation)
	}
	membership, err := s.clubRepo.GetMembership(ctx, nil, req.MembershipID)
	if err != nil {
		return nil, err
	}
	perf := &model.StaffPerformance{
		MembershipID: membership.ID,
		ClubID:       membership.ClubID,
		EventID:      req.EventID,
		Evaluation:   evaluation,
		Note:         req.Note,
		CreatedBy:    req.OperatorID,
		EvaluatedAt:  s.at(req.EvaluatedAt),
	}
	if err := s.recordRepo.CreateStaffPerformance(ctx, perf); err != nil {
		return nil, errors.Wrap(err, "写入工作评价失败")
	}
	return perf, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"clubpoints/internal/apperr"
	"clubpoints/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrActivityNotFound = apperr.New(apperr.ErrNotFound, "月度活跃度记录不存在")
	ErrActivityLocked   = apperr.New(apperr.ErrInvalidState, "月度活跃度已锁定")
	ErrActivityUnlocked = apperr.New(apperr.ErrInvalidState, "月度活跃度尚未锁定")
	ErrRewardApproved   = apperr.New(apperr.ErrInvalidState, "奖励积分已审批发放")
)

// 重算时覆盖的列，锁定与审批字段不在其中
var (
	memberActivityColumns = []string{
		"club_id", "total_sessions", "attended_sessions", "attendance_rate",
		"attendance_base_score", "attendance_multiplier", "attendance_score",
		"staff_base_score", "staff_task_count", "staff_score", "penalty_total",
		"events_attended", "final_score", "activity_level", "updated_at",
	}
	clubActivityColumns = []string{
		"event_count", "avg_feedback_rating", "avg_checkin_rate",
		"avg_member_activity_score", "staff_performance_score", "final_score",
		"award_level", "reward_points", "club_multiplier", "club_level", "updated_at",
	}
)

// ActivityRepository 成员与俱乐部的月度活跃度快照
type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// UpsertMember 按 (membership_id, year, month) 插入或覆盖，并发重算同一行也只会留下一行
func (r *ActivityRepository) UpsertMember(ctx context.Context, tx *gorm.DB, row *model.MemberMonthlyActivity) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "membership_id"}, {Name: "year"}, {Name: "month"}},
			DoUpdates: clause.AssignmentColumns(memberActivityColumns),
		}).
		Create(row).Error
}

func (r *ActivityRepository) GetMember(ctx context.Context, tx *gorm.DB, membershipID int64, year, month int) (*model.MemberMonthlyActivity, error) {
	if tx == nil {
		tx = r.db
	}
	var row model.MemberMonthlyActivity
	err := tx.WithContext(ctx).
		Where("membership_id = ? AND year = ? AND month = ?", membershipID, year, month).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return &row, nil
}

// ListMemberFinalScores 俱乐部当月全部成员快照的总分
func (r *ActivityRepository) ListMemberFinalScores(ctx context.Context, clubID int64, year, month int) ([]int, error) {
	var scores []int
	err := r.db.WithContext(ctx).
		Model(&model.MemberMonthlyActivity{}).
		Where("club_id = ? AND year = ? AND month = ?", clubID, year, month).
		Order("membership_id ASC").
		Pluck("final_score", &scores).Error
	return scores, err
}

// UpsertClub 按 (club_id, year, month) 插入或覆盖评分列
// 调用方需要先在同一事务中用 GetClubForUpdate 确认该行未锁定
func (r *ActivityRepository) UpsertClub(ctx context.Context, tx *gorm.DB, row *model.ClubMonthlyActivity) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "club_id"}, {Name: "year"}, {Name: "month"}},
			DoUpdates: clause.AssignmentColumns(clubActivityColumns),
		}).
		Create(row).Error
}

func (r *ActivityRepository) GetClub(ctx context.Context, tx *gorm.DB, clubID int64, year, month int) (*model.ClubMonthlyActivity, error) {
	if tx == nil {
		tx = r.db
	}
	var row model.ClubMonthlyActivity
	err := tx.WithContext(ctx).
		Where("club_id = ? AND year = ? AND month = ?", clubID, year, month).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return &row, nil
}

// GetClubForUpdate 加行锁读取，不存在时返回 ErrActivityNotFound
func (r *ActivityRepository) GetClubForUpdate(ctx context.Context, tx *gorm.DB, clubID int64, year, month int) (*model.ClubMonthlyActivity, error) {
	var row model.ClubMonthlyActivity
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("club_id = ? AND year = ? AND month = ?", clubID, year, month).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return &row, nil
}

// IsClubLocked 该俱乐部当月快照是否已锁定，没有快照视为未锁定
func (r *ActivityRepository) IsClubLocked(ctx context.Context, tx *gorm.DB, clubID int64, year, month int) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.ClubMonthlyActivity{}).
		Where("club_id = ? AND year = ? AND month = ? AND locked = ?", clubID, year, month, true).
		Count(&count).Error
	return count > 0, err
}

// Lock 条件更新 locked=false → true
func (r *ActivityRepository) Lock(ctx context.Context, tx *gorm.DB, id, staffID int64, at time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.ClubMonthlyActivity{}).
		Where("id = ? AND locked = ?", id, false).
		Updates(map[string]interface{}{
			"locked":    true,
			"locked_by": staffID,
			"locked_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrActivityLocked
	}
	return nil
}

// MarkRewardApproved 条件更新 reward_approved=false → true，要求已锁定
func (r *ActivityRepository) MarkRewardApproved(ctx context.Context, tx *gorm.DB, id, staffID int64, at time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.ClubMonthlyActivity{}).
		Where("id = ? AND locked = ? AND reward_approved = ?", id, true, false).
		Updates(map[string]interface{}{
			"reward_approved": true,
			"approved_by":     staffID,
			"approved_at":     at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRewardApproved
	}
	return nil
}

func (r *ActivityRepository) ListClubs(ctx context.Context, year, month int) ([]*model.ClubMonthlyActivity, error) {
	var rows []*model.ClubMonthlyActivity
	err := r.db.WithContext(ctx).
		Where("year = ? AND month = ?", year, month).
		Order("final_score DESC, club_id ASC").
		Find(&rows).Error
	return rows, err
}

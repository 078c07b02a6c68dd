package repository

import (
	"context"
	"errors"

	"clubpoints/internal/apperr"
	"clubpoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrClubNotFound       = apperr.New(apperr.ErrNotFound, "俱乐部不存在")
	ErrMembershipNotFound = apperr.New(apperr.ErrNotFound, "会员关系不存在")
)

// ClubRepository 俱乐部与会员关系
// 两张表的增删改属于俱乐部管理模块，这里只读取并回写月度评分产生的倍率和等级
type ClubRepository struct {
	db *gorm.DB
}

func NewClubRepository(db *gorm.DB) *ClubRepository {
	return &ClubRepository{db: db}
}

func (r *ClubRepository) GetClub(ctx context.Context, tx *gorm.DB, id int64) (*model.Club, error) {
	if tx == nil {
		tx = r.db
	}
	var club model.Club
	err := tx.WithContext(ctx).Where("id = ?", id).First(&club).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClubNotFound
		}
		return nil, err
	}
	return &club, nil
}

// ListActiveClubIDs 返回全部启用的俱乐部，按 id 升序
func (r *ClubRepository) ListActiveClubIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Club{}).
		Where("active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// UpdateClubMultiplier 回写月度倍率，period 早于已写入的月份时不更新
func (r *ClubRepository) UpdateClubMultiplier(ctx context.Context, tx *gorm.DB, clubID int64, period int, multiplier float64, level string) error {
	if tx == nil {
		tx = r.db
	}
	// 数值未变化时 MySQL 的 RowsAffected 为 0，不能据此判断记录是否存在
	return tx.WithContext(ctx).
		Model(&model.Club{}).
		Where("id = ? AND multiplier_period <= ?", clubID, period).
		Updates(map[string]interface{}{
			"club_multiplier":   multiplier,
			"level":             level,
			"multiplier_period": period,
		}).Error
}

func (r *ClubRepository) GetMembership(ctx context.Context, tx *gorm.DB, id int64) (*model.Membership, error) {
	if tx == nil {
		tx = r.db
	}
	var m model.Membership
	err := tx.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindMembership 查询用户在俱乐部的会员关系，不存在时返回 nil, nil
func (r *ClubRepository) FindMembership(ctx context.Context, tx *gorm.DB, userID, clubID int64) (*model.Membership, error) {
	if tx == nil {
		tx = r.db
	}
	var m model.Membership
	err := tx.WithContext(ctx).Where("user_id = ? AND club_id = ?", userID, clubID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListScorableMemberships 俱乐部中参与月度评分的会员关系
func (r *ClubRepository) ListScorableMemberships(ctx context.Context, clubID int64) ([]*model.Membership, error) {
	var list []*model.Membership
	err := r.db.WithContext(ctx).
		Where("club_id = ? AND state IN ?", clubID, model.ScorableMembershipStates).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *ClubRepository) UpdateMembershipMultiplier(ctx context.Context, tx *gorm.DB, membershipID int64, period int, multiplier float64, level string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Membership{}).
		Where("id = ? AND multiplier_period <= ?", membershipID, period).
		Updates(map[string]interface{}{
			"member_multiplier": multiplier,
			"level":             level,
			"multiplier_period": period,
		}).Error
}

package repository

import (
	"context"
	"errors"
	"time"

	"clubpoints/internal/apperr"
	"clubpoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrEventNotFound             = apperr.New(apperr.ErrNotFound, "活动不存在")
	ErrEventStatusChanged        = apperr.New(apperr.ErrInvalidState, "活动状态已变更")
	ErrRegistrationNotFound      = apperr.New(apperr.ErrNotFound, "报名记录不存在")
	ErrRegistrationStatusChanged = apperr.New(apperr.ErrInvalidState, "报名状态已变更")
)

// EventAttendanceStat 单场活动的报名与出勤人数
type EventAttendanceStat struct {
	EventID       int64
	Registrations int
	Attended      int
}

// EventRepository 活动、联合主办、报名与评价
// 活动本身由活动管理模块维护，这里只做结算需要的状态流转
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Event, error) {
	if tx == nil {
		tx = r.db
	}
	var event model.Event
	err := tx.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

// ListCoHostClubIDs 联合主办俱乐部，按 id 升序
func (r *EventRepository) ListCoHostClubIDs(ctx context.Context, tx *gorm.DB, eventID int64) ([]int64, error) {
	if tx == nil {
		tx = r.db
	}
	var ids []int64
	err := tx.WithContext(ctx).
		Model(&model.EventCoHost{}).
		Where("event_id = ?", eventID).
		Order("club_id ASC").
		Pluck("club_id", &ids).Error
	return ids, err
}

// TransitionStatus 条件更新活动状态（乐观锁）
// 当前状态不是 from 时返回 ErrEventStatusChanged，两个并发结算只有一个能成功
func (r *EventRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, eventID int64, from, to string, extra map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	if !model.CanTransitionTo(from, to) {
		return apperr.Newf(apperr.ErrInvalidState, "活动状态不能从 %s 变更为 %s", from, to)
	}
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	result := tx.WithContext(ctx).
		Model(&model.Event{}).
		Where("id = ? AND status = ?", eventID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEventStatusChanged
	}
	return nil
}

func (r *EventRepository) GetRegistration(ctx context.Context, tx *gorm.DB, id int64) (*model.EventRegistration, error) {
	if tx == nil {
		tx = r.db
	}
	var reg model.EventRegistration
	err := tx.WithContext(ctx).Where("id = ?", id).First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

// ListActiveRegistrations 未取消且尚未结算的报名，按 id 升序
func (r *EventRepository) ListActiveRegistrations(ctx context.Context, tx *gorm.DB, eventID int64) ([]*model.EventRegistration, error) {
	if tx == nil {
		tx = r.db
	}
	var list []*model.EventRegistration
	err := tx.WithContext(ctx).
		Where("event_id = ? AND status IN ?", eventID,
			[]string{model.RegistrationStatusPending, model.RegistrationStatusConfirmed}).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// TransitionRegistration 条件更新报名状态，同时写入奖励积分
func (r *EventRepository) TransitionRegistration(ctx context.Context, tx *gorm.DB, id int64, from, to string, rewardPoints int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.EventRegistration{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":        to,
			"reward_points": rewardPoints,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRegistrationStatusChanged
	}
	return nil
}

// ListCompletedEventIDs 俱乐部在 [start, end) 内主办并已完成（含已结算）的活动
func (r *EventRepository) ListCompletedEventIDs(ctx context.Context, clubID int64, start, end time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("host_club_id = ? AND status IN ? AND start_at >= ? AND start_at < ?",
			clubID, []string{model.EventStatusCompleted, model.EventStatusSettled}, start, end).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// AttendanceStats 按活动统计未取消的报名数和出勤数
func (r *EventRepository) AttendanceStats(ctx context.Context, eventIDs []int64) ([]EventAttendanceStat, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var rows []struct {
		EventID       int64
		Registrations int
		Attended      int
	}
	err := r.db.WithContext(ctx).
		Model(&model.EventRegistration{}).
		Select("event_id, COUNT(*) AS registrations, "+
			"SUM(CASE WHEN attendance_level <> ? THEN 1 ELSE 0 END) AS attended", model.AttendanceNone).
		Where("event_id IN ? AND status <> ?", eventIDs, model.RegistrationStatusCanceled).
		Group("event_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	byEvent := make(map[int64]EventAttendanceStat, len(rows))
	for _, row := range rows {
		byEvent[row.EventID] = EventAttendanceStat(row)
	}
	stats := make([]EventAttendanceStat, 0, len(eventIDs))
	for _, id := range eventIDs {
		s, ok := byEvent[id]
		if !ok {
			s = EventAttendanceStat{EventID: id}
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func (r *EventRepository) ListFeedbackRatings(ctx context.Context, eventIDs []int64) ([]int, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var ratings []int
	err := r.db.WithContext(ctx).
		Model(&model.EventFeedback{}).
		Where("event_id IN ?", eventIDs).
		Order("id ASC").
		Pluck("rating", &ratings).Error
	return ratings, err
}

// CountAttendedEvents 用户在 [start, end) 内出勤的、由该俱乐部主办并已完成的活动数
func (r *EventRepository) CountAttendedEvents(ctx context.Context, userID, clubID int64, start, end time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.EventRegistration{}).
		Joins("JOIN event ON event.id = event_registration.event_id").
		Where("event_registration.user_id = ? AND event_registration.attendance_level <> ? AND event_registration.status <> ?",
			userID, model.AttendanceNone, model.RegistrationStatusCanceled).
		Where("event.host_club_id = ? AND event.status IN ? AND event.start_at >= ? AND event.start_at < ?",
			clubID, []string{model.EventStatusCompleted, model.EventStatusSettled}, start, end).
		Count(&count).Error
	return int(count), err
}

package repository

import (
	"context"
	"time"

	"clubpoints/internal/model"

	"gorm.io/gorm"
)

// RecordRepository 月度评分的原始输入：例会签到、处罚、工作评价
type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) CreatePenalty(ctx context.Context, p *model.ClubPenalty) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *RecordRepository) CreateStaffPerformance(ctx context.Context, p *model.StaffPerformance) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// CountSessions 俱乐部在 [start, end) 内举行的例会数
func (r *RecordRepository) CountSessions(ctx context.Context, clubID int64, start, end time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceSession{}).
		Where("club_id = ? AND held_at >= ? AND held_at < ?", clubID, start, end).
		Count(&count).Error
	return int(count), err
}

// CountAttendedSessions 成员在 [start, end) 内签到为 PRESENT 或 LATE 的例会数
func (r *RecordRepository) CountAttendedSessions(ctx context.Context, membershipID, clubID int64, start, end time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Joins("JOIN attendance_session ON attendance_session.id = attendance_record.session_id").
		Where("attendance_record.membership_id = ? AND attendance_record.status IN ?",
			membershipID, []string{model.AttendancePresent, model.AttendanceLate}).
		Where("attendance_session.club_id = ? AND attendance_session.held_at >= ? AND attendance_session.held_at < ?",
			clubID, start, end).
		Count(&count).Error
	return int(count), err
}

func (r *RecordRepository) ListPenaltyPoints(ctx context.Context, membershipID int64, start, end time.Time) ([]int, error) {
	var points []int
	err := r.db.WithContext(ctx).
		Model(&model.ClubPenalty{}).
		Where("membership_id = ? AND occurred_at >= ? AND occurred_at < ?", membershipID, start, end).
		Order("id ASC").
		Pluck("points", &points).Error
	return points, err
}

func (r *RecordRepository) CountStaffTasks(ctx context.Context, membershipID int64, start, end time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.StaffPerformance{}).
		Where("membership_id = ? AND evaluated_at >= ? AND evaluated_at < ?", membershipID, start, end).
		Count(&count).Error
	return int(count), err
}

// ListStaffEvaluations 俱乐部在 [start, end) 内的全部工作评价
func (r *RecordRepository) ListStaffEvaluations(ctx context.Context, clubID int64, start, end time.Time) ([]string, error) {
	var evaluations []string
	err := r.db.WithContext(ctx).
		Model(&model.StaffPerformance{}).
		Where("club_id = ? AND evaluated_at >= ? AND evaluated_at < ?", clubID, start, end).
		Order("id ASC").
		Pluck("evaluation", &evaluations).Error
	return evaluations, err
}

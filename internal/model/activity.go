package model

import (
	"time"
)

// MemberMonthlyActivity 成员月度活跃度快照，(membership_id, year, month) 唯一
// 重算时整行覆盖
type MemberMonthlyActivity struct {
	ID                   int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MembershipID         int64     `gorm:"uniqueIndex:uk_member_activity_period;not null" json:"membership_id"`
	ClubID               int64     `gorm:"index;not null" json:"club_id"`
	Year                 int       `gorm:"uniqueIndex:uk_member_activity_period;not null" json:"year"`
	Month                int       `gorm:"uniqueIndex:uk_member_activity_period;not null" json:"month"`
	TotalSessions        int       `gorm:"not null" json:"total_sessions"`
	AttendedSessions     int       `gorm:"not null" json:"attended_sessions"`
	AttendanceRate       float64   `gorm:"not null" json:"attendance_rate"`
	AttendanceBaseScore  int       `gorm:"not null" json:"attendance_base_score"`
	AttendanceMultiplier float64   `gorm:"not null" json:"attendance_multiplier"`
	AttendanceScore      int       `gorm:"not null" json:"attendance_score"`
	StaffBaseScore       int       `gorm:"not null" json:"staff_base_score"`
	StaffTaskCount       int       `gorm:"not null" json:"staff_task_count"`
	StaffScore           int       `gorm:"not null" json:"staff_score"`
	PenaltyTotal         int       `gorm:"not null" json:"penalty_total"`
	EventsAttended       int       `gorm:"not null" json:"events_attended"`
	FinalScore           int       `gorm:"not null" json:"final_score"`
	ActivityLevel        string    `gorm:"type:varchar(32);not null" json:"activity_level"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MemberMonthlyActivity) TableName() string {
	return "member_monthly_activity"
}

// ClubMonthlyActivity 俱乐部月度活跃度快照，(club_id, year, month) 唯一
// Locked 之后不可重算；RewardApproved 表示奖励积分已发放
type ClubMonthlyActivity struct {
	ID                     int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID                 int64      `gorm:"uniqueIndex:uk_club_activity_period;not null" json:"club_id"`
	Year                   int        `gorm:"uniqueIndex:uk_club_activity_period;not null" json:"year"`
	Month                  int        `gorm:"uniqueIndex:uk_club_activity_period;not null" json:"month"`
	EventCount             int        `gorm:"not null" json:"event_count"`
	AvgFeedbackRating      float64    `gorm:"not null" json:"avg_feedback_rating"`
	AvgCheckinRate         float64    `gorm:"not null" json:"avg_checkin_rate"`
	AvgMemberActivityScore float64    `gorm:"not null" json:"avg_member_activity_score"`
	StaffPerformanceScore  float64    `gorm:"not null" json:"staff_performance_score"`
	FinalScore             float64    `gorm:"not null" json:"final_score"`
	AwardLevel             string     `gorm:"type:varchar(32);not null" json:"award_level"`
	RewardPoints           int64      `gorm:"not null" json:"reward_points"`
	ClubMultiplier         float64    `gorm:"not null" json:"club_multiplier"`
	ClubLevel              string     `gorm:"type:varchar(32);not null" json:"club_level"`
	Locked                 bool       `gorm:"not null" json:"locked"`
	LockedBy               *int64     `json:"locked_by,omitempty"`
	LockedAt               *time.Time `json:"locked_at,omitempty"`
	RewardApproved         bool       `gorm:"not null" json:"reward_approved"`
	ApprovedBy             *int64     `json:"approved_by,omitempty"`
	ApprovedAt             *time.Time `json:"approved_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ClubMonthlyActivity) TableName() string {
	return "club_monthly_activity"
}

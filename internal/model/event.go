package model

import (
	"time"
)

const (
	EventStatusPending   = "PENDING"
	EventStatusApproved  = "APPROVED"
	EventStatusRejected  = "REJECTED"
	EventStatusOngoing   = "ONGOING"
	EventStatusCompleted = "COMPLETED"
	EventStatusSettled   = "SETTLED"
	EventStatusCancelled = "CANCELLED"
)

// ValidStatusTransitions 活动状态机，REJECTED/CANCELLED/SETTLED 为终态
var ValidStatusTransitions = map[string][]string{
	EventStatusPending:   {EventStatusApproved, EventStatusRejected, EventStatusCancelled},
	EventStatusApproved:  {EventStatusOngoing, EventStatusCompleted, EventStatusCancelled},
	EventStatusOngoing:   {EventStatusCompleted, EventStatusCancelled},
	EventStatusCompleted: {EventStatusSettled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// CommitOpenStatuses 允许拨付预算和锁定报名积分的状态
var CommitOpenStatuses = []string{EventStatusApproved, EventStatusOngoing}

func IsCommitOpen(status string) bool {
	for _, s := range CommitOpenStatuses {
		if s == status {
			return true
		}
	}
	return false
}

const (
	EventTypePublic  = "PUBLIC"
	EventTypePrivate = "PRIVATE"
	EventTypeSpecial = "SPECIAL"
)

type Event struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title      string     `gorm:"type:varchar(128);not null" json:"title"`
	HostClubID int64      `gorm:"index;not null" json:"host_club_id"`
	Type       string     `gorm:"type:varchar(20);not null" json:"type"`
	Status     string     `gorm:"type:varchar(20);index;not null" json:"status"`
	StartAt    time.Time  `gorm:"index;not null" json:"start_at"`
	EndAt      time.Time  `gorm:"not null" json:"end_at"`
	SettledAt  *time.Time `json:"settled_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Event) TableName() string {
	return "event"
}

// EventCoHost 联合主办俱乐部
type EventCoHost struct {
	EventID int64 `gorm:"primaryKey" json:"event_id"`
	ClubID  int64 `gorm:"primaryKey" json:"club_id"`
}

func (EventCoHost) TableName() string {
	return "event_co_host"
}

const (
	AttendanceNone = "NONE"
	AttendanceHalf = "HALF"
	AttendanceFull = "FULL"
)

const (
	RegistrationStatusPending   = "PENDING"
	RegistrationStatusConfirmed = "CONFIRMED"
	RegistrationStatusRefunded  = "REFUNDED"
	RegistrationStatusCanceled  = "CANCELED"
)

// EventRegistration 活动报名
// CommittedPoints 报名时确定，之后不再修改；AttendanceLevel 由签到模块写入
type EventRegistration struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID         int64     `gorm:"uniqueIndex:uk_registration_event_user;not null" json:"event_id"`
	UserID          int64     `gorm:"uniqueIndex:uk_registration_event_user;index;not null" json:"user_id"`
	CommittedPoints int64     `gorm:"not null;default:0" json:"committed_points"`
	AttendanceLevel string    `gorm:"type:varchar(10);not null;default:NONE" json:"attendance_level"`
	Status          string    `gorm:"type:varchar(20);index;not null" json:"status"`
	RewardPoints    int64     `gorm:"not null;default:0" json:"reward_points"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EventRegistration) TableName() string {
	return "event_registration"
}

// EventFeedback 活动评价，Rating 取值 1-5
type EventFeedback struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID   int64     `gorm:"index;not null" json:"event_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (EventFeedback) TableName() string {
	return "event_feedback"
}

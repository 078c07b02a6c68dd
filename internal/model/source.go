package model

import (
	"time"
)

// 以下表由签到、处罚、工作评价等模块写入，评分引擎只读

// AttendanceSession 俱乐部例会场次
type AttendanceSession struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID    int64     `gorm:"index:idx_session_club_held;not null" json:"club_id"`
	HeldAt    time.Time `gorm:"index:idx_session_club_held;not null" json:"held_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AttendanceSession) TableName() string {
	return "attendance_session"
}

const (
	AttendancePresent = "PRESENT"
	AttendanceLate    = "LATE"
	AttendanceAbsent  = "ABSENT"
	AttendanceExcused = "EXCUSED"
)

type AttendanceRecord struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID    int64     `gorm:"uniqueIndex:uk_attendance_session_member;not null" json:"session_id"`
	MembershipID int64     `gorm:"uniqueIndex:uk_attendance_session_member;index;not null" json:"membership_id"`
	Status       string    `gorm:"type:varchar(10);not null" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AttendanceRecord) TableName() string {
	return "attendance_record"
}

// ClubPenalty 俱乐部处罚记录，Points 恒为负数，只追加
type ClubPenalty struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MembershipID int64     `gorm:"index;not null" json:"membership_id"`
	ClubID       int64     `gorm:"index;not null" json:"club_id"`
	Points       int       `gorm:"not null" json:"points"`
	Reason       string    `gorm:"type:varchar(256)" json:"reason"`
	CreatedBy    int64     `gorm:"not null" json:"created_by"`
	OccurredAt   time.Time `gorm:"index;not null" json:"occurred_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ClubPenalty) TableName() string {
	return "club_penalty"
}

const (
	EvaluationPoor      = "POOR"
	EvaluationAverage   = "AVERAGE"
	EvaluationGood      = "GOOD"
	EvaluationExcellent = "EXCELLENT"
)

func ValidEvaluation(e string) bool {
	switch e {
	case EvaluationPoor, EvaluationAverage, EvaluationGood, EvaluationExcellent:
		return true
	}
	return false
}

// StaffPerformance 工作人员表现评价，每条记录计一次任务，只追加
type StaffPerformance struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MembershipID int64     `gorm:"index;not null" json:"membership_id"`
	ClubID       int64     `gorm:"index;not null" json:"club_id"`
	EventID      *int64    `gorm:"index" json:"event_id,omitempty"`
	Evaluation   string    `gorm:"type:varchar(16);not null" json:"evaluation"`
	Note         string    `gorm:"type:varchar(256)" json:"note"`
	CreatedBy    int64     `gorm:"not null" json:"created_by"`
	EvaluatedAt  time.Time `gorm:"index;not null" json:"evaluated_at"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (StaffPerformance) TableName() string {
	return "staff_performance"
}

// AllModels 需要自动迁移的全部表
func AllModels() []interface{} {
	return []interface{}{
		&Wallet{},
		&WalletTransaction{},
		&Club{},
		&Membership{},
		&Event{},
		&EventCoHost{},
		&EventRegistration{},
		&EventFeedback{},
		&AttendanceSession{},
		&AttendanceRecord{},
		&ClubPenalty{},
		&StaffPerformance{},
		&MultiplierPolicy{},
		&MemberMonthlyActivity{},
		&ClubMonthlyActivity{},
		&OutboxMessage{},
	}
}

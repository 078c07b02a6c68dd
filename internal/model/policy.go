package model

import (
	"time"
)

type TargetType string

const (
	TargetClub   TargetType = "CLUB"
	TargetMember TargetType = "MEMBER"
)

func (t TargetType) Valid() bool {
	return t == TargetClub || t == TargetMember
}

// 策略适用的活跃度指标
const (
	ActivityEventParticipation = "EVENT_PARTICIPATION" // 成员：当期出勤活动数
	ActivitySessionAttendance  = "SESSION_ATTENDANCE"  // 成员：例会出勤率百分比
	ActivityClubEvents         = "CLUB_EVENTS"         // 俱乐部：当期完成活动数
)

// MultiplierPolicy 倍率阈值策略
// 同一 (TargetType, ActivityType) 下可以并存多档，解析时取满足阈值的最高一档
type MultiplierPolicy struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TargetType         TargetType `gorm:"type:varchar(10);uniqueIndex:uk_policy_target_level;not null" json:"target_type"`
	ActivityType       string     `gorm:"type:varchar(32);uniqueIndex:uk_policy_target_level;not null" json:"activity_type"`
	LevelOrStatus      string     `gorm:"type:varchar(32);uniqueIndex:uk_policy_target_level;not null" json:"level_or_status"`
	MinEventsThreshold float64    `gorm:"not null;default:0" json:"min_events_threshold"`
	Multiplier         float64    `gorm:"not null" json:"multiplier"`
	Active             bool       `gorm:"not null" json:"active"`
	EffectiveFrom      time.Time  `gorm:"not null" json:"effective_from"`
	UpdatedBy          int64      `gorm:"not null;default:0" json:"updated_by"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MultiplierPolicy) TableName() string {
	return "multiplier_policy"
}

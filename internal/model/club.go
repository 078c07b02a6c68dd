package model

import (
	"time"
)

// LevelBasic 最低等级，策略匹配不到时使用
const LevelBasic = "BASIC"

const (
	MembershipStatePending  = "PENDING"
	MembershipStateApproved = "APPROVED"
	MembershipStateActive   = "ACTIVE"
	MembershipStateRejected = "REJECTED"
	MembershipStateInactive = "INACTIVE"
	MembershipStateKicked   = "KICKED"
)

// ScorableMembershipStates 月度批量评分覆盖的会员状态
var ScorableMembershipStates = []string{MembershipStateApproved, MembershipStateActive}

// Club 俱乐部
// ClubMultiplier/Level 只由月度评分写入，结算时读取
// MultiplierPeriod 记录写入倍率的月份，重算更早的月份不覆盖
type Club struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(128);not null" json:"name"`
	ClubMultiplier   float64   `gorm:"not null;default:1" json:"club_multiplier"`
	Level            string    `gorm:"type:varchar(32);not null;default:BASIC" json:"level"`
	MultiplierPeriod int       `gorm:"not null;default:0" json:"multiplier_period"`
	Active           bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Club) TableName() string {
	return "club"
}

// Membership 用户与俱乐部的成员关系
// MemberMultiplier/Level 只由月度评分写入，不接受用户直接修改
type Membership struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           int64     `gorm:"uniqueIndex:uk_membership_user_club;not null" json:"user_id"`
	ClubID           int64     `gorm:"uniqueIndex:uk_membership_user_club;index;not null" json:"club_id"`
	Level            string    `gorm:"type:varchar(32);not null;default:BASIC" json:"level"`
	MemberMultiplier float64   `gorm:"not null;default:1" json:"member_multiplier"`
	MultiplierPeriod int       `gorm:"not null;default:0" json:"multiplier_period"`
	Staff            bool      `gorm:"not null;default:false" json:"staff"`
	State            string    `gorm:"type:varchar(20);not null;index" json:"state"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Membership) TableName() string {
	return "membership"
}

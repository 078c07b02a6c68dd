package model

import (
	"time"
)

type OwnerType string

const (
	OwnerTypeUser  OwnerType = "USER"
	OwnerTypeClub  OwnerType = "CLUB"
	OwnerTypeEvent OwnerType = "EVENT"
)

func (t OwnerType) Valid() bool {
	switch t {
	case OwnerTypeUser, OwnerTypeClub, OwnerTypeEvent:
		return true
	}
	return false
}

// OverdraftAllowed 各类钱包是否允许透支
// 活动钱包由俱乐部拨款、成员押金构成，发放奖励时不能超过实际到账积分；
// 俱乐部和用户钱包同样不允许出现负数
var OverdraftAllowed = map[OwnerType]bool{
	OwnerTypeUser:  false,
	OwnerTypeClub:  false,
	OwnerTypeEvent: false,
}

// Wallet 积分钱包
// 用户、俱乐部、已审批的活动各持有一个钱包，三个 owner 字段有且只有一个非空，且与 OwnerType 对应
// Balance 是流水的缓存值，以 wallet_transaction 的累加和为准
type Wallet struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerType OwnerType `gorm:"type:varchar(10);not null;index" json:"owner_type"`
	UserID    *int64    `gorm:"uniqueIndex" json:"user_id,omitempty"`
	ClubID    *int64    `gorm:"uniqueIndex" json:"club_id,omitempty"`
	EventID   *int64    `gorm:"uniqueIndex" json:"event_id,omitempty"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallet"
}

// NewWallet 按 owner 类型构造一个余额为0的启用钱包
func NewWallet(ownerType OwnerType, ownerID int64) *Wallet {
	w := &Wallet{OwnerType: ownerType, Active: true}
	id := ownerID
	switch ownerType {
	case OwnerTypeUser:
		w.UserID = &id
	case OwnerTypeClub:
		w.ClubID = &id
	case OwnerTypeEvent:
		w.EventID = &id
	}
	return w
}

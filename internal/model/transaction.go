package model

import (
	"time"
)

// ============================================================================
// 流水类型常量
// ============================================================================

type TransactionKind string

const (
	KindInitialGrant         TransactionKind = "INITIAL_GRANT"          // 开户赠送
	KindAdminAdjustment      TransactionKind = "ADMIN_ADJUSTMENT"       // 管理员调整
	KindMemberTransfer       TransactionKind = "MEMBER_TRANSFER"        // 用户间转账
	KindClubTopUp            TransactionKind = "CLUB_TOP_UP"            // 俱乐部充值
	KindBudgetGrant          TransactionKind = "BUDGET_GRANT"           // 活动预算拨款
	KindCommitLock           TransactionKind = "COMMIT_LOCK"            // 报名押金锁定
	KindCommitRefund         TransactionKind = "COMMIT_REFUND"          // 取消报名退还押金
	KindCommitForfeit        TransactionKind = "COMMIT_FORFEIT"         // 缺席押金没收
	KindBonusReward          TransactionKind = "BONUS_REWARD"           // 出勤奖励
	KindSurplusReturn        TransactionKind = "SURPLUS_RETURN"         // 活动结余返还
	KindEventCancelRefund    TransactionKind = "EVENT_CANCEL_REFUND"    // 活动取消退款
	KindClubActivityReward   TransactionKind = "CLUB_ACTIVITY_REWARD"   // 俱乐部月度奖励
	KindMemberActivityReward TransactionKind = "MEMBER_ACTIVITY_REWARD" // 成员月度奖励
	KindPenaltyDeduction     TransactionKind = "PENALTY_DEDUCTION"      // 处罚扣分
	KindRedemption           TransactionKind = "REDEMPTION"             // 兑换商品
	KindRedemptionRefund     TransactionKind = "REDEMPTION_REFUND"      // 兑换退回
	KindMonthlyAllowance     TransactionKind = "MONTHLY_ALLOWANCE"      // 月度配额
	KindExpiration           TransactionKind = "EXPIRATION"             // 积分过期
	KindCorrection           TransactionKind = "CORRECTION"             // 对账修正
)

var knownKinds = map[TransactionKind]struct{}{
	KindInitialGrant: {}, KindAdminAdjustment: {}, KindMemberTransfer: {}, KindClubTopUp: {},
	KindBudgetGrant: {}, KindCommitLock: {}, KindCommitRefund: {}, KindCommitForfeit: {},
	KindBonusReward: {}, KindSurplusReturn: {}, KindEventCancelRefund: {}, KindClubActivityReward: {},
	KindMemberActivityReward: {}, KindPenaltyDeduction: {}, KindRedemption: {}, KindRedemptionRefund: {},
	KindMonthlyAllowance: {}, KindExpiration: {}, KindCorrection: {},
}

func (k TransactionKind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// ============================================================================
// 钱包流水实体
// ============================================================================

// WalletTransaction 钱包流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 钱包余额必须等于该钱包全部流水 Amount 之和
// 3. 转账写一对流水（出账方负数、入账方正数），通过 CounterpartyWalletID 互相指向
type WalletTransaction struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo        string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	WalletID             int64           `gorm:"index;not null" json:"wallet_id"`
	CounterpartyWalletID *int64          `gorm:"index" json:"counterparty_wallet_id,omitempty"`
	Kind                 TransactionKind `gorm:"type:varchar(32);not null;index" json:"kind"`
	Amount               int64           `gorm:"not null" json:"amount"` // 正数入账，负数出账
	BalanceBefore        int64           `gorm:"not null" json:"balance_before"`
	BalanceAfter         int64           `gorm:"not null" json:"balance_after"`
	Reason               string          `gorm:"type:varchar(256)" json:"reason"`
	ReferenceNo          string          `gorm:"type:varchar(64);index" json:"reference_no"` // 关联业务单号，如 event:12
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}

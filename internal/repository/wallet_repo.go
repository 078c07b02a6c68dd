package repository

import (
	"context"
	"errors"
	"sort"

	"clubpoints/internal/apperr"
	"clubpoints/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound   = apperr.New(apperr.ErrNotFound, "钱包不存在")
	ErrWalletInactive   = apperr.New(apperr.ErrInvalidState, "钱包已停用")
	ErrWalletExists     = apperr.New(apperr.ErrConflict, "钱包已存在")
	ErrBalanceNotEnough = apperr.New(apperr.ErrInsufficientFunds, "余额不足")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, tx *gorm.DB, wallet *model.Wallet) error {
	if tx == nil {
		tx = r.db
	}
	err := tx.WithContext(ctx).Create(wallet).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrWalletExists
	}
	return err
}

func (r *WalletRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Wallet, error) {
	if tx == nil {
		tx = r.db
	}
	var wallet model.Wallet
	err := tx.WithContext(ctx).Where("id = ?", id).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func ownerColumn(ownerType model.OwnerType) string {
	switch ownerType {
	case model.OwnerTypeClub:
		return "club_id"
	case model.OwnerTypeEvent:
		return "event_id"
	default:
		return "user_id"
	}
}

func (r *WalletRepository) GetByOwner(ctx context.Context, tx *gorm.DB, ownerType model.OwnerType, ownerID int64) (*model.Wallet, error) {
	if tx == nil {
		tx = r.db
	}
	var wallet model.Wallet
	err := tx.WithContext(ctx).
		Where("owner_type = ? AND "+ownerColumn(ownerType)+" = ?", ownerType, ownerID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByIDForUpdate 加行锁读取钱包，必须在事务中调用
func (r *WalletRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Wallet, error) {
	var wallet model.Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// LockInOrder 按 id 升序依次加行锁，所有多钱包操作都走这里，避免交叉加锁造成死锁
func (r *WalletRepository) LockInOrder(ctx context.Context, tx *gorm.DB, ids ...int64) (map[int64]*model.Wallet, error) {
	sorted := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	locked := make(map[int64]*model.Wallet, len(sorted))
	for _, id := range sorted {
		w, err := r.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = w
	}
	return locked, nil
}

// Debit 扣减余额
// 不允许透支的钱包带 balance >= amount 条件更新，更新不到行说明余额不足
func (r *WalletRepository) Debit(ctx context.Context, tx *gorm.DB, wallet *model.Wallet, amount int64) error {
	query := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND active = ?", wallet.ID, true)
	if !model.OverdraftAllowed[wallet.OwnerType] {
		query = query.Where("balance >= ?", amount)
	}
	result := query.Updates(map[string]interface{}{
		"balance": gorm.Expr("balance - ?", amount),
		"version": gorm.Expr("version + 1"),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if !wallet.Active {
			return ErrWalletInactive
		}
		return ErrBalanceNotEnough
	}
	return nil
}

func (r *WalletRepository) Credit(ctx context.Context, tx *gorm.DB, wallet *model.Wallet, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND active = ?", wallet.ID, true).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletInactive
	}
	return nil
}

// SetBalance 直接覆盖缓存余额，只用于对账修复
func (r *WalletRepository) SetBalance(ctx context.Context, tx *gorm.DB, id int64, balance int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"balance": balance,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// Deactivate 停用钱包，已停用时返回 ErrWalletInactive
func (r *WalletRepository) Deactivate(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"active":  false,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletInactive
	}
	return nil
}

// ListAfterID 按 id 游标分页，对账任务使用
func (r *WalletRepository) ListAfterID(ctx context.Context, afterID int64, limit int) ([]*model.Wallet, error) {
	var wallets []*model.Wallet
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&wallets).Error
	return wallets, err
}

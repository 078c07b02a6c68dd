package service

import (
	"context"

	"clubpoints/internal/apperr"
	"clubpoints/internal/metrics"
	"clubpoints/internal/model"
	"clubpoints/internal/repository"
	"clubpoints/pkg/idgen"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ============================================================================
// 钱包账本
// ============================================================================
//
// 所有余额变动都经过这里：
//   1. 在事务内按钱包 id 升序 SELECT ... FOR UPDATE
//   2. 条件更新余额（不允许透支的钱包带 balance >= amount）
//   3. 追加流水，转账写一对流水，调整写一条
//
// 带 Tx 后缀的方法加入调用方的事务，结算等多步操作用它们组成一个整体。
//
// ============================================================================

type LedgerService struct {
	db              *gorm.DB
	log             *logrus.Logger
	walletRepo      *repository.WalletRepository
	transactionRepo *repository.TransactionRepository
}

func NewLedgerService(db *gorm.DB, log *logrus.Logger) *LedgerService {
	return &LedgerService{
		db:              db,
		log:             log,
		walletRepo:      repository.NewWalletRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
	}
}

type TransferRequest struct {
	FromWalletID int64                 `json:"from_wallet_id" binding:"required"`
	ToWalletID   int64                 `json:"to_wallet_id" binding:"required"`
	Amount       int64                 `json:"amount" binding:"required,gt=0"`
	Kind         model.TransactionKind `json:"kind" binding:"required"`
	Reason       string                `json:"reason"`
	ReferenceNo  string                `json:"reference_no"`
}

func (r *TransferRequest) validate() error {
	if r.Amount <= 0 {
		return apperr.Newf(apperr.ErrInvalidArgument, "转账积分必须大于0: %d", r.Amount)
	}
	if r.FromWalletID == r.ToWalletID {
		return apperr.New(apperr.ErrInvalidArgument, "不能向同一个钱包转账")
	}
	if !r.Kind.Valid() {
		return apperr.Newf(apperr.ErrInvalidArgument, "未知的流水类型: %s", r.Kind)
	}
	return nil
}

type TransferResult struct {
	DebitTransactionNo  string                `json:"debit_transaction_no"`
	CreditTransactionNo string                `json:"credit_transaction_no"`
	FromWalletID        int64                 `json:"from_wallet_id"`
	ToWalletID          int64                 `json:"to_wallet_id"`
	Kind                model.TransactionKind `json:"kind"`
	Amount              int64                 `json:"amount"`
	FromBalance         int64                 `json:"from_balance"`
	ToBalance           int64                 `json:"to_balance"`
}

type AdjustRequest struct {
	WalletID    int64                 `json:"wallet_id" binding:"required"`
	Amount      int64                 `json:"amount" binding:"required"` // 正数发放，负数扣减
	Kind        model.TransactionKind `json:"kind" binding:"required"`
	Reason      string                `json:"reason"`
	ReferenceNo string                `json:"reference_no"`
}

// ReconcileResult 缓存余额与流水累加值的对比
type ReconcileResult struct {
	WalletID int64 `json:"wallet_id"`
	Cached   int64 `json:"cached"`
	Computed int64 `json:"computed"`
	Drift    int64 `json:"drift"`
}

func (r *ReconcileResult) Consistent() bool {
	return r.Drift == 0
}

// CreateWallet 为 owner 开一个余额为0的钱包，重复开户返回 ErrConflict
func (s *LedgerService) CreateWallet(ctx context.Context, ownerType model.OwnerType, ownerID int64) (*model.Wallet, error) {
	return s.CreateWalletTx(ctx, s.db, ownerType, ownerID)
}

func (s *LedgerService) CreateWalletTx(ctx context.Context, tx *gorm.DB, ownerType model.OwnerType, ownerID int64) (*model.Wallet, error) {
	if !ownerType.Valid() {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "未知的钱包类型: %s", ownerType)
	}
	if ownerID <= 0 {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "owner id 不合法: %d", ownerID)
	}
	wallet := model.NewWallet(ownerType, ownerID)
	if err := s.walletRepo.Create(ctx, tx, wallet); err != nil {
		return nil, errors.Wrapf(err, "创建钱包失败 %s:%d", ownerType, ownerID)
	}
	s.log.WithFields(logrus.Fields{
		"wallet_id":  wallet.ID,
		"owner_type": ownerType,
		"owner_id":   ownerID,
	}).Info("钱包已创建")
	return wallet, nil
}

func (s *LedgerService) GetWallet(ctx context.Context, walletID int64) (*model.Wallet, error) {
	return s.walletRepo.GetByID(ctx, nil, walletID)
}

func (s *LedgerService) GetWalletByOwner(ctx context.Context, ownerType model.OwnerType, ownerID int64) (*model.Wallet, error) {
	if !ownerType.Valid() {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "未知的钱包类型: %s", ownerType)
	}
	return s.walletRepo.GetByOwner(ctx, nil, ownerType, ownerID)
}

func (s *LedgerService) ListTransactions(ctx context.Context, walletID int64, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	if _, err := s.walletRepo.GetByID(ctx, nil, walletID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.transactionRepo.ListByWalletID(ctx, walletID, page, pageSize)
}

// Transfer 在独立事务中转账
func (s *LedgerService) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	var result *TransferResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.TransferTx(ctx, tx, req)
		return err
	})
	if err != nil {
		metrics.LedgerFailures.WithLabelValues(metrics.Reason(apperr.KindOf(err))).Inc()
		return nil, err
	}
	RecordMoved(req.Kind, req.Amount)
	return result, nil
}

// TransferTx 在调用方事务中转账，调用方负责提交和记录指标
func (s *LedgerService) TransferTx(ctx context.Context, tx *gorm.DB, req *TransferRequest) (*TransferResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	wallets, err := s.walletRepo.LockInOrder(ctx, tx, req.FromWalletID, req.ToWalletID)
	if err != nil {
		return nil, errors.Wrapf(err, "锁定钱包失败 %d -> %d", req.FromWalletID, req.ToWalletID)
	}
	from, to := wallets[req.FromWalletID], wallets[req.ToWalletID]
	for _, w := range []*model.Wallet{from, to} {
		if !w.Active {
			return nil, errors.Wrapf(repository.ErrWalletInactive, "钱包 %d", w.ID)
		}
	}
	if !model.OverdraftAllowed[from.OwnerType] && from.Balance < req.Amount {
		return nil, errors.Wrapf(repository.ErrBalanceNotEnough, "钱包 %d 余额 %d，需要 %d", from.ID, from.Balance, req.Amount)
	}

	if err := s.walletRepo.Debit(ctx, tx, from, req.Amount); err != nil {
		return nil, errors.Wrapf(err, "扣减钱包 %d 失败", from.ID)
	}
	if err := s.walletRepo.Credit(ctx, tx, to, req.Amount); err != nil {
		return nil, errors.Wrapf(err, "增加钱包 %d 失败", to.ID)
	}

	fromID, toID := from.ID, to.ID
	debit := &model.WalletTransaction{
		TransactionNo:        idgen.GenerateTransactionNo(),
		WalletID:             from.ID,
		CounterpartyWalletID: &toID,
		Kind:                 req.Kind,
		Amount:               -req.Amount,
		BalanceBefore:        from.Balance,
		BalanceAfter:         from.Balance - req.Amount,
		Reason:               req.Reason,
		ReferenceNo:          req.ReferenceNo,
	}
	credit := &model.WalletTransaction{
		TransactionNo:        idgen.GenerateTransactionNo(),
		WalletID:             to.ID,
		CounterpartyWalletID: &fromID,
		Kind:                 req.Kind,
		Amount:               req.Amount,
		BalanceBefore:        to.Balance,
		BalanceAfter:         to.Balance + req.Amount,
		Reason:               req.Reason,
		ReferenceNo:          req.ReferenceNo,
	}
	if err := s.transactionRepo.Create(ctx, tx, debit, credit); err != nil {
		return nil, errors.Wrap(err, "写入转账流水失败")
	}

	return &TransferResult{
		DebitTransactionNo:  debit.TransactionNo,
		CreditTransactionNo: credit.TransactionNo,
		FromWalletID:        from.ID,
		ToWalletID:          to.ID,
		Kind:                req.Kind,
		Amount:              req.Amount,
		FromBalance:         debit.BalanceAfter,
		ToBalance:           credit.BalanceAfter,
	}, nil
}

// Adjust 单边发放或扣减，用于系统发放、管理员调整、月度奖励
func (s *LedgerService) Adjust(ctx context.Context, req *AdjustRequest) (*model.WalletTransaction, error) {
	var trans *model.WalletTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		trans, err = s.AdjustTx(ctx, tx, req)
		return err
	})
	if err != nil {
		metrics.LedgerFailures.WithLabelValues(metrics.Reason(apperr.KindOf(err))).Inc()
		return nil, err
	}
	RecordMoved(req.Kind, req.Amount)
	return trans, nil
}

func (s *LedgerService) AdjustTx(ctx context.Context, tx *gorm.DB, req *AdjustRequest) (*model.WalletTransaction, error) {
	if req.Amount == 0 {
		return nil, apperr.New(apperr.ErrInvalidArgument, "调整积分不能为0")
	}
	if !req.Kind.Valid() {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "未知的流水类型: %s", req.Kind)
	}

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, req.WalletID)
	if err != nil {
		return nil, errors.Wrapf(err, "锁定钱包 %d 失败", req.WalletID)
	}
	if !wallet.Active {
		return nil, errors.Wrapf(repository.ErrWalletInactive, "钱包 %d", wallet.ID)
	}

	if req.Amount < 0 {
		if !model.OverdraftAllowed[wallet.OwnerType] && wallet.Balance < -req.Amount {
			return nil, errors.Wrapf(repository.ErrBalanceNotEnough, "钱包 %d 余额 %d，需要 %d", wallet.ID, wallet.Balance, -req.Amount)
		}
		err = s.walletRepo.Debit(ctx, tx, wallet, -req.Amount)
	} else {
		err = s.walletRepo.Credit(ctx, tx, wallet, req.Amount)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "调整钱包 %d 失败", wallet.ID)
	}

	trans := &model.WalletTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		WalletID:      wallet.ID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance + req.Amount,
		Reason:        req.Reason,
		ReferenceNo:   req.ReferenceNo,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return nil, errors.Wrap(err, "写入调整流水失败")
	}
	return trans, nil
}

// DeactivateTx 停用钱包，停用后不能再转入转出
func (s *LedgerService) DeactivateTx(ctx context.Context, tx *gorm.DB, walletID int64) error {
	if err := s.walletRepo.Deactivate(ctx, tx, walletID); err != nil {
		return errors.Wrapf(err, "停用钱包 %d 失败", walletID)
	}
	return nil
}

// Reconcile 用流水重新计算余额并与缓存值比较，只读
func (s *LedgerService) Reconcile(ctx context.Context, walletID int64) (*ReconcileResult, error) {
	wallet, err := s.walletRepo.GetByID(ctx, nil, walletID)
	if err != nil {
		return nil, err
	}
	computed, err := s.transactionRepo.SumByWalletID(ctx, nil, walletID)
	if err != nil {
		return nil, errors.Wrapf(err, "汇总钱包 %d 流水失败", walletID)
	}
	return &ReconcileResult{
		WalletID: walletID,
		Cached:   wallet.Balance,
		Computed: computed,
		Drift:    wallet.Balance - computed,
	}, nil
}

// RepairBalance 加锁后用流水累加值覆盖缓存余额，返回修复前的对比结果
func (s *LedgerService) RepairBalance(ctx context.Context, walletID int64) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, tx, walletID)
		if err != nil {
			return err
		}
		computed, err := s.transactionRepo.SumByWalletID(ctx, tx, walletID)
		if err != nil {
			return errors.Wrapf(err, "汇总钱包 %d 流水失败", walletID)
		}
		result = &ReconcileResult{
			WalletID: walletID,
			Cached:   wallet.Balance,
			Computed: computed,
			Drift:    wallet.Balance - computed,
		}
		if result.Consistent() {
			return nil
		}
		return s.walletRepo.SetBalance(ctx, tx, walletID, computed)
	})
	if err != nil {
		return nil, err
	}
	if !result.Consistent() {
		s.log.WithFields(logrus.Fields{
			"wallet_id": walletID,
			"cached":    result.Cached,
			"computed":  result.Computed,
		}).Warn("钱包余额已按流水修复")
	}
	return result, nil
}

// RecordMoved 记录已提交的积分流转量
func RecordMoved(kind model.TransactionKind, amount int64) {
	if amount < 0 {
		amount = -amount
	}
	metrics.PointsMoved.WithLabelValues(string(kind)).Add(float64(amount))
}

package service

import (
	"context"
	"fmt"
	"time"

	"clubpoints/internal/apperr"
	"clubpoints/internal/config"
	"clubpoints/internal/infrastructure/lock"
	"clubpoints/internal/metrics"
	"clubpoints/internal/model"
	"clubpoints/internal/repository"
	"clubpoints/pkg/idgen"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// ============================================================================
// 活动结算
// ============================================================================
//
// 活动钱包的资金来源：主办俱乐部拨款（BUDGET_GRANT）+ 成员报名押金（COMMIT_LOCK）。
// 活动完成后结算：
//   1. 出勤成员按 押金 × 出勤系数 × 俱乐部倍率 × 成员倍率 × 活动类型倍率 领取奖励
//   2. 剩余积分在主办与联合主办俱乐部之间平分，除不尽的部分归主办俱乐部
//   3. 停用活动钱包，活动状态 COMPLETED → SETTLED
//
// 整个结算在一个数据库事务中完成，任何一步失败全部回滚。
// 同一活动的并发结算由分布式锁 + 状态条件更新双重保证只执行一次。
//
// ============================================================================

type SettlementService struct {
	db         *gorm.DB
	log        *logrus.Logger
	cfg        config.SettlementConfig
	topic      string
	locker     lock.Locker
	tracer     trace.Tracer
	now        func() time.Time
	ledger     *LedgerService
	walletRepo *repository.WalletRepository
	eventRepo  *repository.EventRepository
	clubRepo   *repository.ClubRepository
	outboxRepo *repository.OutboxRepository
}

func NewSettlementService(db *gorm.DB, log *logrus.Logger, cfg *config.Config, ledger *LedgerService, locker lock.Locker) *SettlementService {
	return &SettlementService{
		db:         db,
		log:        log,
		cfg:        cfg.Settlement,
		topic:      cfg.Kafka.Topic.SettlementResult,
		locker:     locker,
		tracer:     otel.Tracer("clubpoints/settlement"),
		now:        time.Now,
		ledger:     ledger,
		walletRepo: repository.NewWalletRepository(db),
		eventRepo:  repository.NewEventRepository(db),
		clubRepo:   repository.NewClubRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

var (
	ErrEventWalletMissing = apperr.New(apperr.ErrInvalidState, "活动钱包未开通")
	ErrSettlementBusy     = apperr.New(apperr.ErrInvalidState, "活动正在结算中")
)

// RewardLine 单个报名的结算结果
type RewardLine struct {
	RegistrationID   int64   `json:"registration_id"`
	UserID           int64   `json:"user_id"`
	AttendanceLevel  string  `json:"attendance_level"`
	CommittedPoints  int64   `json:"committed_points"`
	MemberMultiplier float64 `json:"member_multiplier"`
	RewardPoints     int64   `json:"reward_points"`
}

type ClubShare struct {
	ClubID int64 `json:"club_id"`
	Points int64 `json:"points"`
}

// SettlementReport 结算结果，同时作为 settlement_result 消息体
type SettlementReport struct {
	EventID        int64        `json:"event_id"`
	SettlementNo   string       `json:"settlement_no"`
	HostClubID     int64        `json:"host_club_id"`
	EventType      string       `json:"event_type"`
	TypeMultiplier float64      `json:"type_multiplier"`
	ClubMultiplier float64      `json:"club_multiplier"`
	Rewards        []RewardLine `json:"rewards"`
	TotalRewarded  int64        `json:"total_rewarded"`
	Leftover       int64        `json:"leftover"`
	Shares         []ClubShare  `json:"shares"`
	SettledAt      time.Time    `json:"settled_at"`
}

// RefundReport 取消活动的退款结果
type RefundReport struct {
	EventID       int64        `json:"event_id"`
	Skipped       bool         `json:"skipped"`
	Refunds       []RewardLine `json:"refunds"`
	TotalRefunded int64        `json:"total_refunded"`
	Returned      int64        `json:"returned"`
}

type WalletSummary struct {
	WalletID  int64           `json:"wallet_id"`
	EventID   int64           `json:"event_id"`
	OwnerType model.OwnerType `json:"owner_type"`
	Balance   int64           `json:"balance"`
	Active    bool            `json:"active"`
}

// ComputeReward 奖励 = round(押金 × 出勤系数 × 各项倍率)，十进制精确计算，四舍五入（远离零）
func ComputeReward(committed, attendanceFactor int64, multipliers ...float64) int64 {
	reward := decimal.NewFromInt(committed).Mul(decimal.NewFromInt(attendanceFactor))
	for _, m := range multipliers {
		reward = reward.Mul(decimal.NewFromFloat(m))
	}
	return reward.Round(0).IntPart()
}

// SplitLeftover 把 leftover 平分给 clubIDs，余数全部给第一个（主办俱乐部）
func SplitLeftover(leftover int64, clubIDs []int64) []ClubShare {
	if leftover <= 0 || len(clubIDs) == 0 {
		return nil
	}
	n := int64(len(clubIDs))
	share, remainder := leftover/n, leftover%n
	shares := make([]ClubShare, 0, len(clubIDs))
	for i, id := range clubIDs {
		points := share
		if i == 0 {
			points += remainder
		}
		shares = append(shares, ClubShare{ClubID: id, Points: points})
	}
	return shares
}

// distributionClubs 主办俱乐部在前，联合主办按 id 升序，去重
func distributionClubs(hostClubID int64, coHosts []int64) []int64 {
	clubs := []int64{hostClubID}
	seen := map[int64]struct{}{hostClubID: {}}
	for _, id := range coHosts {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		clubs = append(clubs, id)
	}
	return clubs
}

func (s *SettlementService) attendanceFactor(level string) int64 {
	switch level {
	case model.AttendanceHalf:
		return s.cfg.HalfAttendanceFactor
	case model.AttendanceFull:
		return s.cfg.FullAttendanceFactor
	}
	return 0
}

func eventReference(eventID int64) string {
	return fmt.Sprintf("event:%d", eventID)
}

// OpenEventWallet 活动审批通过时开通活动钱包，重复调用返回已有钱包
func (s *SettlementService) OpenEventWallet(ctx context.Context, eventID int64) (*model.Wallet, error) {
	event, err := s.eventRepo.GetByID(ctx, nil, eventID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.walletRepo.GetByOwner(ctx, nil, model.OwnerTypeEvent, eventID)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, repository.ErrWalletNotFound) {
		return nil, err
	}
	if event.Status != model.EventStatusApproved {
		return nil, apperr.Newf(apperr.ErrInvalidState, "活动状态为 %s，只有审批通过的活动可以开通钱包", event.Status)
	}

	wallet, err = s.ledger.CreateWallet(ctx, model.OwnerTypeEvent, eventID)
	if errors.Is(err, apperr.ErrConflict) {
		// 并发开通，另一个请求已经创建
		return s.walletRepo.GetByOwner(ctx, nil, model.OwnerTypeEvent, eventID)
	}
	return wallet, err
}

// EnsureEventWallet 返回活动钱包，活动未开通钱包时返回 ErrInvalidState
func (s *SettlementService) EnsureEventWallet(ctx context.Context, eventID int64) (*model.Wallet, error) {
	return s.eventWallet(ctx, nil, eventID)
}

func (s *SettlementService) eventWallet(ctx context.Context, tx *gorm.DB, eventID int64) (*model.Wallet, error) {
	if _, err := s.eventRepo.GetByID(ctx, tx, eventID); err != nil {
		return nil, err
	}
	wallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeEvent, eventID)
	if errors.Is(err, repository.ErrWalletNotFound) {
		return nil, errors.Wrapf(ErrEventWalletMissing, "活动 %d", eventID)
	}
	return wallet, err
}

func (s *SettlementService) GetWalletSummary(ctx context.Context, eventID int64) (*WalletSummary, error) {
	wallet, err := s.EnsureEventWallet(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &WalletSummary{
		WalletID:  wallet.ID,
		EventID:   eventID,
		OwnerType: wallet.OwnerType,
		Balance:   wallet.Balance,
		Active:    wallet.Active,
	}, nil
}

// GrantBudget 主办俱乐部向活动钱包拨款
func (s *SettlementService) GrantBudget(ctx context.Context, eventID, points int64, reason string) (*TransferResult, error) {
	if points <= 0 {
		return nil, apperr.Newf(apperr.ErrInvalidArgument, "拨款积分必须大于0: %d", points)
	}
	var result *TransferResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := s.eventRepo.GetByID(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !model.IsCommitOpen(event.Status) {
			return apperr.Newf(apperr.ErrInvalidState, "活动状态为 %s，不能拨款", event.Status)
		}
		eventWallet, err := s.eventWallet(ctx, tx, eventID)
		if err != nil {
			return err
		}
		clubWallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeClub, event.HostClubID)
		if err != nil {
			return errors.Wrapf(err, "主办俱乐部 %d", event.HostClubID)
		}
		if reason == "" {
			reason = "活动预算拨款"
		}
		result, err = s.ledger.TransferTx(ctx, tx, &TransferRequest{
			FromWalletID: clubWallet.ID,
			ToWalletID:   eventWallet.ID,
			Amount:       points,
			Kind:         model.KindBudgetGrant,
			Reason:       reason,
			ReferenceNo:  eventReference(eventID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	RecordMoved(model.KindBudgetGrant, points)
	return result, nil
}

// LockCommit 报名押金从成员钱包转入活动钱包，报名 PENDING → CONFIRMED
// 金额取报名记录中的 CommittedPoints
func (s *SettlementService) LockCommit(ctx context.Context, registrationID int64) (*model.EventRegistration, error) {
	var reg *model.EventRegistration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = s.eventRepo.GetRegistration(ctx, tx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != model.RegistrationStatusPending {
			return apperr.Newf(apperr.ErrInvalidState, "报名 %d 状态为 %s，押金已处理", reg.ID, reg.Status)
		}
		event, err := s.eventRepo.GetByID(ctx, tx, reg.EventID)
		if err != nil {
			return err
		}
		if !model.IsCommitOpen(event.Status) {
			return apperr.Newf(apperr.ErrInvalidState, "活动状态为 %s，不能报名", event.Status)
		}
		if reg.CommittedPoints > 0 {
			eventWallet, err := s.eventWallet(ctx, tx, reg.EventID)
			if err != nil {
				return err
			}
			memberWallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeUser, reg.UserID)
			if err != nil {
				return errors.Wrapf(err, "用户 %d", reg.UserID)
			}
			if _, err := s.ledger.TransferTx(ctx, tx, &TransferRequest{
				FromWalletID: memberWallet.ID,
				ToWalletID:   eventWallet.ID,
				Amount:       reg.CommittedPoints,
				Kind:         model.KindCommitLock,
				Reason:       "报名押金",
				ReferenceNo:  eventReference(reg.EventID),
			}); err != nil {
				return err
			}
		}
		if err := s.eventRepo.TransitionRegistration(ctx, tx, reg.ID, model.RegistrationStatusPending, model.RegistrationStatusConfirmed, 0); err != nil {
			return err
		}
		reg.Status = model.RegistrationStatusConfirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	RecordMoved(model.KindCommitLock, reg.CommittedPoints)
	return reg, nil
}

// ReleaseCommit 活动完成前取消报名，退还押金，报名 → CANCELED
func (s *SettlementService) ReleaseCommit(ctx context.Context, registrationID int64) (*model.EventRegistration, error) {
	var (
		reg      *model.EventRegistration
		refunded int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = s.eventRepo.GetRegistration(ctx, tx, registrationID)
		if err != nil {
			return err
		}
		if reg.Status != model.RegistrationStatusPending && reg.Status != model.RegistrationStatusConfirmed {
			return apperr.Newf(apperr.ErrInvalidState, "报名 %d 状态为 %s，不能取消", reg.ID, reg.Status)
		}
		event, err := s.eventRepo.GetByID(ctx, tx, reg.EventID)
		if err != nil {
			return err
		}
		if !model.IsCommitOpen(event.Status) {
			return apperr.Newf(apperr.ErrInvalidState, "活动状态为 %s，不能取消报名", event.Status)
		}
		if reg.Status == model.RegistrationStatusConfirmed && reg.CommittedPoints > 0 {
			if refunded, err = s.refundCommit(ctx, tx, reg, model.KindCommitRefund, "取消报名退还押金"); err != nil {
				return err
			}
		}
		if err := s.eventRepo.TransitionRegistration(ctx, tx, reg.ID, reg.Status, model.RegistrationStatusCanceled, 0); err != nil {
			return err
		}
		reg.Status = model.RegistrationStatusCanceled
		return nil
	})
	if err != nil {
		return nil, err
	}
	if refunded > 0 {
		RecordMoved(model.KindCommitRefund, refunded)
	}
	return reg, nil
}

func (s *SettlementService) refundCommit(ctx context.Context, tx *gorm.DB, reg *model.EventRegistration, kind model.TransactionKind, reason string) (int64, error) {
	eventWallet, err := s.eventWallet(ctx, tx, reg.EventID)
	if err != nil {
		return 0, err
	}
	memberWallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeUser, reg.UserID)
	if err != nil {
		return 0, errors.Wrapf(err, "用户 %d", reg.UserID)
	}
	if _, err := s.ledger.TransferTx(ctx, tx, &TransferRequest{
		FromWalletID: eventWallet.ID,
		ToWalletID:   memberWallet.ID,
		Amount:       reg.CommittedPoints,
		Kind:         kind,
		Reason:       reason,
		ReferenceNo:  eventReference(reg.EventID),
	}); err != nil {
		return 0, err
	}
	return reg.CommittedPoints, nil
}

// Settle 结算已完成的活动，重复结算返回 ErrInvalidState
func (s *SettlementService) Settle(ctx context.Context, eventID int64) (report *SettlementReport, err error) {
	ctx, span := s.tracer.Start(ctx, "settlement.Settle", trace.WithAttributes(attribute.Int64("event.id", eventID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.Settlements.WithLabelValues(metrics.Reason(apperr.KindOf(err))).Inc()
		}
		span.End()
	}()

	logger := s.log.WithField("event_id", eventID)

	release, err := s.locker.Obtain(ctx, lock.SettleLockKey(eventID), uuid.NewString(), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, errors.Wrapf(ErrSettlementBusy, "活动 %d", eventID)
		}
		return nil, errors.Wrap(err, "获取结算锁失败")
	}
	defer func() {
		if unlockErr := release.Unlock(context.Background()); unlockErr != nil {
			logger.WithError(unlockErr).Warn("释放结算锁失败")
		}
	}()

	settledAt := s.now().UTC()
	settlementNo := idgen.GenerateSettlementNo(eventID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		report, txErr = s.settleTx(ctx, tx, eventID, settlementNo, settledAt)
		return txErr
	})
	if err != nil {
		logger.WithError(err).Error("活动结算失败，已回滚")
		return nil, err
	}

	metrics.Settlements.WithLabelValues("settled").Inc()
	metrics.SettlementRewarded.Add(float64(report.TotalRewarded))
	RecordMoved(model.KindBonusReward, report.TotalRewarded)
	RecordMoved(model.KindSurplusReturn, report.Leftover)
	span.SetAttributes(
		attribute.Int64("settlement.rewarded", report.TotalRewarded),
		attribute.Int64("settlement.leftover", report.Leftover),
	)
	logger.WithFields(logrus.Fields{
		"settlement_no": settlementNo,
		"rewarded":      report.TotalRewarded,
		"leftover":      report.Leftover,
		"rewards":       len(report.Rewards),
	}).Info("活动结算完成")
	return report, nil
}

func (s *SettlementService) settleTx(ctx context.Context, tx *gorm.DB, eventID int64, settlementNo string, settledAt time.Time) (*SettlementReport, error) {
	event, err := s.eventRepo.GetByID(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != model.EventStatusCompleted {
		return nil, apperr.Newf(apperr.ErrInvalidState, "活动 %d 状态为 %s，只有已完成的活动可以结算", eventID, event.Status)
	}
	if err := s.eventRepo.TransitionStatus(ctx, tx, eventID, model.EventStatusCompleted, model.EventStatusSettled,
		map[string]interface{}{"settled_at": settledAt}); err != nil {
		return nil, err
	}

	eventWallet, err := s.eventWallet(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	if !eventWallet.Active {
		return nil, errors.Wrapf(repository.ErrWalletInactive, "活动 %d 的钱包", eventID)
	}
	hostClub, err := s.clubRepo.GetClub(ctx, tx, event.HostClubID)
	if err != nil {
		return nil, err
	}

	report := &SettlementReport{
		EventID:        eventID,
		SettlementNo:   settlementNo,
		HostClubID:     hostClub.ID,
		EventType:      event.Type,
		TypeMultiplier: s.cfg.EventTypeMultiplier(event.Type),
		ClubMultiplier: hostClub.ClubMultiplier,
		SettledAt:      settledAt,
	}

	registrations, err := s.eventRepo.ListActiveRegistrations(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	for _, reg := range registrations {
		if reg.AttendanceLevel == model.AttendanceNone {
			continue
		}
		memberMultiplier := 1.0
		membership, err := s.clubRepo.FindMembership(ctx, tx, reg.UserID, hostClub.ID)
		if err != nil {
			return nil, err
		}
		if membership != nil {
			memberMultiplier = membership.MemberMultiplier
		}

		reward := ComputeReward(reg.CommittedPoints, s.attendanceFactor(reg.AttendanceLevel),
			hostClub.ClubMultiplier, memberMultiplier, report.TypeMultiplier)
		if reward > 0 {
			memberWallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeUser, reg.UserID)
			if err != nil {
				return nil, errors.Wrapf(err, "用户 %d", reg.UserID)
			}
			if _, err := s.ledger.TransferTx(ctx, tx, &TransferRequest{
				FromWalletID: eventWallet.ID,
				ToWalletID:   memberWallet.ID,
				Amount:       reward,
				Kind:         model.KindBonusReward,
				Reason:       "活动出勤奖励",
				ReferenceNo:  settlementNo,
			}); err != nil {
				return nil, errors.Wrapf(err, "发放报名 %d 的奖励失败", reg.ID)
			}
		}
		if err := s.eventRepo.TransitionRegistration(ctx, tx, reg.ID, reg.Status, model.RegistrationStatusRefunded, reward); err != nil {
			return nil, err
		}

		report.TotalRewarded += reward
		report.Rewards = append(report.Rewards, RewardLine{
			RegistrationID:   reg.ID,
			UserID:           reg.UserID,
			AttendanceLevel:  reg.AttendanceLevel,
			CommittedPoints:  reg.CommittedPoints,
			MemberMultiplier: memberMultiplier,
			RewardPoints:     reward,
		})
	}

	// 奖励发放后重新读取余额
	eventWallet, err = s.walletRepo.GetByID(ctx, tx, eventWallet.ID)
	if err != nil {
		return nil, err
	}
	report.Leftover = eventWallet.Balance

	coHosts, err := s.eventRepo.ListCoHostClubIDs(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}
	report.Shares = SplitLeftover(report.Leftover, distributionClubs(hostClub.ID, coHosts))
	for _, share := range report.Shares {
		if share.Points <= 0 {
			continue
		}
		clubWallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeClub, share.ClubID)
		if err != nil {
			return nil, errors.Wrapf(err, "俱乐部 %d", share.ClubID)
		}
		if _, err := s.ledger.TransferTx(ctx, tx, &TransferRequest{
			FromWalletID: eventWallet.ID,
			ToWalletID:   clubWallet.ID,
			Amount:       share.Points,
			Kind:         model.KindSurplusReturn,
			Reason:       "活动结余返还",
			ReferenceNo:  settlementNo,
		}); err != nil {
			return nil, errors.Wrapf(err, "返还俱乐部 %d 结余失败", share.ClubID)
		}
	}

	if err := s.ledger.DeactivateTx(ctx, tx, eventWallet.ID); err != nil {
		return nil, err
	}
	if err := s.outboxRepo.Enqueue(ctx, tx, s.topic, settlementNo, report); err != nil {
		return nil, err
	}
	return report, nil
}

// RefundCancelledEvent 退还已取消活动的全部押金，剩余积分返还主办俱乐部
// 活动钱包已停用时视为已退款，直接返回
func (s *SettlementService) RefundCancelledEvent(ctx context.Context, eventID int64) (*RefundReport, error) {
	logger := s.log.WithField("event_id", eventID)

	release, err := s.locker.Obtain(ctx, lock.SettleLockKey(eventID), uuid.NewString(), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return nil, errors.Wrapf(ErrSettlementBusy, "活动 %d", eventID)
		}
		return nil, errors.Wrap(err, "获取结算锁失败")
	}
	defer func() {
		if unlockErr := release.Unlock(context.Background()); unlockErr != nil {
			logger.WithError(unlockErr).Warn("释放结算锁失败")
		}
	}()

	report := &RefundReport{EventID: eventID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := s.eventRepo.GetByID(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if event.Status != model.EventStatusCancelled {
			return apperr.Newf(apperr.ErrInvalidState, "活动 %d 状态为 %s，未取消", eventID, event.Status)
		}
		eventWallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeEvent, eventID)
		if errors.Is(err, repository.ErrWalletNotFound) {
			report.Skipped = true
			return nil
		}
		if err != nil {
			return err
		}
		if !eventWallet.Active {
			report.Skipped = true
			return nil
		}

		registrations, err := s.eventRepo.ListActiveRegistrations(ctx, tx, eventID)
		if err != nil {
			return err
		}
		for _, reg := range registrations {
			if reg.Status == model.RegistrationStatusConfirmed && reg.CommittedPoints > 0 {
				if _, err := s.refundCommit(ctx, tx, reg, model.KindEventCancelRefund, "活动取消退还押金"); err != nil {
					return err
				}
				report.TotalRefunded += reg.CommittedPoints
				report.Refunds = append(report.Refunds, RewardLine{
					RegistrationID:  reg.ID,
					UserID:          reg.UserID,
					AttendanceLevel: reg.AttendanceLevel,
					CommittedPoints: reg.CommittedPoints,
					RewardPoints:    reg.CommittedPoints,
				})
			}
			if err := s.eventRepo.TransitionRegistration(ctx, tx, reg.ID, reg.Status, model.RegistrationStatusCanceled, 0); err != nil {
				return err
			}
		}

		eventWallet, err = s.walletRepo.GetByID(ctx, tx, eventWallet.ID)
		if err != nil {
			return err
		}
		if eventWallet.Balance > 0 {
			clubWallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeClub, event.HostClubID)
			if err != nil {
				return errors.Wrapf(err, "主办俱乐部 %d", event.HostClubID)
			}
			if _, err := s.ledger.TransferTx(ctx, tx, &TransferRequest{
				FromWalletID: eventWallet.ID,
				ToWalletID:   clubWallet.ID,
				Amount:       eventWallet.Balance,
				Kind:         model.KindSurplusReturn,
				Reason:       "活动取消返还预算",
				ReferenceNo:  eventReference(eventID),
			}); err != nil {
				return err
			}
			report.Returned = eventWallet.Balance
		}
		return s.ledger.DeactivateTx(ctx, tx, eventWallet.ID)
	})
	if err != nil {
		logger.WithError(err).Error("取消活动退款失败，已回滚")
		return nil, err
	}
	if !report.Skipped {
		RecordMoved(model.KindEventCancelRefund, report.TotalRefunded)
		RecordMoved(model.KindSurplusReturn, report.Returned)
		logger.WithFields(logrus.Fields{
			"refunded": report.TotalRefunded,
			"returned": report.Returned,
		}).Info("取消活动退款完成")
	}
	return report, nil
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clubpoints/internal/config"
	"clubpoints/internal/metrics"
	"clubpoints/internal/model"
	"clubpoints/internal/repository"
	"clubpoints/internal/scoring"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ActivityService 月度活跃度评分
// 从各数据源组装快照交给 scoring 引擎计算，结果按 (实体, 年, 月) 幂等写入
type ActivityService struct {
	db           *gorm.DB
	log          *logrus.Logger
	params       scoring.Params
	parallelism  int
	topic        string
	now          func() time.Time
	policies     *PolicyService
	ledger       *LedgerService
	clubRepo     *repository.ClubRepository
	eventRepo    *repository.EventRepository
	recordRepo   *repository.RecordRepository
	activityRepo *repository.ActivityRepository
	walletRepo   *repository.WalletRepository
	outboxRepo   *repository.OutboxRepository
}

func NewActivityService(db *gorm.DB, log *logrus.Logger, cfg *config.Config, policies *PolicyService, ledger *LedgerService) *ActivityService {
	parallelism := cfg.Scoring.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &ActivityService{
		db:           db,
		log:          log,
		params:       scoring.ParamsFromConfig(cfg.Scoring),
		parallelism:  parallelism,
		topic:        cfg.Kafka.Topic.ActivityResult,
		now:          time.Now,
		policies:     policies,
		ledger:       ledger,
		clubRepo:     repository.NewClubRepository(db),
		eventRepo:    repository.NewEventRepository(db),
		recordRepo:   repository.NewRecordRepository(db),
		activityRepo: repository.NewActivityRepository(db),
		walletRepo:   repository.NewWalletRepository(db),
		outboxRepo:   repository.NewOutboxRepository(db),
	}
}

// ClubActivityMessage activity_result 消息体
type ClubActivityMessage struct {
	ClubID         int64   `json:"club_id"`
	Period         string  `json:"period"`
	FinalScore     float64 `json:"final_score"`
	AwardLevel     string  `json:"award_level"`
	RewardPoints   int64   `json:"reward_points"`
	ClubMultiplier float64 `json:"club_multiplier"`
	ClubLevel      string  `json:"club_level"`
}

type BatchFailure struct {
	Entity string `json:"entity"` // member / club
	ID     int64  `json:"id"`
	Error  string `json:"error"`
}

// BatchReport 批量重算结果，单行失败不影响其他行
type BatchReport struct {
	Period        string         `json:"period"`
	Clubs         int            `json:"clubs"`
	ClubsScored   int            `json:"clubs_scored"`
	ClubsSkipped  []int64        `json:"clubs_skipped"`
	MembersScored int            `json:"members_scored"`
	Failures      []BatchFailure `json:"failures"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`

	mu sync.Mutex
}

func (r *BatchReport) fail(entity string, id int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, BatchFailure{Entity: entity, ID: id, Error: err.Error()})
}

func (r *BatchReport) add(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (s *ActivityService) memberSnapshot(ctx context.Context, m *model.Membership, period scoring.Period) (scoring.MemberSnapshot, error) {
	start, end := period.Start(), period.End()
	snap := scoring.MemberSnapshot{MembershipID: m.ID, ClubID: m.ClubID}

	var err error
	if snap.TotalSessions, err = s.recordRepo.CountSessions(ctx, m.ClubID, start, end); err != nil {
		return snap, errors.Wrap(err, "统计例会场次失败")
	}
	if snap.AttendedSessions, err = s.recordRepo.CountAttendedSessions(ctx, m.ID, m.ClubID, start, end); err != nil {
		return snap, errors.Wrap(err, "统计出勤场次失败")
	}
	if snap.StaffTaskCount, err = s.recordRepo.CountStaffTasks(ctx, m.ID, start, end); err != nil {
		return snap, errors.Wrap(err, "统计工作任务失败")
	}
	if snap.Penalties, err = s.recordRepo.ListPenaltyPoints(ctx, m.ID, start, end); err != nil {
		return snap, errors.Wrap(err, "查询处罚记录失败")
	}
	if snap.EventsAttended, err = s.eventRepo.CountAttendedEvents(ctx, m.UserID, m.ClubID, start, end); err != nil {
		return snap, errors.Wrap(err, "统计出勤活动失败")
	}
	return snap, nil
}

func (s *ActivityService) clubSnapshot(ctx context.Context, clubID int64, period scoring.Period) (scoring.ClubSnapshot, error) {
	start, end := period.Start(), period.End()
	snap := scoring.ClubSnapshot{ClubID: clubID}

	eventIDs, err := s.eventRepo.ListCompletedEventIDs(ctx, clubID, start, end)
	if err != nil {
		return snap, errors.Wrap(err, "查询已完成活动失败")
	}
	stats, err := s.eventRepo.AttendanceStats(ctx, eventIDs)
	if err != nil {
		return snap, errors.Wrap(err, "统计活动签到失败")
	}
	for _, st := range stats {
		snap.Events = append(snap.Events, scoring.EventStats{
			EventID:       st.EventID,
			Registrations: st.Registrations,
			Attended:      st.Attended,
		})
	}
	if snap.FeedbackRatings, err = s.eventRepo.ListFeedbackRatings(ctx, eventIDs); err != nil {
		return snap, errors.Wrap(err, "查询活动评价失败")
	}
	if snap.MemberFinalScores, err = s.activityRepo.ListMemberFinalScores(ctx, clubID, period.Year, period.Month); err != nil {
		return snap, errors.Wrap(err, "查询成员活跃度失败")
	}
	if snap.StaffEvaluations, err = s.recordRepo.ListStaffEvaluations(ctx, clubID, start, end); err != nil {
		return snap, errors.Wrap(err, "查询工作评价失败")
	}
	return snap, nil
}

// RecalculateForMembership 重算成员某月活跃度，所在俱乐部当月已锁定时拒绝
func (s *ActivityService) RecalculateForMembership(ctx context.Context, membershipID int64, year, month int) (row *model.MemberMonthlyActivity, err error) {
	defer func() { countRow("member", err) }()

	period, err := scoring.NewPeriod(year, month)
	if err != nil {
		return nil, err
	}
	membership, err := s.clubRepo.GetMembership(ctx, nil, membershipID)
	if err != nil {
		return nil, err
	}
	locked, err := s.activityRepo.IsClubLocked(ctx, nil, membership.ClubID, year, month)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, errors.Wrapf(repository.ErrActivityLocked, "俱乐部 %d %s", membership.ClubID, period)
	}

	set, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.memberSnapshot(ctx, membership, period)
	if err != nil {
		return nil, err
	}
	score := scoring.ScoreMember(snap, set, s.params)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureClubUnlocked(ctx, tx, membership.ClubID, period); err != nil {
			return err
		}
		if err := s.activityRepo.UpsertMember(ctx, tx, score.ToModel(period)); err != nil {
			return errors.Wrap(err, "写入成员活跃度失败")
		}
		return s.clubRepo.UpdateMembershipMultiplier(ctx, tx, membership.ID, period.Key(), score.Membership.Multiplier, score.Membership.Level)
	})
	if err != nil {
		return nil, err
	}
	return s.activityRepo.GetMember(ctx, nil, membershipID, year, month)
}

// RecalculateForClub 重算俱乐部某月活跃度，已锁定的记录保持不变
func (s *ActivityService) RecalculateForClub(ctx context.Context, clubID int64, year, month int) (row *model.ClubMonthlyActivity, err error) {
	defer func() { countRow("club", err) }()

	period, err := scoring.NewPeriod(year, month)
	if err != nil {
		return nil, err
	}
	if _, err := s.clubRepo.GetClub(ctx, nil, clubID); err != nil {
		return nil, err
	}
	if err := s.ensureClubUnlocked(ctx, nil, clubID, period); err != nil {
		return nil, err
	}

	set, err := s.policies.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.clubSnapshot(ctx, clubID, period)
	if err != nil {
		return nil, err
	}
	score := scoring.ScoreClub(snap, set, s.params)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureClubUnlocked(ctx, tx, clubID, period); err != nil {
			return err
		}
		if err := s.activityRepo.UpsertClub(ctx, tx, score.ToModel(period)); err != nil {
			return errors.Wrap(err, "写入俱乐部活跃度失败")
		}
		if err := s.clubRepo.UpdateClubMultiplier(ctx, tx, clubID, period.Key(), score.Club.Multiplier, score.Club.Level); err != nil {
			return err
		}
		return s.outboxRepo.Enqueue(ctx, tx, s.topic, fmt.Sprintf("club:%d:%s", clubID, period), &ClubActivityMessage{
			ClubID:         clubID,
			Period:         period.String(),
			FinalScore:     score.FinalScore,
			AwardLevel:     score.AwardLevel,
			RewardPoints:   score.RewardPoints,
			ClubMultiplier: score.Club.Multiplier,
			ClubLevel:      score.Club.Level,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.activityRepo.GetClub(ctx, nil, clubID, year, month)
}

func (s *ActivityService) ensureClubUnlocked(ctx context.Context, tx *gorm.DB, clubID int64, period scoring.Period) error {
	var (
		row *model.ClubMonthlyActivity
		err error
	)
	if tx == nil {
		row, err = s.activityRepo.GetClub(ctx, nil, clubID, period.Year, period.Month)
	} else {
		row, err = s.activityRepo.GetClubForUpdate(ctx, tx, clubID, period.Year, period.Month)
	}
	if errors.Is(err, repository.ErrActivityNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if row.Locked {
		return errors.Wrapf(repository.ErrActivityLocked, "俱乐部 %d %s", clubID, period)
	}
	return nil
}

// RecalculateAllForMonth 按俱乐部并行重算，每个俱乐部先算成员再算俱乐部
// 单行失败只记录在报告中，已锁定的俱乐部跳过
func (s *ActivityService) RecalculateAllForMonth(ctx context.Context, year, month int) (*BatchReport, error) {
	period, err := scoring.NewPeriod(year, month)
	if err != nil {
		return nil, err
	}
	clubIDs, err := s.clubRepo.ListActiveClubIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "查询俱乐部列表失败")
	}

	report := &BatchReport{Period: period.String(), Clubs: len(clubIDs), StartedAt: s.now().UTC()}
	logger := s.log.WithField("period", period.String())
	logger.WithField("clubs", len(clubIDs)).Info("开始月度活跃度批量重算")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, clubID := range clubIDs {
		clubID := clubID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.recalculateClubBatch(gctx, clubID, period, report, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, errors.Wrap(err, "批量重算被中断")
	}

	report.FinishedAt = s.now().UTC()
	logger.WithFields(logrus.Fields{
		"clubs_scored":   report.ClubsScored,
		"clubs_skipped":  len(report.ClubsSkipped),
		"members_scored": report.MembersScored,
		"failures":       len(report.Failures),
	}).Info("月度活跃度批量重算完成")
	return report, nil
}

func (s *ActivityService) recalculateClubBatch(ctx context.Context, clubID int64, period scoring.Period, report *BatchReport, logger *logrus.Entry) {
	logger = logger.WithField("club_id", clubID)

	locked, err := s.activityRepo.IsClubLocked(ctx, nil, clubID, period.Year, period.Month)
	if err != nil {
		logger.WithError(err).Error("查询锁定状态失败")
		report.fail("club", clubID, err)
		return
	}
	if locked {
		logger.Info("俱乐部当月已锁定，跳过")
		report.add(func() { report.ClubsSkipped = append(report.ClubsSkipped, clubID) })
		return
	}

	memberships, err := s.clubRepo.ListScorableMemberships(ctx, clubID)
	if err != nil {
		logger.WithError(err).Error("查询会员列表失败")
		report.fail("club", clubID, err)
		return
	}
	for _, m := range memberships {
		if _, err := s.RecalculateForMembership(ctx, m.ID, period.Year, period.Month); err != nil {
			logger.WithError(err).WithField("membership_id", m.ID).Error("成员活跃度重算失败")
			report.fail("member", m.ID, err)
			continue
		}
		report.add(func() { report.MembersScored++ })
	}

	if _, err := s.RecalculateForClub(ctx, clubID, period.Year, period.Month); err != nil {
		logger.WithError(err).Error("俱乐部活跃度重算失败")
		report.fail("club", clubID, err)
		return
	}
	report.add(func() { report.ClubsScored++ })
}

// Lock 锁定俱乐部某月的活跃度，锁定后不可重算
func (s *ActivityService) Lock(ctx context.Context, clubID int64, year, month int, staffID int64) (*model.ClubMonthlyActivity, error) {
	if _, err := scoring.NewPeriod(year, month); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.activityRepo.GetClubForUpdate(ctx, tx, clubID, year, month)
		if err != nil {
			return err
		}
		if row.Locked {
			return repository.ErrActivityLocked
		}
		return s.activityRepo.Lock(ctx, tx, row.ID, staffID, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"club_id":  clubID,
		"period":   fmt.Sprintf("%04d-%02d", year, month),
		"staff_id": staffID,
	}).Info("月度活跃度已锁定")
	return s.activityRepo.GetClub(ctx, nil, clubID, year, month)
}

// ApproveRewardPoints 审批并发放俱乐部月度奖励积分，只能执行一次
func (s *ActivityService) ApproveRewardPoints(ctx context.Context, clubID int64, year, month int, staffID int64) (*model.ClubMonthlyActivity, error) {
	period, err := scoring.NewPeriod(year, month)
	if err != nil {
		return nil, err
	}
	var rewarded int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.activityRepo.GetClubForUpdate(ctx, tx, clubID, year, month)
		if err != nil {
			return err
		}
		if !row.Locked {
			return repository.ErrActivityUnlocked
		}
		if row.RewardApproved {
			return repository.ErrRewardApproved
		}
		if err := s.activityRepo.MarkRewardApproved(ctx, tx, row.ID, staffID, s.now().UTC()); err != nil {
			return err
		}
		if row.RewardPoints <= 0 {
			return nil
		}
		wallet, err := s.walletRepo.GetByOwner(ctx, tx, model.OwnerTypeClub, clubID)
		if err != nil {
			return errors.Wrapf(err, "俱乐部 %d", clubID)
		}
		if _, err := s.ledger.AdjustTx(ctx, tx, &AdjustRequest{
			WalletID:    wallet.ID,
			Amount:      row.RewardPoints,
			Kind:        model.KindClubActivityReward,
			Reason:      fmt.Sprintf("%s 月度活跃度奖励（%s）", period, row.AwardLevel),
			ReferenceNo: fmt.Sprintf("activity:club:%d:%s", clubID, period),
		}); err != nil {
			return err
		}
		rewarded = row.RewardPoints
		return nil
	})
	if err != nil {
		return nil, err
	}
	RecordMoved(model.KindClubActivityReward, rewarded)
	s.log.WithFields(logrus.Fields{
		"club_id":  clubID,
		"period":   period.String(),
		"staff_id": staffID,
		"points":   rewarded,
	}).Info("月度奖励积分已发放")
	return s.activityRepo.GetClub(ctx, nil, clubID, year, month)
}

func (s *ActivityService) GetMemberActivity(ctx context.Context, membershipID int64, year, month int) (*model.MemberMonthlyActivity, error) {
	if _, err := scoring.NewPeriod(year, month); err != nil {
		return nil, err
	}
	return s.activityRepo.GetMember(ctx, nil, membershipID, year, month)
}

func (s *ActivityService) GetClubActivity(ctx context.Context, clubID int64, year, month int) (*model.ClubMonthlyActivity, error) {
	if _, err := scoring.NewPeriod(year, month); err != nil {
		return nil, err
	}
	return s.activityRepo.GetClub(ctx, nil, clubID, year, month)
}

// ListClubActivities 当月全部俱乐部的活跃度，按总分降序
func (s *ActivityService) ListClubActivities(ctx context.Context, year, month int) ([]*model.ClubMonthlyActivity, error) {
	if _, err := scoring.NewPeriod(year, month); err != nil {
		return nil, err
	}
	return s.activityRepo.ListClubs(ctx, year, month)
}

func countRow(entity string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.ScoringRows.WithLabelValues(entity, result).Inc()
}

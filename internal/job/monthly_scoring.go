package job

import (
	"context"
	"time"

	"clubpoints/internal/config"
	"clubpoints/internal/infrastructure/lock"
	"clubpoints/internal/scoring"
	"clubpoints/internal/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MonthlyRecalculator 月度批量重算，由 ActivityService 实现
type MonthlyRecalculator interface {
	RecalculateAllForMonth(ctx context.Context, year, month int) (*service.BatchReport, error)
}

// MonthlyScoringJob 每月初对上一个自然月做一次批量评分
// 多实例部署时用分布式锁保证同一月份只有一个实例在跑
type MonthlyScoringJob struct {
	activity MonthlyRecalculator
	locker   lock.Locker
	log      *logrus.Logger
	stopCh   chan struct{}
	interval time.Duration
	lockTTL  time.Duration
	now      func() time.Time
	done     map[string]bool
}

func NewMonthlyScoringJob(activity MonthlyRecalculator, locker lock.Locker, log *logrus.Logger, cfg *config.Config) *MonthlyScoringJob {
	return &MonthlyScoringJob{
		activity: activity,
		locker:   locker,
		log:      log,
		stopCh:   make(chan struct{}),
		interval: cfg.Jobs.ScoringInterval,
		lockTTL:  cfg.Scoring.LockTTL,
		now:      time.Now,
		done:     make(map[string]bool),
	}
}

func (j *MonthlyScoringJob) Start(ctx context.Context) {
	j.log.Info("[MonthlyScoringJob] 月度评分任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("[MonthlyScoringJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("[MonthlyScoringJob] 任务停止")
			return
		case <-ticker.C:
			if _, err := j.runOnce(ctx); err != nil {
				j.log.WithError(err).Warn("[MonthlyScoringJob] 本轮未完成")
			}
		}
	}
}

func (j *MonthlyScoringJob) Stop() {
	close(j.stopCh)
}

// runOnce 上个月已跑过时返回 nil, nil
func (j *MonthlyScoringJob) runOnce(ctx context.Context) (*service.BatchReport, error) {
	period := scoring.PreviousPeriod(j.now().UTC())
	if j.done[period.String()] {
		return nil, nil
	}

	release, err := j.locker.Obtain(ctx, lock.ScoringLockKey(period.String()), uuid.NewString(), j.lockTTL)
	if err != nil {
		return nil, errors.Wrapf(err, "月份 %s", period)
	}
	defer func() {
		if err := release.Unlock(context.Background()); err != nil {
			j.log.WithError(err).Warn("[MonthlyScoringJob] 释放锁失败")
		}
	}()

	report, err := j.activity.RecalculateAllForMonth(ctx, period.Year, period.Month)
	if err != nil {
		return report, err
	}
	j.done[period.String()] = true
	j.log.WithFields(logrus.Fields{
		"period":         report.Period,
		"clubs_scored":   report.ClubsScored,
		"members_scored": report.MembersScored,
		"failures":       len(report.Failures),
	}).Info("[MonthlyScoringJob] 月度评分完成")
	return report, nil
}

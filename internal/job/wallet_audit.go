package job

import (
	"context"
	"time"

	"clubpoints/internal/config"
	"clubpoints/internal/metrics"
	"clubpoints/internal/repository"
	"clubpoints/internal/service"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WalletAuditJob 定期对账：钱包缓存余额必须等于流水累加值
// 默认只告警，开启 audit_repair 后以流水为准修正余额
type WalletAuditJob struct {
	walletRepo *repository.WalletRepository
	ledger     *service.LedgerService
	log        *logrus.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	repair     bool
}

// AuditReport 一轮对账的结果
type AuditReport struct {
	Checked  int
	Drifted  []int64
	Repaired int
}

func NewWalletAuditJob(db *gorm.DB, ledger *service.LedgerService, log *logrus.Logger, cfg config.JobsConfig) *WalletAuditJob {
	return &WalletAuditJob{
		walletRepo: repository.NewWalletRepository(db),
		ledger:     ledger,
		log:        log,
		stopCh:     make(chan struct{}),
		interval:   cfg.AuditInterval,
		batchSize:  cfg.AuditBatchSize,
		repair:     cfg.AuditRepair,
	}
}

func (j *WalletAuditJob) Start(ctx context.Context) {
	j.log.Info("[WalletAuditJob] 钱包对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("[WalletAuditJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("[WalletAuditJob] 任务停止")
			return
		case <-ticker.C:
			j.audit(ctx)
		}
	}
}

func (j *WalletAuditJob) Stop() {
	close(j.stopCh)
}

func (j *WalletAuditJob) audit(ctx context.Context) *AuditReport {
	report := &AuditReport{}
	var afterID int64
	for {
		wallets, err := j.walletRepo.ListAfterID(ctx, afterID, j.batchSize)
		if err != nil {
			j.log.WithError(err).Error("[WalletAuditJob] 查询钱包失败")
			return report
		}
		if len(wallets) == 0 {
			break
		}
		for _, w := range wallets {
			afterID = w.ID
			j.check(ctx, w.ID, report)
		}
	}

	j.log.WithFields(logrus.Fields{
		"checked":  report.Checked,
		"drifted":  len(report.Drifted),
		"repaired": report.Repaired,
	}).Info("[WalletAuditJob] 本轮对账完成")
	return report
}

func (j *WalletAuditJob) check(ctx context.Context, walletID int64, report *AuditReport) {
	result, err := j.ledger.Reconcile(ctx, walletID)
	if err != nil {
		j.log.WithError(err).WithField("wallet_id", walletID).Error("[WalletAuditJob] 对账失败")
		return
	}
	report.Checked++
	if result.Consistent() {
		return
	}

	metrics.WalletDrift.Inc()
	report.Drifted = append(report.Drifted, walletID)
	j.log.WithFields(logrus.Fields{
		"wallet_id": walletID,
		"cached":    result.Cached,
		"computed":  result.Computed,
		"drift":     result.Drift,
	}).Error("[WalletAuditJob] 钱包余额与流水不一致")

	if !j.repair {
		return
	}
	if _, err := j.ledger.RepairBalance(ctx, walletID); err != nil {
		j.log.WithError(err).WithField("wallet_id", walletID).Error("[WalletAuditJob] 修正余额失败")
		return
	}
	report.Repaired++
}

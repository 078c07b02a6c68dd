// Package metrics 汇总积分系统的 Prometheus 指标，通过 /metrics 暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PointsMoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clubpoints",
		Subsystem: "ledger",
		Name:      "points_moved_total",
		Help:      "按流水类型统计的积分流转总量",
	}, []string{"kind"})

	LedgerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clubpoints",
		Subsystem: "ledger",
		Name:      "failures_total",
		Help:      "转账、调整失败次数，按错误分类",
	}, []string{"reason"})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clubpoints",
		Name:      "settlements_total",
		Help:      "活动结算次数",
	}, []string{"result"})

	SettlementRewarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clubpoints",
		Name:      "settlement_rewarded_points_total",
		Help:      "结算发放的出勤奖励积分总量",
	})

	ScoringRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clubpoints",
		Subsystem: "scoring",
		Name:      "rows_total",
		Help:      "月度评分处理的行数",
	}, []string{"entity", "result"})

	WalletDrift = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clubpoints",
		Subsystem: "audit",
		Name:      "wallet_drift_total",
		Help:      "对账发现缓存余额与流水不一致的钱包数",
	})

	OutboxMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clubpoints",
		Subsystem: "outbox",
		Name:      "messages_total",
		Help:      "outbox 消息投递结果",
	}, []string{"result"})
)

// Reason 把错误归类成低基数的标签值
func Reason(kind error) string {
	if kind == nil {
		return "internal"
	}
	return kind.Error()
}

package job

import (
	"context"
	"time"

	"clubpoints/internal/config"
	"clubpoints/internal/infrastructure/mq"
	"clubpoints/internal/metrics"
	"clubpoints/internal/model"
	"clubpoints/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox 表，把结算、评分结果投递到 Kafka
// 投递是至少一次：发送成功但标记失败时下一轮会重发，消费方按 key 去重
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	log        *logrus.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, log *logrus.Logger, cfg config.JobsConfig) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		log:        log,
		stopCh:     make(chan struct{}),
		interval:   cfg.OutboxInterval,
		batchSize:  cfg.OutboxBatchSize,
		maxRetry:   cfg.MaxRetryCount,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 处理一批待发送消息，返回发送成功的条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("[OutboxSender] 查询消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	logger := s.log.WithFields(logrus.Fields{
		"id":    msg.ID,
		"topic": msg.Topic,
		"key":   msg.MessageKey,
	})

	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.OutboxMessages.WithLabelValues("sent").Inc()
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			logger.WithError(updateErr).Error("[OutboxSender] 更新消息状态失败")
		} else {
			logger.Debug("[OutboxSender] 消息发送成功")
		}
		return true
	}

	logger = logger.WithError(err).WithField("retry_count", msg.RetryCount+1)
	if msg.RetryCount+1 >= s.maxRetry {
		metrics.OutboxMessages.WithLabelValues("failed").Inc()
		if markErr := s.outboxRepo.MarkAsFailed(ctx, msg.ID); markErr != nil {
			logger.WithField("mark_error", markErr.Error()).Error("[OutboxSender] 标记消息失败状态失败")
		} else {
			logger.Error("[OutboxSender] 消息超过最大重试次数，标记为失败")
		}
		return false
	}

	metrics.OutboxMessages.WithLabelValues("retry").Inc()
	logger.Warn("[OutboxSender] 消息发送失败，等待重试")
	if incErr := s.outboxRepo.IncrementRetryCount(ctx, msg.ID); incErr != nil {
		logger.WithField("inc_error", incErr.Error()).Error("[OutboxSender] 增加重试次数失败")
	}
	return false
}

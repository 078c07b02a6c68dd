package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubpoints/internal/config"
	"clubpoints/internal/handler"
	"clubpoints/internal/infrastructure/cache"
	"clubpoints/internal/infrastructure/database"
	"clubpoints/internal/infrastructure/lock"
	"clubpoints/internal/infrastructure/mq"
	"clubpoints/internal/infrastructure/tracing"
	"clubpoints/internal/job"
	"clubpoints/internal/logger"
	"clubpoints/internal/repository"
	"clubpoints/internal/service"
	"clubpoints/pkg/idgen"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	nodeID := flag.Int64("node", 1, "流水号生成器节点号")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("加载配置失败")
	}
	log := logger.New(cfg.Log.Level)

	if err := idgen.Init(*nodeID); err != nil {
		log.WithError(err).Fatal("初始化流水号生成器失败")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		log.WithError(err).Fatal("初始化链路追踪失败")
	}

	db, err := database.InitMySQL(&cfg.MySQL, log)
	if err != nil {
		log.WithError(err).Fatal("初始化 MySQL 失败")
	}

	redisClient, err := cache.InitRedis(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Fatal("初始化 Redis 失败")
	}
	defer redisClient.Close()

	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		log.WithError(err).Fatal("初始化 Kafka 失败")
	}
	defer publisher.Close()

	locker := lock.NewRedisLocker(redisClient)
	ledger := service.NewLedgerService(db, log)
	policies := service.NewPolicyService(db, log, cfg.Policy)
	settlement := service.NewSettlementService(db, log, cfg, ledger, locker)
	activity := service.NewActivityService(db, log, cfg, policies, ledger)
	records := service.NewRecordService(db, log)

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, log, cfg.Jobs)
	go outboxSender.Start(ctx)

	scoringJob := job.NewMonthlyScoringJob(activity, locker, log, cfg)
	go scoringJob.Start(ctx)

	auditJob := job.NewWalletAuditJob(db, ledger, log, cfg.Jobs)
	go auditJob.Start(ctx)

	h := handler.NewHandler(ledger, settlement, policies, activity, records, repository.NewOutboxRepository(db))
	router := handler.SetupRouter(h, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("服务启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("服务启动失败")
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("服务关闭异常")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("链路追踪关闭异常")
	}

	log.Info("服务已关闭")
}

package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, log *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(log))
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		wallets := api.Group("/wallets")
		{
			wallets.POST("", h.CreateWallet)
			wallets.GET("", h.GetWalletByOwner)
			wallets.GET("/:id", h.GetWallet)
			wallets.GET("/:id/transactions", h.ListTransactions)
			wallets.GET("/:id/reconcile", h.Reconcile)
		}
		api.POST("/transfers", h.Transfer)
		api.POST("/adjustments", h.Adjust)

		events := api.Group("/events/:id")
		{
			events.POST("/wallet", h.OpenEventWallet)
			events.GET("/wallet", h.GetEventWallet)
			events.POST("/budget", h.GrantBudget)
			events.POST("/settle", h.Settle)
			events.POST("/refund", h.RefundCancelledEvent)
		}

		registrations := api.Group("/registrations/:id")
		{
			registrations.POST("/commit", h.LockCommit)
			registrations.POST("/release", h.ReleaseCommit)
		}

		policies := api.Group("/policies")
		{
			policies.GET("", h.ListPolicies)
			policies.POST("", h.CreatePolicy)
			policies.GET("/resolve", h.ResolvePolicy)
			policies.PUT("/:id", h.UpdatePolicy)
			policies.POST("/:id/deactivate", h.DeactivatePolicy)
		}

		activity := api.Group("/activity")
		{
			activity.POST("/recalculate", h.RecalculateAll)
			activity.GET("/members/:id", h.GetMemberActivity)
			activity.POST("/members/:id/recalculate", h.RecalculateMember)
			activity.GET("/clubs", h.ListClubActivities)
			activity.GET("/clubs/:id", h.GetClubActivity)
			activity.POST("/clubs/:id/recalculate", h.RecalculateClub)
			activity.POST("/clubs/:id/lock", h.LockClubActivity)
			activity.POST("/clubs/:id/approve", h.ApproveRewardPoints)
		}

		records := api.Group("/records")
		{
			records.POST("/penalties", h.RecordPenalty)
			records.POST("/staff-performance", h.RecordStaffPerformance)
		}

		api.POST("/outbox/requeue", h.RequeueOutbox)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

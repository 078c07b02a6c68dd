package handler

import (
	"context"
	"strconv"

	"clubpoints/internal/model"
	"clubpoints/internal/service"
	"clubpoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// OutboxRequeuer 失败消息重新投递
type OutboxRequeuer interface {
	RequeueFailed(ctx context.Context, limit int) (int64, error)
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledger     *service.LedgerService
	settlement *service.SettlementService
	policies   *service.PolicyService
	activity   *service.ActivityService
	records    *service.RecordService
	outbox     OutboxRequeuer
}

func NewHandler(
	ledger *service.LedgerService,
	settlement *service.SettlementService,
	policies *service.PolicyService,
	activity *service.ActivityService,
	records *service.RecordService,
	outbox OutboxRequeuer,
) *Handler {
	return &Handler{
		ledger:     ledger,
		settlement: settlement,
		policies:   policies,
		activity:   activity,
		records:    records,
		outbox:     outbox,
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "id 参数错误")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return v, true
}

// ============================================================
// 钱包
// ============================================================

type CreateWalletRequest struct {
	OwnerType model.OwnerType `json:"owner_type" binding:"required"`
	OwnerID   int64           `json:"owner_id" binding:"required"`
}

// CreateWallet 开户
// POST /api/v1/wallets
func (h *Handler) CreateWallet(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	wallet, err := h.ledger.CreateWallet(c.Request.Context(), req.OwnerType, req.OwnerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, wallet)
}

// GetWalletByOwner GET /api/v1/wallets?owner_type=USER&owner_id=1
func (h *Handler) GetWalletByOwner(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Query("owner_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "owner_id 参数错误")
		return
	}
	wallet, err := h.ledger.GetWalletByOwner(c.Request.Context(), model.OwnerType(c.Query("owner_type")), ownerID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, wallet)
}

func (h *Handler) GetWallet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	wallet, err := h.ledger.GetWallet(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, wallet)
}

// ListTransactions 流水分页，按时间倒序
// GET /api/v1/wallets/:id/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := queryInt(c, "page_size", 20)
	if !ok {
		return
	}
	list, total, err := h.ledger.ListTransactions(c.Request.Context(), id, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *Handler) Reconcile(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.ledger.Reconcile(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"wallet_id":  result.WalletID,
		"cached":     result.Cached,
		"computed":   result.Computed,
		"drift":      result.Drift,
		"consistent": result.Consistent(),
	})
}

// Transfer POST /api/v1/transfers
func (h *Handler) Transfer(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.ledger.Transfer(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// Adjust 管理员调整，正数发放负数扣减
// POST /api/v1/adjustments
func (h *Handler) Adjust(c *gin.Context) {
	var req service.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	trans, err := h.ledger.Adjust(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, trans)
}

// ============================================================
// 活动结算
// ============================================================

func (h *Handler) OpenEventWallet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	wallet, err := h.settlement.OpenEventWallet(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, wallet)
}

func (h *Handler) GetEventWallet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	summary, err := h.settlement.GetWalletSummary(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, summary)
}

type GrantBudgetRequest struct {
	Points int64  `json:"points" binding:"required,gt=0"`
	Reason string `json:"reason"`
}

// GrantBudget 主办俱乐部向活动钱包拨款
// POST /api/v1/events/:id/budget
func (h *Handler) GrantBudget(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req GrantBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	result, err := h.settlement.GrantBudget(c.Request.Context(), id, req.Points, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// Settle 结算已完成的活动，重复结算返回 InvalidState
// POST /api/v1/events/:id/settle
func (h *Handler) Settle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	report, err := h.settlement.Settle(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *Handler) RefundCancelledEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	report, err := h.settlement.RefundCancelledEvent(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, report)
}

// LockCommit 报名押金转入活动钱包
// POST /api/v1/registrations/:id/commit
func (h *Handler) LockCommit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reg, err := h.settlement.LockCommit(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, reg)
}

func (h *Handler) ReleaseCommit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reg, err := h.settlement.ReleaseCommit(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, reg)
}

type RequeueRequest struct {
	Limit int `json:"limit" binding:"omitempty,gt=0,lte=1000"`
}

// RequeueOutbox 把失败的 outbox 消息重新置为待发送
// POST /api/v1/outbox/requeue
func (h *Handler) RequeueOutbox(c *gin.Context) {
	var req RequeueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.Limit == 0 {
		req.Limit = 100
	}
	n, err := h.outbox.RequeueFailed(c.Request.Context(), req.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}

package handler

import (
	"strconv"

	"clubpoints/internal/model"
	"clubpoints/internal/service"
	"clubpoints/pkg/response"

	"github.com/gin-gonic/gin"
)

// ============================================================
// 倍率策略
// ============================================================

// ListPolicies GET /api/v1/policies?target_type=MEMBER&activity_type=EVENT_PARTICIPATION&active_only=true
func (h *Handler) ListPolicies(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"
	list, err := h.policies.List(c.Request.Context(), model.TargetType(c.Query("target_type")), c.Query("activity_type"), activeOnly)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

func (h *Handler) CreatePolicy(c *gin.Context) {
	var req service.CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	p, err := h.policies.Create(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

func (h *Handler) UpdatePolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	p, err := h.policies.Update(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

type OperatorRequest struct {
	OperatorID int64 `json:"operator_id" binding:"required"`
}

func (h *Handler) DeactivatePolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req OperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	p, err := h.policies.Deactivate(c.Request.Context(), id, req.OperatorID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

// ResolvePolicy 查询指标值命中的倍率，未命中返回默认 1.0
// GET /api/v1/policies/resolve?target_type=CLUB&activity_type=CLUB_EVENTS&metric=3
func (h *Handler) ResolvePolicy(c *gin.Context) {
	metric, err := strconv.ParseFloat(c.Query("metric"), 64)
	if err != nil {
		response.ParamError(c, "metric 参数错误")
		return
	}
	res, err := h.policies.Resolve(c.Request.Context(), model.TargetType(c.Query("target_type")), c.Query("activity_type"), metric)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, res)
}

// ============================================================
// 月度活跃度
// ============================================================

type PeriodRequest struct {
	Year  int `json:"year" form:"year" binding:"required"`
	Month int `json:"month" form:"month" binding:"required,min=1,max=12"`
}

type StaffPeriodRequest struct {
	PeriodRequest
	StaffID int64 `json:"staff_id" binding:"required"`
}

// RecalculateAll 重算全部俱乐部某月活跃度，单行失败记录在报告中
// POST /api/v1/activity/recalculate
func (h *Handler) RecalculateAll(c *gin.Context) {
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	report, err := h.activity.RecalculateAllForMonth(c.Request.Context(), req.Year, req.Month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *Handler) RecalculateMember(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	row, err := h.activity.RecalculateForMembership(c.Request.Context(), id, req.Year, req.Month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, row)
}

// GetMemberActivity GET /api/v1/activity/members/:id?year=2026&month=3
func (h *Handler) GetMemberActivity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req PeriodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	row, err := h.activity.GetMemberActivity(c.Request.Context(), id, req.Year, req.Month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, row)
}

func (h *Handler) RecalculateClub(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	row, err := h.activity.RecalculateForClub(c.Request.Context(), id, req.Year, req.Month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, row)
}

func (h *Handler) GetClubActivity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req PeriodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	row, err := h.activity.GetClubActivity(c.Request.Context(), id, req.Year, req.Month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, row)
}

// ListClubActivities 当月排行
// GET /api/v1/activity/clubs?year=2026&month=3
func (h *Handler) ListClubActivities(c *gin.Context) {
	var req PeriodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	list, err := h.activity.ListClubActivities(c.Request.Context(), req.Year, req.Month)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, list)
}

// LockClubActivity 锁定后不可再重算
// POST /api/v1/activity/clubs/:id/lock
func (h *Handler) LockClubActivity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req StaffPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	row, err := h.activity.Lock(c.Request.Context(), id, req.Year, req.Month, req.StaffID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, row)
}

func (h *Handler) ApproveRewardPoints(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req StaffPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	row, err := h.activity.ApproveRewardPoints(c.Request.Context(), id, req.Year, req.Month, req.StaffID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, row)
}

// ============================================================
// 处罚与工作评价
// ============================================================

func (h *Handler) RecordPenalty(c *gin.Context) {
	var req service.PenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	penalty, err := h.records.RecordPenalty(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, penalty)
}

func (h *Handler) RecordStaffPerformance(c *gin.Context) {
	var req service.StaffPerformanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	perf, err := h.records.RecordStaffPerformance(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, perf)
}

// Package approvals 提供审批请求流转接口
package approvals

import (
	"errors"

	"hros/api/handlers/common"
	"hros/internal/approval"
	"hros/internal/auth"

	"github.com/gin-gonic/gin"
)

// ApprovalHandler 审批请求流转 Handler
type ApprovalHandler struct {
	manager *approval.Manager
}

// NewApprovalHandler 创建 ApprovalHandler 实例
func NewApprovalHandler(manager *approval.Manager) *ApprovalHandler {
	return &ApprovalHandler{manager: manager}
}

// SubmitAction 提交审批动作
// @Summary 提交审批动作
// @Description 以当前登录人身份对请求投票：批准、拒绝、委托或上报
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审批请求ID"
// @Param request body ActionRequest true "审批动作"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.ErrorResponse
// @Failure 409 {object} common.ErrorResponse
// @Router /api/v1/approvals/{id}/actions [post]
func (h *ApprovalHandler) SubmitAction(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	err := h.manager.SubmitAction(c.Request.Context(), approval.ActionInput{
		RequestID:  c.Param("id"),
		ActorID:    userCtx.UserID,
		Decision:   approval.ActionKind(req.Decision),
		Comments:   req.Comments,
		DelegateTo: req.DelegateTo,
	})
	if err != nil {
		h.respondActionError(c, err)
		return
	}

	common.Success(c, gin.H{"submitted": true})
}

// respondActionError 将引擎错误映射到 HTTP 语义
func (h *ApprovalHandler) respondActionError(c *gin.Context, err error) {
	var validation *approval.ValidationError
	if errors.As(err, &validation) {
		common.BadRequest(c, validation.Error())
		return
	}
	var stale *approval.StaleActionError
	if errors.As(err, &stale) {
		common.Conflict(c, stale.Error())
		return
	}
	var notFound *approval.NotFoundError
	if errors.As(err, &notFound) {
		common.NotFound(c, "审批请求不存在")
		return
	}
	common.ServerError(c, "提交审批动作失败: "+err.Error())
}

// Cancel 取消审批请求
// @Summary 取消审批请求
// @Description 强制终结 pending 请求，已终结的请求返回冲突
// @Tags Approvals
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "审批请求ID"
// @Param request body CancelRequest true "取消原因"
// @Success 200 {object} common.APIResponse
// @Failure 409 {object} common.ErrorResponse
// @Router /api/v1/approvals/{id}/cancel [post]
func (h *ApprovalHandler) Cancel(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	err := h.manager.Cancel(c.Request.Context(), c.Param("id"), userCtx.UserID, req.Reason)
	if err != nil {
		h.respondActionError(c, err)
		return
	}

	common.Success(c, gin.H{"cancelled": true})
}

// GetRequestDetails 获取审批请求详情
// @Summary 获取审批请求详情
// @Description 返回请求、快照步骤与全部审批动作账本
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Param id path string true "审批请求ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.ErrorResponse
// @Router /api/v1/approvals/{id} [get]
func (h *ApprovalHandler) GetRequestDetails(c *gin.Context) {
	details, err := h.manager.GetRequestDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		var notFound *approval.NotFoundError
		if errors.As(err, &notFound) {
			common.NotFound(c, "审批请求不存在")
			return
		}
		common.ServerError(c, "查询审批请求失败: "+err.Error())
		return
	}

	common.Success(c, details)
}

// ListPending 查询我的待办审批
// @Summary 查询我的待办审批
// @Description 返回当前登录人持有待处理投票的全部请求
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/v1/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	requests, err := h.manager.ListPendingForApprover(c.Request.Context(), userCtx.UserID)
	if err != nil {
		common.ServerError(c, "查询待办审批失败: "+err.Error())
		return
	}

	common.Success(c, gin.H{"requests": requests, "total": len(requests)})
}

// CanApprove 查询当前登录人能否审批指定请求
// @Summary 查询能否审批
// @Description 判断当前登录人在请求的当前步骤是否持有待处理投票
// @Tags Approvals
// @Security BearerAuth
// @Produce json
// @Param id path string true "审批请求ID"
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/v1/approvals/{id}/can-approve [get]
func (h *ApprovalHandler) CanApprove(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	can, err := h.manager.CanApprove(c.Request.Context(), c.Param("id"), userCtx.UserID)
	if err != nil {
		common.ServerError(c, "查询失败: "+err.Error())
		return
	}

	common.Success(c, gin.H{"can_approve": can})
}

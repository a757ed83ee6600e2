// Package workflows 提供工作流定义管理接口
package workflows

import (
	"errors"

	"hros/api/handlers/common"
	"hros/internal/approval"
	"hros/internal/auth"

	"github.com/gin-gonic/gin"
)

// WorkflowHandler 工作流定义管理 Handler
type WorkflowHandler struct {
	manager *approval.Manager
}

// NewWorkflowHandler 创建 WorkflowHandler 实例
func NewWorkflowHandler(manager *approval.Manager) *WorkflowHandler {
	return &WorkflowHandler{manager: manager}
}

// GetCurrentWorkflow 获取页面当前生效的工作流
// @Summary 获取页面当前生效的工作流
// @Description 返回指定业务页面当前版本的完整定义，未配置时返回 404
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param page_id path string true "页面标识"
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/v1/workflows/pages/{page_id}/current [get]
func (h *WorkflowHandler) GetCurrentWorkflow(c *gin.Context) {
	pageID := c.Param("page_id")

	def, err := h.manager.GetCurrentWorkflow(c.Request.Context(), pageID)
	if err != nil {
		var notFound *approval.NotFoundError
		if errors.As(err, &notFound) {
			common.NotFound(c, "页面尚未配置工作流")
			return
		}
		common.ServerError(c, "查询当前工作流失败: "+err.Error())
		return
	}

	common.Success(c, def)
}

// EnsureWorkflow 确保页面存在可用工作流
// @Summary 确保页面存在可用工作流
// @Description 页面未配置时创建默认的单步直属上级审批流，已配置时幂等返回当前版本
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param page_id path string true "页面标识"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.ErrorResponse
// @Router /api/v1/workflows/pages/{page_id}/ensure [post]
func (h *WorkflowHandler) EnsureWorkflow(c *gin.Context) {
	workflowID, err := h.manager.EnsureCurrentWorkflow(c.Request.Context(), c.Param("page_id"))
	if err != nil {
		var validation *approval.ValidationError
		if errors.As(err, &validation) {
			common.BadRequest(c, validation.Error())
			return
		}
		common.ServerError(c, "初始化工作流失败: "+err.Error())
		return
	}

	common.Success(c, gin.H{"workflow_id": workflowID})
}

// ListWorkflows 查询页面的工作流版本列表
// @Summary 查询页面的工作流版本列表
// @Description 返回指定页面的全部历史版本，含已停用版本
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param page_id path string true "页面标识"
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/v1/workflows/pages/{page_id}/versions [get]
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	pageID := c.Param("page_id")

	defs, err := h.manager.ListWorkflows(c.Request.Context(), pageID)
	if err != nil {
		common.ServerError(c, "查询工作流版本失败: "+err.Error())
		return
	}

	common.Success(c, gin.H{"workflows": defs, "total": len(defs)})
}

// GetWorkflow 获取工作流详情
// @Summary 获取工作流详情
// @Description 按 ID 返回工作流定义与步骤
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param id path string true "工作流ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.ErrorResponse
// @Router /api/v1/workflows/{id} [get]
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	def, err := h.manager.GetWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		var notFound *approval.NotFoundError
		if errors.As(err, &notFound) {
			common.NotFound(c, "工作流不存在")
			return
		}
		common.ServerError(c, "查询工作流失败: "+err.Error())
		return
	}

	common.Success(c, def)
}

// SaveWorkflow 保存工作流定义
// @Summary 保存工作流定义
// @Description 新建或更新工作流；被在途请求引用的定义会自动创建新版本，旧版本停用但保留
// @Tags Workflows
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SaveWorkflowRequest true "工作流定义"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.ErrorResponse
// @Router /api/v1/workflows [post]
func (h *WorkflowHandler) SaveWorkflow(c *gin.Context) {
	var req SaveWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	def := &approval.WorkflowDefinition{
		ID:           req.ID,
		PageID:       req.PageID,
		Name:         req.Name,
		Description:  req.Description,
		WorkflowType: approval.WorkflowType(req.WorkflowType),
	}
	if userCtx, ok := auth.GetUserContext(c); ok {
		def.CreatedBy = userCtx.UserID
	}
	for _, s := range req.Steps {
		def.Steps = append(def.Steps, approval.WorkflowStep{
			StepOrder:             s.StepOrder,
			StepName:              s.StepName,
			ApproverType:          approval.ApproverType(s.ApproverType),
			ApproverIDs:           s.ApproverIDs,
			RequiredApprovals:     s.RequiredApprovals,
			AutoApproveAfterHours: s.AutoApproveAfterHours,
			EscalationAfterHours:  s.EscalationAfterHours,
			EscalationTo:          s.EscalationTo,
			Conditions:            s.Conditions,
		})
	}

	workflowID, err := h.manager.SaveWorkflow(c.Request.Context(), def)
	if err != nil {
		var validation *approval.ValidationError
		if errors.As(err, &validation) {
			common.BadRequest(c, validation.Error())
			return
		}
		common.ServerError(c, "保存工作流失败: "+err.Error())
		return
	}

	common.Success(c, gin.H{"workflow_id": workflowID})
}

// DeleteWorkflow 删除工作流
// @Summary 删除工作流
// @Description 停用工作流；存在在途审批请求时拒绝删除
// @Tags Workflows
// @Security BearerAuth
// @Produce json
// @Param id path string true "工作流ID"
// @Success 200 {object} common.APIResponse
// @Failure 409 {object} common.ErrorResponse
// @Router /api/v1/workflows/{id} [delete]
func (h *WorkflowHandler) DeleteWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	err := h.manager.DeleteWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		var inUse *approval.WorkflowInUseError
		if errors.As(err, &inUse) {
			common.Conflict(c, inUse.Error())
			return
		}
		var notFound *approval.NotFoundError
		if errors.As(err, &notFound) {
			common.NotFound(c, "工作流不存在")
			return
		}
		common.ServerError(c, "删除工作流失败: "+err.Error())
		return
	}

	common.Success(c, gin.H{"deleted": true})
}

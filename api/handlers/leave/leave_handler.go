// Package leave 提供请假申请接口
package leave

import (
	"strconv"
	"time"

	"hros/api/handlers/common"
	"hros/internal/auth"
	leavesvc "hros/internal/leave"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// LeaveHandler 请假申请 Handler
type LeaveHandler struct {
	service *leavesvc.Service
}

// NewLeaveHandler 创建 LeaveHandler 实例
func NewLeaveHandler(service *leavesvc.Service) *LeaveHandler {
	return &LeaveHandler{service: service}
}

// CreateLeave 创建请假单
// @Summary 创建请假单
// @Description 以当前登录人身份创建请假单并发起审批
// @Tags Leave
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateLeaveRequest true "请假信息"
// @Success 201 {object} common.APIResponse
// @Failure 400 {object} common.ErrorResponse
// @Router /api/v1/leave [post]
func (h *LeaveHandler) CreateLeave(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	var req CreateLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		common.BadRequest(c, "开始日期格式错误，应为 YYYY-MM-DD")
		return
	}
	endDate, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		common.BadRequest(c, "结束日期格式错误，应为 YYYY-MM-DD")
		return
	}

	leaveReq, err := h.service.Create(c.Request.Context(), leavesvc.CreateInput{
		EmployeeID: userCtx.UserID,
		Type:       leavesvc.LeaveType(req.Type),
		StartDate:  startDate,
		EndDate:    endDate,
		Days:       req.Days,
		Reason:     req.Reason,
		Priority:   req.Priority,
	})
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}

	common.Created(c, leaveReq)
}

// GetLeave 查询请假单详情
// @Summary 查询请假单详情
// @Tags Leave
// @Security BearerAuth
// @Produce json
// @Param id path string true "请假单ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.ErrorResponse
// @Router /api/v1/leave/{id} [get]
func (h *LeaveHandler) GetLeave(c *gin.Context) {
	req, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.NotFound(c, err.Error())
		return
	}

	common.Success(c, req)
}

// ListMyLeave 查询我的请假单
// @Summary 查询我的请假单
// @Tags Leave
// @Security BearerAuth
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/v1/leave [get]
func (h *LeaveHandler) ListMyLeave(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	page, pageSize := common.ParsePagination(c)
	requests, total, err := h.service.ListRequests(c.Request.Context(), userCtx.UserID, page, pageSize)
	if err != nil {
		common.ServerError(c, "查询请假单失败: "+err.Error())
		return
	}

	common.List(c, requests, page, pageSize, total)
}

// GetBalance 查询假期余额
// @Summary 查询假期余额
// @Description 返回当前登录人指定假期类型的年度余额
// @Tags Leave
// @Security BearerAuth
// @Produce json
// @Param type query string true "假期类型"
// @Param year query int false "年度，默认当前年"
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/v1/leave/balance [get]
func (h *LeaveHandler) GetBalance(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	leaveType := leavesvc.LeaveType(c.DefaultQuery("type", string(leavesvc.LeaveAnnual)))
	year, _ := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(time.Now().Year())))

	balance, err := h.service.GetBalance(c.Request.Context(), userCtx.UserID, leaveType, year)
	if err != nil {
		common.ServerError(c, "查询假期余额失败: "+err.Error())
		return
	}

	common.Success(c, gin.H{
		"balance":   balance,
		"remaining": balance.Remaining(),
	})
}

// SetBalance 设置假期额度（HR 管理员）
// @Summary 设置假期额度
// @Description 设置指定员工的年度假期额度
// @Tags Leave
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SetBalanceRequest true "额度信息"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.ErrorResponse
// @Router /api/v1/leave/balance [put]
func (h *LeaveHandler) SetBalance(c *gin.Context) {
	var req SetBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	err := h.service.SetBalance(c.Request.Context(), req.EmployeeID, leavesvc.LeaveType(req.Type), req.Year, req.Total)
	if err != nil {
		common.ServerError(c, "设置假期额度失败: "+err.Error())
		return
	}

	common.Success(c, gin.H{"updated": true})
}

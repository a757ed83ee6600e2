// Package travel 提供差旅申请接口
package travel

import (
	"time"

	"hros/api/handlers/common"
	"hros/internal/auth"
	travelsvc "hros/internal/travel"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// TravelHandler 差旅申请 Handler
type TravelHandler struct {
	service *travelsvc.Service
}

// NewTravelHandler 创建 TravelHandler 实例
func NewTravelHandler(service *travelsvc.Service) *TravelHandler {
	return &TravelHandler{service: service}
}

// CreateTravel 创建差旅单
// @Summary 创建差旅单
// @Description 以当前登录人身份创建差旅单并发起审批，预估费用参与条件路由
// @Tags Travel
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateTravelRequest true "差旅信息"
// @Success 201 {object} common.APIResponse
// @Failure 400 {object} common.ErrorResponse
// @Router /api/v1/travel [post]
func (h *TravelHandler) CreateTravel(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	var req CreateTravelRequest
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

	travelReq, err := h.service.Create(c.Request.Context(), travelsvc.CreateInput{
		EmployeeID:    userCtx.UserID,
		Destination:   req.Destination,
		Purpose:       req.Purpose,
		StartDate:     startDate,
		EndDate:       endDate,
		EstimatedCost: req.EstimatedCost,
		Priority:      req.Priority,
	})
	if err != nil {
		common.BadRequest(c, err.Error())
		return
	}

	common.Created(c, travelReq)
}

// GetTravel 查询差旅单详情
// @Summary 查询差旅单详情
// @Tags Travel
// @Security BearerAuth
// @Produce json
// @Param id path string true "差旅单ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.ErrorResponse
// @Router /api/v1/travel/{id} [get]
func (h *TravelHandler) GetTravel(c *gin.Context) {
	req, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.NotFound(c, err.Error())
		return
	}

	common.Success(c, req)
}

// ListMyTravel 查询我的差旅单
// @Summary 查询我的差旅单
// @Tags Travel
// @Security BearerAuth
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/v1/travel [get]
func (h *TravelHandler) ListMyTravel(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.BadRequest(c, "缺少用户上下文")
		return
	}

	page, pageSize := common.ParsePagination(c)
	requests, total, err := h.service.ListRequests(c.Request.Context(), userCtx.UserID, page, pageSize)
	if err != nil {
		common.ServerError(c, "查询差旅单失败: "+err.Error())
		return
	}

	common.List(c, requests, page, pageSize, total)
}

// Package employees 提供员工目录接口
package employees

import (
	"hros/api/handlers/common"
	"hros/internal/org"

	"github.com/gin-gonic/gin"
)

// EmployeeHandler 员工目录 Handler
type EmployeeHandler struct {
	directory *org.Directory
}

// NewEmployeeHandler 创建 EmployeeHandler 实例
func NewEmployeeHandler(directory *org.Directory) *EmployeeHandler {
	return &EmployeeHandler{directory: directory}
}

// ListEmployees 查询员工列表
// @Summary 查询员工列表
// @Tags Employees
// @Security BearerAuth
// @Produce json
// @Param department query string false "部门过滤"
// @Param status query string false "状态过滤"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} common.APIResponse
// @Failure 500 {object} common.ErrorResponse
// @Router /api/v1/employees [get]
func (h *EmployeeHandler) ListEmployees(c *gin.Context) {
	page, pageSize := common.ParsePagination(c)
	department := c.Query("department")
	status := org.EmployeeStatus(c.Query("status"))

	employees, total, err := h.directory.ListEmployees(c.Request.Context(), department, status, page, pageSize)
	if err != nil {
		common.ServerError(c, "查询员工列表失败: "+err.Error())
		return
	}

	common.List(c, employees, page, pageSize, total)
}

// GetEmployee 查询员工详情
// @Summary 查询员工详情
// @Tags Employees
// @Security BearerAuth
// @Produce json
// @Param id path string true "员工ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.ErrorResponse
// @Router /api/v1/employees/{id} [get]
func (h *EmployeeHandler) GetEmployee(c *gin.Context) {
	emp, err := h.directory.GetEmployee(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.NotFound(c, err.Error())
		return
	}

	common.Success(c, emp)
}

// SaveEmployee 保存员工档案（HR 管理员）
// @Summary 保存员工档案
// @Description 新建或更新员工档案，含汇报关系
// @Tags Employees
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SaveEmployeeRequest true "员工档案"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.ErrorResponse
// @Router /api/v1/employees [put]
func (h *EmployeeHandler) SaveEmployee(c *gin.Context) {
	var req SaveEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	emp := &org.Employee{
		ID:         req.ID,
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		Title:      req.Title,
		ManagerID:  req.ManagerID,
		Status:     org.EmployeeStatus(req.Status),
	}
	if err := h.directory.SaveEmployee(c.Request.Context(), emp); err != nil {
		common.BadRequest(c, err.Error())
		return
	}

	common.Success(c, emp)
}

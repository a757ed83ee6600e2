package api

import (
	approvalHandlers "hros/api/handlers/approvals"
	"hros/api/handlers/common"
	employeeHandlers "hros/api/handlers/employees"
	leaveHandlers "hros/api/handlers/leave"
	travelHandlers "hros/api/handlers/travel"
	workflowHandlers "hros/api/handlers/workflows"
	"hros/internal/auth"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer) {
	workflowHandler := workflowHandlers.NewWorkflowHandler(container.ApprovalManager)
	approvalHandler := approvalHandlers.NewApprovalHandler(container.ApprovalManager)
	leaveHandler := leaveHandlers.NewLeaveHandler(container.LeaveService)
	travelHandler := travelHandlers.NewTravelHandler(container.TravelService)
	employeeHandler := employeeHandlers.NewEmployeeHandler(container.Directory)

	// 路由注册器，方便同时挂载 /api 与 /api/v1
	registerAPIRoutes := func(apiGroup *gin.RouterGroup) {
		// 注销当前令牌（令牌签发在身份网关侧，这里只负责吊销）
		apiGroup.POST("/auth/logout", logoutHandler(container.JWTService))

		// 工作流定义管理（版本查询对全员开放，修改仅限 HR 管理员）
		workflowsGroup := apiGroup.Group("/workflows")
		{
			workflowsGroup.GET("/pages/:page_id/current", workflowHandler.GetCurrentWorkflow)
			workflowsGroup.GET("/pages/:page_id/versions", workflowHandler.ListWorkflows)
			workflowsGroup.GET("/:id", workflowHandler.GetWorkflow)

			adminOnly := workflowsGroup.Group("")
			adminOnly.Use(auth.RequireRole(auth.RoleHRAdmin))
			{
				adminOnly.POST("", workflowHandler.SaveWorkflow)
				adminOnly.POST("/pages/:page_id/ensure", workflowHandler.EnsureWorkflow)
				adminOnly.DELETE("/:id", workflowHandler.DeleteWorkflow)
			}
		}

		// 审批请求操作
		approvalsGroup := apiGroup.Group("/approvals")
		{
			approvalsGroup.GET("/pending", approvalHandler.ListPending)
			approvalsGroup.GET("/:id", approvalHandler.GetRequestDetails)
			approvalsGroup.GET("/:id/can-approve", approvalHandler.CanApprove)
			approvalsGroup.POST("/:id/actions", approvalHandler.SubmitAction)
			approvalsGroup.POST("/:id/cancel", approvalHandler.Cancel)
		}

		// 请假页面
		leaveGroup := apiGroup.Group("/leave")
		{
			leaveGroup.GET("/balance", leaveHandler.GetBalance)
			leaveGroup.PUT("/balance", auth.RequireRole(auth.RoleHRAdmin), leaveHandler.SetBalance)
			leaveGroup.POST("", leaveHandler.CreateLeave)
			leaveGroup.GET("", leaveHandler.ListMyLeave)
			leaveGroup.GET("/:id", leaveHandler.GetLeave)
		}

		// 差旅页面
		travelGroup := apiGroup.Group("/travel")
		{
			travelGroup.POST("", travelHandler.CreateTravel)
			travelGroup.GET("", travelHandler.ListMyTravel)
			travelGroup.GET("/:id", travelHandler.GetTravel)
		}

		// 员工目录
		employeesGroup := apiGroup.Group("/employees")
		{
			employeesGroup.GET("", employeeHandler.ListEmployees)
			employeesGroup.GET("/:id", employeeHandler.GetEmployee)
			employeesGroup.PUT("", auth.RequireRole(auth.RoleHRAdmin), employeeHandler.SaveEmployee)
		}
	}

	// 主 API 组（向后兼容）
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(container.JWTService))
	registerAPIRoutes(api)

	// 版本化 API 组
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(container.JWTService))
	registerAPIRoutes(apiV1)
}

func logoutHandler(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractTokenFromBearer(c.GetHeader("Authorization"))
		if err := jwtService.InvalidateToken(c.Request.Context(), token); err != nil {
			common.ServerError(c, "注销令牌失败")
			return
		}
		common.Success(c, gin.H{"revoked": true})
	}
}

package workflows

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hros/internal/approval"
	"hros/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T) (*gin.Engine, *approval.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, approval.AutoMigrate(db))

	mgr := approval.NewManager(db)
	handler := NewWorkflowHandler(mgr)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(string(auth.UserContextKey), &auth.UserContext{
			UserID: "admin-1",
			Roles:  []string{auth.RoleHRAdmin},
		})
	})
	group := router.Group("/api/v1/workflows")
	{
		group.GET("/pages/:page_id/current", handler.GetCurrentWorkflow)
		group.GET("/pages/:page_id/versions", handler.ListWorkflows)
		group.GET("/:id", handler.GetWorkflow)
		group.POST("", handler.SaveWorkflow)
		group.POST("/pages/:page_id/ensure", handler.EnsureWorkflow)
		group.DELETE("/:id", handler.DeleteWorkflow)
	}
	return router, mgr
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSaveAndGetWorkflowHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/workflows", SaveWorkflowRequest{
		PageID:       "leave_request",
		Name:         "请假审批",
		WorkflowType: "sequential",
		Steps: []SaveStepRequest{
			{StepOrder: 1, StepName: "上级审批", ApproverType: "manager", RequiredApprovals: 1},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			WorkflowID string `json:"workflow_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Data.WorkflowID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/workflows/"+resp.Data.WorkflowID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/workflows/pages/leave_request/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "请假审批")

	w = doJSON(t, router, http.MethodGet, "/api/v1/workflows/pages/leave_request/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestSaveWorkflowValidationHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	// binding 层拦截：缺少步骤
	w := doJSON(t, router, http.MethodPost, "/api/v1/workflows", SaveWorkflowRequest{
		PageID:       "leave_request",
		Name:         "空流程",
		WorkflowType: "sequential",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 引擎层拦截：user 类型步骤没有审批人
	w = doJSON(t, router, http.MethodPost, "/api/v1/workflows", SaveWorkflowRequest{
		PageID:       "leave_request",
		Name:         "坏流程",
		WorkflowType: "sequential",
		Steps: []SaveStepRequest{
			{StepOrder: 1, StepName: "无人审批", ApproverType: "user", RequiredApprovals: 1},
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "审批人")
}

func TestEnsureWorkflowIdempotentHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	// 未配置页面先返回 404
	w := doJSON(t, router, http.MethodGet, "/api/v1/workflows/pages/leave_request/current", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/workflows/pages/leave_request/ensure", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := w.Body.String()

	// 重复调用返回同一工作流
	w = doJSON(t, router, http.MethodPost, "/api/v1/workflows/pages/leave_request/ensure", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v1/workflows/pages/leave_request/current", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetWorkflowNotFoundHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/workflows/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteWorkflowConflictHTTP(t *testing.T) {
	router, mgr := newTestRouter(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	workflowID, err := mgr.SaveWorkflow(ctx, &approval.WorkflowDefinition{
		PageID:       "travel_request",
		Name:         "差旅审批",
		WorkflowType: approval.WorkflowSequential,
		Steps: []approval.WorkflowStep{
			{StepOrder: 1, StepName: "上级审批", ApproverType: approval.ApproverUser, ApproverIDs: []string{"mgr-1"}, RequiredApprovals: 1},
		},
	})
	require.NoError(t, err)

	// 在途请求阻止删除
	_, err = mgr.Instantiate(ctx, approval.InstantiateInput{
		PageID:      "travel_request",
		RequesterID: "emp-1",
		EntityID:    "biz-1",
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodDelete, "/api/v1/workflows/"+workflowID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

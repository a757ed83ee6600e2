package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, handler gin.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	handler(c)
	return w
}

func TestSuccessEnvelope(t *testing.T) {
	w := record(t, func(c *gin.Context) {
		Success(c, gin.H{"key": "value"})
	}, "/")

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]interface{}{"key": "value"}, resp.Data)
}

func TestErrorEnvelopes(t *testing.T) {
	cases := []struct {
		name    string
		handler gin.HandlerFunc
		status  int
	}{
		{"参数错误", func(c *gin.Context) { BadRequest(c, "参数错误") }, http.StatusBadRequest},
		{"不存在", func(c *gin.Context) { NotFound(c, "资源不存在") }, http.StatusNotFound},
		{"冲突", func(c *gin.Context) { Conflict(c, "状态冲突") }, http.StatusConflict},
		{"内部错误", func(c *gin.Context) { ServerError(c, "内部错误") }, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := record(t, tc.handler, "/")
			require.Equal(t, tc.status, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestListComputesTotalPage(t *testing.T) {
	w := record(t, func(c *gin.Context) {
		List(c, []string{"a", "b"}, 1, 20, 45)
	}, "/")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool         `json:"success"`
		Data    ListResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(45), resp.Data.Pagination.Total)
	assert.Equal(t, 3, resp.Data.Pagination.TotalPage)
}

func TestParsePagination(t *testing.T) {
	t.Run("默认值", func(t *testing.T) {
		record(t, func(c *gin.Context) {
			page, pageSize := ParsePagination(c)
			assert.Equal(t, 1, page)
			assert.Equal(t, 20, pageSize)
		}, "/")
	})

	t.Run("显式参数", func(t *testing.T) {
		record(t, func(c *gin.Context) {
			page, pageSize := ParsePagination(c)
			assert.Equal(t, 3, page)
			assert.Equal(t, 50, pageSize)
		}, "/?page=3&page_size=50")
	})

	t.Run("越界回落", func(t *testing.T) {
		record(t, func(c *gin.Context) {
			page, pageSize := ParsePagination(c)
			assert.Equal(t, 1, page)
			assert.Equal(t, 20, pageSize)
		}, "/?page=-1&page_size=9999")
	})
}

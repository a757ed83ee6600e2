package common

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ParsePagination 解析分页查询参数，越界时回落到默认值
func ParsePagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// Success 返回 200 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// Created 返回 201 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// BadRequest 返回 400 参数错误响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Message: message})
}

// NotFound 返回 404 资源不存在响应
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Success: false, Message: message})
}

// Conflict 返回 409 冲突响应
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, ErrorResponse{Success: false, Message: message})
}

// ServerError 返回 500 内部错误响应
func ServerError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Success: false, Message: message})
}

// List 返回分页列表响应
func List(c *gin.Context, items interface{}, page, pageSize int, total int64) {
	totalPage := 0
	if pageSize > 0 {
		totalPage = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: ListResponse{
			Items: items,
			Pagination: PaginationMeta{
				Page:      page,
				PageSize:  pageSize,
				Total:     total,
				TotalPage: totalPage,
			},
		},
	})
}

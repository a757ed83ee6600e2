package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hros/internal/logger"
)

// HeaderRequestID 请求 ID 头，上游网关传入则沿用
const HeaderRequestID = "X-Request-ID"

const requestIDKey = "request_id"

// RequestIDMiddleware 为每个请求分配唯一 ID
// ID 同时写入响应头和日志上下文，审批链路的排障以它为准。
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(requestIDKey, requestID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), requestID))
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}

// RequestIDFromGin 取当前请求的 ID，中间件未挂载时返回空串
func RequestIDFromGin(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

package api

import (
	"net/http"
	"strings"
	"time"

	"hros/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 请求访问日志中间件
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.WithContext(c.Request.Context()).Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

var (
	defaultCORSHeaders = []string{
		"Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization",
		"Accept", "Origin", "Cache-Control", "X-Requested-With",
	}
	defaultCORSMethods = []string{"POST", "OPTIONS", "GET", "PUT", "DELETE", "PATCH"}
)

// CORS 跨域中间件
// 允许的来源通过 CORS_ALLOW_ORIGINS 环境变量配置，未配置时放开全部。
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()

		allowedOrigins := getEnvList("CORS_ALLOW_ORIGINS")
		if len(allowedOrigins) == 0 {
			h.Set("Access-Control-Allow-Origin", "*")
		} else if origin := c.GetHeader("Origin"); origin != "" && stringInSlice(origin, allowedOrigins) {
			h.Set("Access-Control-Allow-Origin", origin)
		}

		headers := defaultIfEmpty(getEnvList("CORS_ALLOW_HEADERS"), defaultCORSHeaders)
		methods := defaultIfEmpty(getEnvList("CORS_ALLOW_METHODS"), defaultCORSMethods)

		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
		h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

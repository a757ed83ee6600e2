package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// PrometheusMiddleware 记录 HTTP 请求的 QPS、延迟和报文大小
// 标签里的路径取路由模板（如 /api/approvals/:id），避免按请求 ID 撑爆基数。
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		requestSize := c.Request.ContentLength

		c.Next()

		path := c.FullPath()
		if path == "" {
			// 未命中任何路由（404），按实际路径记录
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		APIRequestsTotal.WithLabelValues(method, path, status).Inc()
		APIRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if requestSize > 0 {
			APIRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
		}
		if respSize := c.Writer.Size(); respSize >= 0 {
			APIResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
		}
	}
}

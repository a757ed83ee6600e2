package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "突发容量内的第 %d 次请求应放行", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// 不同调用方互不影响
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	router := gin.New()
	router.Use(RateLimitMiddleware(rl))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.1:12345"
		router.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusOK, do().Code)
	resp := do()
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Contains(t, resp.Body.String(), "请求过于频繁")
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFromGin(c))
	})

	// 未传入时生成新 ID
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	generated := w.Header().Get(HeaderRequestID)
	require.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	// 上游传入时原样沿用
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "gw-abc-123")
	router.ServeHTTP(w, req)
	assert.Equal(t, "gw-abc-123", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "gw-abc-123", w.Body.String())
}

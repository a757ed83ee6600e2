package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewJWTService("test-secret", "hros", nil)

	token, err := svc.IssueToken("emp-1", []string{RoleEmployee, RoleHRAdmin}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", claims.UserID)
	assert.Equal(t, []string{RoleEmployee, RoleHRAdmin}, claims.Roles)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "hros", claims.Issuer)
}

func TestValidateTokenRejectsBadInput(t *testing.T) {
	svc := NewJWTService("test-secret", "hros", nil)

	_, err := svc.ValidateToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)

	// 其他密钥签发的令牌验签失败
	other := NewJWTService("other-secret", "hros", nil)
	token, err := other.IssueToken("emp-1", nil, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), token)
	assert.Error(t, err)

	// 已过期的令牌
	expired, err := svc.IssueToken("emp-1", nil, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(context.Background(), expired)
	assert.Error(t, err)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc.def.ghi", ExtractTokenFromBearer("Bearer abc.def.ghi"))
	assert.Equal(t, "abc.def.ghi", ExtractTokenFromBearer("abc.def.ghi"))
	assert.Equal(t, "", ExtractTokenFromBearer(""))
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewJWTService("test-secret", "hros", nil)

	router := gin.New()
	router.Use(AuthMiddleware(svc))
	router.GET("/whoami", func(c *gin.Context) {
		userCtx, ok := GetUserContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, userCtx.UserID)
	})

	do := func(authorization string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		router.ServeHTTP(w, req)
		return w
	}

	// 无令牌
	assert.Equal(t, http.StatusUnauthorized, do("").Code)

	// 无效令牌
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)

	// 有效令牌
	token, err := svc.IssueToken("emp-42", []string{RoleEmployee}, time.Hour)
	require.NoError(t, err)
	resp := do("Bearer " + token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "emp-42", resp.Body.String())
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewJWTService("test-secret", "hros", nil)

	router := gin.New()
	router.Use(AuthMiddleware(svc))
	router.GET("/admin", RequireRole(RoleHRAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	employeeToken, err := svc.IssueToken("emp-1", []string{RoleEmployee}, time.Hour)
	require.NoError(t, err)
	adminToken, err := svc.IssueToken("hr-1", []string{RoleHRAdmin}, time.Hour)
	require.NoError(t, err)

	do := func(token string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, do(employeeToken))
	assert.Equal(t, http.StatusOK, do(adminToken))
}

// Package auth 提供 JWT 令牌校验、注销与 Gin 认证中间件
// 令牌由统一身份网关用共享密钥签发，本服务只做验签和黑名单检查。
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const (
	// TokenTypeAccess 访问令牌类型
	TokenTypeAccess = "access"

	defaultAccessTTL  = 2 * time.Hour
	blacklistKeyFormat = "blacklist:token:%s"
)

// TokenClaims JWT 声明
type TokenClaims struct {
	UserID    string   `json:"uid"`
	Roles     []string `json:"roles"`      // employee / hr_admin
	TokenType string   `json:"token_type"` // access 或 refresh
	jwt.RegisteredClaims
}

// JWTService JWT 令牌服务
// redisClient 为 nil 时黑名单功能退化为空操作。
type JWTService struct {
	secretKey   []byte
	issuer      string
	redisClient redis.UniversalClient
}

// NewJWTService 创建 JWT 服务
func NewJWTService(secretKey, issuer string, redisClient redis.UniversalClient) *JWTService {
	return &JWTService{
		secretKey:   []byte(secretKey),
		issuer:      issuer,
		redisClient: redisClient,
	}
}

// IssueToken 用共享密钥签发访问令牌
// 生产流量的令牌来自身份网关，这里主要供联调和测试使用。
func (s *JWTService) IssueToken(userID string, roles []string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = defaultAccessTTL
	}
	now := time.Now()
	claims := &TokenClaims{
		UserID:    userID,
		Roles:     roles,
		TokenType: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("签名令牌失败: %w", err)
	}
	return signed, nil
}

// ValidateToken 验签并解析令牌，黑名单中的令牌视为无效
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	if s.isBlacklisted(ctx, tokenString) {
		return nil, fmt.Errorf("令牌已失效")
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("无效的签名算法: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("解析令牌失败: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("无效的令牌")
	}
	return claims, nil
}

// InvalidateToken 把令牌加入黑名单直到其自然过期
// 未接入 Redis 时注销不可用，静默成功。
func (s *JWTService) InvalidateToken(ctx context.Context, tokenString string) error {
	if s.redisClient == nil {
		return nil
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &TokenClaims{})
	if err != nil {
		return fmt.Errorf("解析令牌失败: %w", err)
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || claims.ExpiresAt == nil {
		return fmt.Errorf("无效的令牌声明")
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}

	key := fmt.Sprintf(blacklistKeyFormat, tokenString)
	if err := s.redisClient.Set(ctx, key, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("加入黑名单失败: %w", err)
	}
	return nil
}

// isBlacklisted Redis 故障时 fail-open，避免认证面整体不可用
func (s *JWTService) isBlacklisted(ctx context.Context, tokenString string) bool {
	if s.redisClient == nil {
		return false
	}
	exists, err := s.redisClient.Exists(ctx, fmt.Sprintf(blacklistKeyFormat, tokenString)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

// ExtractTokenFromBearer 剥离 Bearer 前缀，无前缀时原样返回
func ExtractTokenFromBearer(bearerToken string) string {
	if rest, ok := strings.CutPrefix(bearerToken, "Bearer "); ok {
		return rest
	}
	return bearerToken
}

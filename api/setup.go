package api

import (
	"fmt"
	"os"
	"strings"

	"hros/internal/config"
	"hros/internal/infra"
	"hros/internal/logger"
	"hros/internal/metrics"
	middlewarepkg "hros/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupRouter 设置并返回 Gin 路由和应用容器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *AppContainer, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()

	// 统一归一化 Redis 配置，优先使用 cfg.Redis，再回退到环境变量
	redisCfg := normalizeRedisConfig(cfg.Redis)
	cfg.Redis = redisCfg

	// 初始化 Redis 客户端（定义缓存、令牌黑名单）
	redisClient, err := infra.InitRedis(&redisCfg)
	if err != nil {
		logger.Warn("Redis 不可用，定义缓存与令牌黑名单将退化为直连数据库", zap.Error(err))
		redisClient = nil
	}

	// JWT 密钥：生产模式必须显式配置，防止使用弱默认值
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
		if strings.EqualFold(cfg.Server.Mode, "release") || strings.EqualFold(appEnv, "prod") || strings.EqualFold(appEnv, "production") {
			logger.Fatal("auth.jwt_secret 未配置，生产环境禁止使用默认密钥")
		}
		cfg.Auth.JWTSecret = "default_jwt_secret_key_change_in_production"
		logger.Warn("auth.jwt_secret 未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}

	container, err := NewAppContainer(cfg, db, redisClient)
	if err != nil {
		return nil, nil, fmt.Errorf("装配应用容器失败: %w", err)
	}

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 限流中间件
	rateLimiter := middlewarepkg.NewRateLimiter(10, 20)
	router.Use(middlewarepkg.RateLimitMiddleware(rateLimiter))

	// 公开端点（不需要认证）
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 业务路由
	RegisterRoutes(router, container)

	return router, container, nil
}

// Package cache 提供当前工作流定义的 Redis 缓存
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hros/internal/approval"
	"hros/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const definitionKeyPrefix = "hros:workflow:current:"

// DefinitionCache Redis 实现的工作流定义缓存
// 缓存未命中或 Redis 故障时调用方回退到数据库读取
type DefinitionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDefinitionCache 创建定义缓存，ttl<=0 时使用默认 5 分钟
func NewDefinitionCache(client *redis.Client, ttl time.Duration) *DefinitionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DefinitionCache{
		client: client,
		ttl:    ttl,
	}
}

// GetDefinition 读取页面当前生效的工作流定义
func (c *DefinitionCache) GetDefinition(ctx context.Context, pageID string) (*approval.WorkflowDefinition, bool) {
	data, err := c.client.Get(ctx, definitionKey(pageID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("读取定义缓存失败", zap.String("pageID", pageID), zap.Error(err))
		}
		return nil, false
	}

	var def approval.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		// 反序列化失败视为缓存损坏，删除后回源
		logger.Warn("定义缓存反序列化失败", zap.String("pageID", pageID), zap.Error(err))
		c.client.Del(ctx, definitionKey(pageID))
		return nil, false
	}
	return &def, true
}

// SetDefinition 写入页面当前生效的工作流定义
func (c *DefinitionCache) SetDefinition(ctx context.Context, pageID string, def *approval.WorkflowDefinition) {
	data, err := json.Marshal(def)
	if err != nil {
		logger.Warn("定义缓存序列化失败", zap.String("pageID", pageID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, definitionKey(pageID), data, c.ttl).Err(); err != nil {
		logger.Warn("写入定义缓存失败", zap.String("pageID", pageID), zap.Error(err))
	}
}

// InvalidateDefinition 在定义变更后清除缓存
func (c *DefinitionCache) InvalidateDefinition(ctx context.Context, pageID string) {
	if err := c.client.Del(ctx, definitionKey(pageID)).Err(); err != nil {
		logger.Warn("清除定义缓存失败", zap.String("pageID", pageID), zap.Error(err))
	}
}

func definitionKey(pageID string) string {
	return fmt.Sprintf("%s%s", definitionKeyPrefix, pageID)
}

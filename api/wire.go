package api

import (
	"context"
	"fmt"
	"time"

	"hros/internal/approval"
	"hros/internal/auth"
	"hros/internal/cache"
	"hros/internal/config"
	"hros/internal/infra/queue"
	"hros/internal/leave"
	"hros/internal/logger"
	"hros/internal/notification"
	"hros/internal/org"
	"hros/internal/travel"
	"hros/internal/worker"
	"hros/internal/worker/tasks"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用容器，集中管理所有服务依赖
type AppContainer struct {
	// 基础设施
	DB          *gorm.DB
	Config      *config.Config
	RedisClient *redis.Client
	QueueClient queue.Client

	// 认证相关
	JWTService *auth.JWTService

	// 核心服务
	ApprovalManager *approval.Manager
	Directory       *org.Directory
	LeaveService    *leave.Service
	TravelService   *travel.Service

	// 通知与后台任务
	Notifier     *notification.MultiNotifier
	WorkerServer *worker.Server

	dispatcherCancel func()
}

// NewAppContainer 构建应用容器，完成全部服务装配
func NewAppContainer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*AppContainer, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("配置和数据库连接不能为空")
	}

	log := logger.Get()

	// 员工目录：审批引擎的上级解析与通知收件人解析都由它提供
	directory := org.NewDirectory(db, log)

	// 工作流定义缓存（Redis 不可用时引擎直接回源数据库）
	var defCache approval.DefinitionCache
	if redisClient != nil {
		ttl := time.Duration(cfg.Approval.CacheTTLSeconds) * time.Second
		defCache = cache.NewDefinitionCache(redisClient, ttl)
	}

	eventBus := approval.NewEventBus(&approval.EventBusConfig{BufferSize: 64})

	manager := approval.NewManager(db,
		approval.WithDirectory(directory),
		approval.WithDefinitionCache(defCache),
		approval.WithEventBus(eventBus),
		approval.WithManagerLogger(log),
	)

	// 业务页面服务
	leaveService := leave.NewService(db, manager, log)
	travelService := travel.NewService(db, manager, log)

	// 任务队列与通知
	queueClient := queue.NewClient(cfg.Redis)
	notifier := notification.NewMultiNotifier(cfg.Notification)

	workerServer := worker.NewServer(
		cfg.Redis,
		cfg.Approval.WorkerConcurrency,
		manager,
		notifier,
		directory,
		log,
	)

	// 接口参数不能直接传可能为 nil 的具体指针，否则内部的 nil 判断失效
	var jwtRedis redis.UniversalClient
	if redisClient != nil {
		jwtRedis = redisClient
	}

	container := &AppContainer{
		DB:              db,
		Config:          cfg,
		RedisClient:     redisClient,
		QueueClient:     queueClient,
		JWTService:      auth.NewJWTService(cfg.Auth.JWTSecret, "hros", jwtRedis),
		ApprovalManager: manager,
		Directory:       directory,
		LeaveService:    leaveService,
		TravelService:   travelService,
		Notifier:        notifier,
		WorkerServer:    workerServer,
	}

	return container, nil
}

// StartEventDispatcher 启动审批事件分发循环
// 订阅引擎全量事件流：投递通知任务，并将终态回写到业务页面
func (c *AppContainer) StartEventDispatcher(ctx context.Context) {
	events, unsubscribe := c.ApprovalManager.SubscribeAll()
	if events == nil {
		return
	}
	c.dispatcherCancel = unsubscribe

	go func() {
		log := logger.Get()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				c.dispatchEvent(ctx, evt, log)
			}
		}
	}()
}

// dispatchEvent 处理单个审批事件
func (c *AppContainer) dispatchEvent(ctx context.Context, evt approval.Event, log *zap.Logger) {
	// 业务回写先于通知，保证收到通知时页面状态已一致
	if err := c.LeaveService.HandleApprovalEvent(ctx, evt); err != nil {
		log.Error("请假单状态回写失败",
			zap.String("requestNo", evt.RequestNo),
			zap.Error(err),
		)
	}
	if err := c.TravelService.HandleApprovalEvent(ctx, evt); err != nil {
		log.Error("差旅单状态回写失败",
			zap.String("requestNo", evt.RequestNo),
			zap.Error(err),
		)
	}

	err := c.QueueClient.EnqueueDispatchNotification(tasks.DispatchNotificationPayload{
		RequestID: evt.RequestID,
		RequestNo: evt.RequestNo,
		PageID:    evt.PageID,
		EntityID:  evt.EntityID,
		Status:    string(evt.Status),
		StepName:  evt.StepName,
		ActorID:   evt.ActorID,
		Comment:   evt.Comment,
	})
	if err != nil {
		log.Warn("通知任务入队失败",
			zap.String("requestNo", evt.RequestNo),
			zap.Error(err),
		)
	}
}

// StartScanTicker 启动超时扫描定时器，按配置周期投递扫描任务
func (c *AppContainer) StartScanTicker(ctx context.Context) {
	interval := time.Duration(c.Config.Approval.ScanInterval()) * time.Minute

	go func() {
		log := logger.Get()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := c.QueueClient.EnqueueScanDeadlines(now.UTC()); err != nil {
					log.Warn("超时扫描任务入队失败", zap.Error(err))
				}
			}
		}
	}()
}

// Close 释放容器持有的资源
func (c *AppContainer) Close() {
	if c.dispatcherCancel != nil {
		c.dispatcherCancel()
	}
	if c.QueueClient != nil {
		_ = c.QueueClient.Close()
	}
}

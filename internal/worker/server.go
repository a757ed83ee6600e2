package worker

import (
	"context"
	"fmt"

	"hros/internal/config"
	"hros/internal/notification"
	"hros/internal/worker/handlers"
	"hros/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewServer(
	cfg config.RedisConfig,
	concurrency int,
	scanner handlers.DeadlineScanner,
	notifier *notification.MultiNotifier,
	recipients handlers.RecipientResolver,
	logger *zap.Logger,
) *Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"approval":     6, // 超时扫描优先级高
				"notification": 3,
				"default":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()

	// 注册审批超时扫描处理器
	approvalHandler := handlers.NewApprovalHandler(scanner, logger)
	mux.HandleFunc(tasks.TypeScanDeadlines, approvalHandler.HandleScanDeadlines)

	// 注册通知投递处理器
	notificationHandler := handlers.NewNotificationHandler(notifier, recipients, logger)
	mux.HandleFunc(tasks.TypeDispatchNotification, notificationHandler.HandleDispatchNotification)

	return &Server{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// Run 启动 Worker 服务器
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.server.Shutdown()
}

package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"hros/internal/config"
	"hros/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueScanDeadlines(triggeredAt time.Time) error
	EnqueueDispatchNotification(payload tasks.DispatchNotificationPayload) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

// EnqueueScanDeadlines 投递一次超时扫描
// 扫描本身幂等，失败不重试，等下一轮周期即可。
func (c *asynqClient) EnqueueScanDeadlines(triggeredAt time.Time) error {
	payload, err := json.Marshal(tasks.ScanDeadlinesPayload{TriggeredAt: triggeredAt})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeScanDeadlines, payload)
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("approval"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

// EnqueueDispatchNotification 投递审批事件通知
func (c *asynqClient) EnqueueDispatchNotification(payload tasks.DispatchNotificationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeDispatchNotification, data)
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Queue("notification"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}

package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"hros/internal/config"
	"hros/pkg/httputil"
)

// Notifier 通知器接口
type Notifier interface {
	Send(ctx context.Context, notification *Notification) error
}

// Notification 通知消息
type Notification struct {
	Channel string         // email, webhook
	To      string         // 接收者（邮箱地址 / Webhook URL，为空时使用默认配置）
	Subject string         // 主题
	Body    string         // 内容
	Data    map[string]any // 附加数据（审批单号、状态等）
}

// MultiNotifier 多通道通知器，按渠道路由到具体实现
type MultiNotifier struct {
	email   *EmailNotifier
	webhook *WebhookNotifier
}

// NewMultiNotifier 按配置创建多通道通知器，未启用的渠道保持 nil
func NewMultiNotifier(cfg config.NotificationConfig) *MultiNotifier {
	m := &MultiNotifier{}
	if cfg.Email.Enabled {
		m.email = NewEmailNotifier(cfg.Email)
	}
	if cfg.Webhook.Enabled {
		m.webhook = NewWebhookNotifier(cfg.Webhook)
	}
	return m
}

// Send 发送通知
func (m *MultiNotifier) Send(ctx context.Context, notification *Notification) error {
	var notifier Notifier

	switch notification.Channel {
	case "email":
		if m.email != nil {
			notifier = m.email
		}
	case "webhook":
		if m.webhook != nil {
			notifier = m.webhook
		}
	default:
		return fmt.Errorf("不支持的通知渠道: %s", notification.Channel)
	}

	if notifier == nil {
		return fmt.Errorf("通知渠道未启用: %s", notification.Channel)
	}

	return notifier.Send(ctx, notification)
}

// Channels 返回已启用的通知渠道
func (m *MultiNotifier) Channels() []string {
	var channels []string
	if m.email != nil {
		channels = append(channels, "email")
	}
	if m.webhook != nil {
		channels = append(channels, "webhook")
	}
	return channels
}

// EmailNotifier SMTP 邮件通知器
type EmailNotifier struct {
	config config.EmailConfig
}

// NewEmailNotifier 创建邮件通知器
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

// Send 发送邮件
func (e *EmailNotifier) Send(ctx context.Context, notification *Notification) error {
	if notification.To == "" {
		return fmt.Errorf("邮件接收地址为空")
	}

	// 构建 MIME 邮件
	message := fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		e.config.From,
		notification.To,
		notification.Subject,
		notification.Body,
	)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)

	if err := smtp.SendMail(addr, auth, e.config.From, []string{notification.To}, []byte(message)); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	return nil
}

// WebhookNotifier Webhook 通知器，向外部系统推送审批事件
type WebhookNotifier struct {
	config config.WebhookConfig
	client *httputil.Client
}

// NewWebhookNotifier 创建 Webhook 通知器
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookNotifier{
		config: cfg,
		client: httputil.NewClient(
			httputil.WithTimeout(timeout),
			httputil.WithRetries(2),
		),
	}
}

// Send 发送 Webhook
func (w *WebhookNotifier) Send(ctx context.Context, notification *Notification) error {
	url := notification.To
	if url == "" {
		url = w.config.URL
	}
	if url == "" {
		return fmt.Errorf("Webhook URL 未配置")
	}

	payload := map[string]any{
		"subject":   notification.Subject,
		"body":      notification.Body,
		"data":      notification.Data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := w.client.PostJSON(ctx, url, payload, nil); err != nil {
		return fmt.Errorf("Webhook 推送失败: %w", err)
	}

	return nil
}

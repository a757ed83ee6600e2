package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"hros/internal/metrics"
	"hros/internal/notification"
	"hros/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RecipientResolver 按审批单与状态解析通知收件人（邮箱地址）
type RecipientResolver interface {
	Recipients(ctx context.Context, requestID string, status string) ([]string, error)
}

type NotificationHandler struct {
	notifier *notification.MultiNotifier
	resolver RecipientResolver
	logger   *zap.Logger
}

func NewNotificationHandler(notifier *notification.MultiNotifier, resolver RecipientResolver, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		resolver: resolver,
		logger:   logger,
	}
}

// HandleDispatchNotification 将审批事件投递到所有启用的通知渠道
func (h *NotificationHandler) HandleDispatchNotification(ctx context.Context, t *asynq.Task) error {
	var p tasks.DispatchNotificationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	subject, body := renderNotification(&p)
	data := map[string]any{
		"request_id": p.RequestID,
		"request_no": p.RequestNo,
		"page_id":    p.PageID,
		"entity_id":  p.EntityID,
		"status":     p.Status,
		"step_name":  p.StepName,
		"actor_id":   p.ActorID,
	}

	var firstErr error
	for _, channel := range h.notifier.Channels() {
		switch channel {
		case "email":
			if err := h.dispatchEmails(ctx, &p, subject, body, data); err != nil && firstErr == nil {
				firstErr = err
			}
		case "webhook":
			// Webhook 使用配置的默认 URL
			err := h.notifier.Send(ctx, &notification.Notification{
				Channel: "webhook",
				Subject: subject,
				Body:    body,
				Data:    data,
			})
			h.record("webhook", err)
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		h.logger.Warn("通知投递部分失败",
			zap.String("requestNo", p.RequestNo),
			zap.Error(firstErr),
		)
	}
	return firstErr
}

// dispatchEmails 解析收件人后逐个投递邮件
func (h *NotificationHandler) dispatchEmails(ctx context.Context, p *tasks.DispatchNotificationPayload, subject, body string, data map[string]any) error {
	if h.resolver == nil {
		return nil
	}

	emails, err := h.resolver.Recipients(ctx, p.RequestID, p.Status)
	if err != nil {
		return fmt.Errorf("解析通知收件人失败: %w", err)
	}

	var firstErr error
	for _, to := range emails {
		err := h.notifier.Send(ctx, &notification.Notification{
			Channel: "email",
			To:      to,
			Subject: subject,
			Body:    body,
			Data:    data,
		})
		h.record("email", err)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *NotificationHandler) record(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	metrics.NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// renderNotification 按事件状态生成通知文案
func renderNotification(p *tasks.DispatchNotificationPayload) (subject, body string) {
	var b strings.Builder
	switch p.Status {
	case "pending":
		if p.StepName != "" {
			subject = fmt.Sprintf("审批待处理: %s（%s）", p.RequestNo, p.StepName)
		} else {
			subject = fmt.Sprintf("审批待处理: %s", p.RequestNo)
		}
		b.WriteString(fmt.Sprintf("审批单 %s 正在等待您处理。", p.RequestNo))
	case "approved":
		subject = fmt.Sprintf("审批已通过: %s", p.RequestNo)
		b.WriteString(fmt.Sprintf("审批单 %s 已全部通过。", p.RequestNo))
	case "rejected":
		subject = fmt.Sprintf("审批已拒绝: %s", p.RequestNo)
		b.WriteString(fmt.Sprintf("审批单 %s 已被拒绝。", p.RequestNo))
	case "cancelled":
		subject = fmt.Sprintf("审批已取消: %s", p.RequestNo)
		b.WriteString(fmt.Sprintf("审批单 %s 已被取消。", p.RequestNo))
	case "expired":
		subject = fmt.Sprintf("审批已过期: %s", p.RequestNo)
		b.WriteString(fmt.Sprintf("审批单 %s 已超过截止日期，自动关闭。", p.RequestNo))
	default:
		subject = fmt.Sprintf("审批状态更新: %s", p.RequestNo)
		b.WriteString(fmt.Sprintf("审批单 %s 状态更新为 %s。", p.RequestNo, p.Status))
	}

	if p.ActorID != "" && p.ActorID != "system" {
		b.WriteString(fmt.Sprintf(" 操作人: %s。", p.ActorID))
	}
	if p.Comment != "" {
		b.WriteString(fmt.Sprintf(" 备注: %s", p.Comment))
	}
	return subject, b.String()
}

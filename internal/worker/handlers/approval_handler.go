package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hros/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// DeadlineScanner 超时扫描抽象，便于注入 mock
type DeadlineScanner interface {
	Scan(ctx context.Context, now time.Time) error
}

type ApprovalHandler struct {
	scanner DeadlineScanner
	logger  *zap.Logger
}

func NewApprovalHandler(scanner DeadlineScanner, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		scanner: scanner,
		logger:  logger,
	}
}

// HandleScanDeadlines 执行一轮升级/自动批准/过期扫描
func (h *ApprovalHandler) HandleScanDeadlines(ctx context.Context, t *asynq.Task) error {
	var p tasks.ScanDeadlinesPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	now := p.TriggeredAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if err := h.scanner.Scan(ctx, now); err != nil {
		h.logger.Error("超时扫描失败", zap.Error(err))
		return err
	}

	h.logger.Debug("超时扫描完成", zap.Time("triggeredAt", now))
	return nil
}

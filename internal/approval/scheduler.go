package approval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hros/internal/metrics"
)

const autoApproveComment = "超时自动批准"

// Scan 调度器单次扫描，由外部按周期触发（任务队列投递）
// 对每个 pending 请求依次检查：过期、升级、自动批准。
// 单个请求出错只记日志，不中断整轮扫描。
func (m *Manager) Scan(ctx context.Context, now time.Time) error {
	started := time.Now()
	defer func() {
		metrics.SchedulerScanDuration.Observe(time.Since(started).Seconds())
	}()

	var ids []string
	if err := m.db.WithContext(ctx).Model(&ApprovalRequest{}).
		Where("status = ?", StatusPending).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("查询待扫描请求失败: %w", err)
	}

	for _, id := range ids {
		if err := m.scanRequest(ctx, id, now); err != nil {
			m.logger.Warn("请求超时扫描失败",
				zap.String("requestId", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// scanRequest 在单请求互斥边界内处理一条请求的时间驱动迁移
// 同一轮内先判升级再判自动批准，与"升级时限必须更短"的定义期校验一致。
func (m *Manager) scanRequest(ctx context.Context, requestID string, now time.Time) error {
	var events []Event
	err := m.withRequestLock(requestID, func() error {
		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			req, err := loadRequest(tx, requestID)
			if err != nil {
				return err
			}
			if req.Status != StatusPending {
				return nil
			}

			def, err := m.GetWorkflow(ctx, req.WorkflowID)
			if err != nil {
				return err
			}
			step := stepByOrder(def, req.CurrentStep)

			// due_date 是展示性元数据，真正的过期迁移只发生在这里
			if req.DueDate != nil && req.DueDate.Before(now) {
				events, err = m.finishRequest(tx, req, def, step, StatusExpired, SystemActorID, "超过截止时间", now, "system")
				return err
			}

			if step == nil || req.Stalled {
				// 阻滞请求没有占位行，计时规则无从谈起
				return nil
			}

			hoursInStep := now.Sub(req.StepEnteredAt).Hours()

			if step.EscalationAfterHours > 0 && step.EscalationTo != "" &&
				hoursInStep >= float64(step.EscalationAfterHours) {
				if err := m.escalateStep(tx, req, step, now); err != nil {
					return err
				}
			}

			if step.AutoApproveAfterHours > 0 && hoursInStep >= float64(step.AutoApproveAfterHours) {
				events, err = m.autoApproveStep(ctx, tx, req, def, step, now)
				return err
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, evt := range events {
		m.publishEvent(evt)
	}
	return nil
}

// escalateStep 对当前步骤的全部 pending 占位行注入升级动作
// 每步至多升级一次：已存在 escalated 动作即跳过。
func (m *Manager) escalateStep(tx *gorm.DB, req *ApprovalRequest, step *WorkflowStep, now time.Time) error {
	var alreadyEscalated int64
	if err := tx.Model(&ApprovalAction{}).
		Where("request_id = ? AND step_order = ? AND action = ?", req.ID, step.StepOrder, ActionEscalated).
		Count(&alreadyEscalated).Error; err != nil {
		return fmt.Errorf("统计升级动作失败: %w", err)
	}
	if alreadyEscalated > 0 {
		return nil
	}

	rows, err := pendingRows(tx, req.ID, step.StepOrder)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	for _, row := range rows {
		if err := m.flipPendingRow(tx, row, ActionEscalated, SystemActorID, "超时升级", now); err != nil {
			return err
		}
	}
	if err := m.addVoterRow(tx, req, step, step.EscalationTo); err != nil {
		return err
	}

	metrics.ApprovalEscalationsTotal.WithLabelValues(req.PageID).Inc()
	m.logger.Info("步骤已超时升级",
		zap.String("requestId", req.ID),
		zap.String("stepName", step.StepName),
		zap.String("escalationTo", step.EscalationTo),
	)
	return nil
}

// autoApproveStep 把剩余 pending 占位行全部翻转为批准并走正常推进路径
func (m *Manager) autoApproveStep(ctx context.Context, tx *gorm.DB, req *ApprovalRequest, def *WorkflowDefinition, step *WorkflowStep, now time.Time) ([]Event, error) {
	rows, err := pendingRows(tx, req.ID, step.StepOrder)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := m.flipPendingRow(tx, row, ActionApproved, SystemActorID, autoApproveComment, now); err != nil {
			return nil, err
		}
	}

	satisfied, err := m.stepSatisfied(tx, req, step)
	if err != nil {
		return nil, err
	}
	if !satisfied {
		return nil, nil
	}

	metrics.ApprovalAutoApprovalsTotal.WithLabelValues(req.PageID).Inc()
	events, err := m.advanceOrComplete(ctx, tx, req, def, SystemActorID, now, "auto")
	if err != nil {
		return nil, err
	}
	// 终态事件标记为系统决策
	for i := range events {
		if events[i].Status == StatusApproved {
			events[i].ActorID = SystemActorID
			events[i].Comment = autoApproveComment
		}
	}
	return events, nil
}

func pendingRows(tx *gorm.DB, requestID string, stepOrder int) ([]*ApprovalAction, error) {
	var rows []*ApprovalAction
	err := tx.Where("request_id = ? AND step_order = ? AND action = ?", requestID, stepOrder, ActionPending).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询占位行失败: %w", err)
	}
	return rows, nil
}

package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hros/internal/metrics"
)

// ActionInput 投票输入
type ActionInput struct {
	RequestID  string
	ActorID    string
	Decision   ActionKind
	Comments   string
	DelegateTo string // Decision=delegated 时必填
}

// SubmitAction 处理一次审批动作
// 状态机：pending -> {approved, rejected, cancelled, expired}，终态不再迁移；
// pending 内 current_step 从 1 单调前进到 N，不回退。
// 全部状态变更在单请求互斥边界内执行，步骤推进至多发生一次。
func (m *Manager) SubmitAction(ctx context.Context, input ActionInput) error {
	if input.RequestID == "" || input.ActorID == "" {
		return NewValidationError("请求 ID 和操作人不能为空")
	}

	var events []Event
	err := m.withRequestLock(input.RequestID, func() error {
		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			evts, err := m.submitActionLocked(ctx, tx, input)
			events = evts
			return err
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

func (m *Manager) submitActionLocked(ctx context.Context, tx *gorm.DB, input ActionInput) ([]Event, error) {
	req, err := loadRequest(tx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, &StaleActionError{
			RequestID: req.ID,
			ActorID:   input.ActorID,
			Reason:    fmt.Sprintf("请求已处于终态 %s", req.Status),
		}
	}

	def, err := m.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	step := stepByOrder(def, req.CurrentStep)
	if step == nil {
		return nil, fmt.Errorf("工作流快照缺少步骤 %d", req.CurrentStep)
	}

	// 防重放护栏：操作人必须在当前步骤持有 pending 占位行
	row, err := pendingRowFor(tx, req.ID, req.CurrentStep, input.ActorID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, &StaleActionError{
			RequestID: req.ID,
			ActorID:   input.ActorID,
			Reason:    "当前步骤没有待处理的投票，可能已投票或步骤已前进",
		}
	}

	now := time.Now().UTC()

	switch input.Decision {
	case ActionRejected:
		if input.Comments == "" {
			return nil, NewValidationError("拒绝时必须填写意见")
		}
		if err := m.flipPendingRow(tx, row, ActionRejected, input.ActorID, input.Comments, now); err != nil {
			return nil, err
		}
		// 一票否决：与工作流类型无关，单次拒绝立即终结整个请求
		return m.finishRequest(tx, req, def, step, StatusRejected, input.ActorID, input.Comments, now, "manual")

	case ActionDelegated:
		if input.DelegateTo == "" {
			return nil, NewValidationError("委托时必须指定受托人")
		}
		if input.DelegateTo == input.ActorID {
			return nil, NewValidationError("不能委托给自己")
		}
		if err := m.flipPendingRow(tx, row, ActionDelegated, input.ActorID, input.Comments, now); err != nil {
			return nil, err
		}
		// 委托不计票，只为受托人追加占位行
		if err := m.addVoterRow(tx, req, step, input.DelegateTo); err != nil {
			return nil, err
		}
		return nil, nil

	case ActionEscalated:
		if step.EscalationTo == "" {
			return nil, NewValidationError("步骤未配置升级目标")
		}
		if err := m.flipPendingRow(tx, row, ActionEscalated, input.ActorID, input.Comments, now); err != nil {
			return nil, err
		}
		// 升级对原操作人终结，但本身不构成步骤批准
		if err := m.addVoterRow(tx, req, step, step.EscalationTo); err != nil {
			return nil, err
		}
		return nil, nil

	case ActionApproved:
		if err := m.flipPendingRow(tx, row, ActionApproved, input.ActorID, input.Comments, now); err != nil {
			return nil, err
		}
		satisfied, err := m.stepSatisfied(tx, req, step)
		if err != nil {
			return nil, err
		}
		if !satisfied {
			// 票数未满，请求停留在当前步骤
			return nil, nil
		}
		return m.advanceOrComplete(ctx, tx, req, def, input.ActorID, now, "manual")

	default:
		return nil, NewValidationError(fmt.Sprintf("未知的审批动作: %s", input.Decision))
	}
}

// Cancel 管理员强制取消 pending 请求，绕过投票逻辑
// 与投票驱动的终态迁移共用单请求互斥边界，不会出现竞态双终态。
func (m *Manager) Cancel(ctx context.Context, requestID, operatorID, reason string) error {
	var events []Event
	err := m.withRequestLock(requestID, func() error {
		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			req, err := loadRequest(tx, requestID)
			if err != nil {
				return err
			}
			if req.Status != StatusPending {
				return &StaleActionError{
					RequestID: requestID,
					ActorID:   operatorID,
					Reason:    fmt.Sprintf("请求已处于终态 %s", req.Status),
				}
			}
			def, err := m.GetWorkflow(ctx, req.WorkflowID)
			if err != nil {
				return err
			}
			step := stepByOrder(def, req.CurrentStep)
			events, err = m.finishRequest(tx, req, def, step, StatusCancelled, operatorID, reason, time.Now().UTC(), "manual")
			return err
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

// CanApprove 判断用户当前是否可对请求投票
func (m *Manager) CanApprove(ctx context.Context, requestID, userID string) (bool, error) {
	req, err := loadRequest(m.db.WithContext(ctx), requestID)
	if err != nil {
		return false, err
	}
	if req.Status != StatusPending {
		return false, nil
	}
	row, err := pendingRowFor(m.db.WithContext(ctx), requestID, req.CurrentStep, userID)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// GetRequestDetails 返回请求、快照步骤与按时间排序的动作账本
func (m *Manager) GetRequestDetails(ctx context.Context, requestID string) (*RequestDetails, error) {
	req, err := loadRequest(m.db.WithContext(ctx), requestID)
	if err != nil {
		return nil, err
	}
	def, err := m.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	var actions []*ApprovalAction
	if err := m.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, step_order ASC").
		Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("查询审批账本失败: %w", err)
	}
	return &RequestDetails{Request: req, Steps: def.Steps, Actions: actions}, nil
}

// ListPendingForApprover 列出用户当前可处理的请求
func (m *Manager) ListPendingForApprover(ctx context.Context, approverID string) ([]*ApprovalRequest, error) {
	var requests []*ApprovalRequest
	err := m.db.WithContext(ctx).
		Joins("JOIN approval_actions ON approval_actions.request_id = approval_requests.id").
		Where("approval_requests.status = ?", StatusPending).
		Where("approval_actions.approver_id = ? AND approval_actions.action = ?", approverID, ActionPending).
		Where("approval_actions.step_order = approval_requests.current_step").
		Group("approval_requests.id").
		Order("approval_requests.created_at ASC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("查询待办审批失败: %w", err)
	}
	return requests, nil
}

// ---------------------------------------------------------------------------
// 内部推进逻辑
// ---------------------------------------------------------------------------

// stepSatisfied 重算步骤满足谓词：已记录批准数 >= 所需票数
// 顺序/条件步骤与并行步骤共用同一计票规则，区别只在占位行基数：
// 并行步骤在进入时为完整审批人集合建行，任意顺序到票。
func (m *Manager) stepSatisfied(tx *gorm.DB, req *ApprovalRequest, step *WorkflowStep) (bool, error) {
	var approvals int64
	err := tx.Model(&ApprovalAction{}).
		Where("request_id = ? AND step_order = ? AND action = ?", req.ID, step.StepOrder, ActionApproved).
		Count(&approvals).Error
	if err != nil {
		return false, fmt.Errorf("统计步骤票数失败: %w", err)
	}
	required := step.RequiredApprovals
	if required < 1 {
		required = 1
	}
	return approvals >= int64(required), nil
}

// advanceOrComplete 当前步骤满足后推进到下一可用步骤或终结请求
// 条件工作流逐个求值跳过不命中步骤；越过末步即整体批准。
// 推进是幂等的：CAS 失败表示别的事务已推进，按过期动作处理。
func (m *Manager) advanceOrComplete(ctx context.Context, tx *gorm.DB, req *ApprovalRequest, def *WorkflowDefinition, actorID string, now time.Time, decisionType string) ([]Event, error) {
	next := req.CurrentStep + 1
	for next <= lastStepOrder(def) {
		step := stepByOrder(def, next)
		if step == nil {
			return nil, fmt.Errorf("工作流快照缺少步骤 %d", next)
		}
		if def.WorkflowType == WorkflowConditional {
			matched, err := EvaluateConditions(step.Conditions, req.RequestData)
			if err != nil {
				// 已入账的票不因路由表达式损坏而回滚，请求阻滞等待人工处理
				return nil, m.stallRequest(tx, req, fmt.Sprintf("步骤 %d 条件求值失败: %v", next, err))
			}
			if !matched {
				next++
				continue
			}
		}
		return m.enterStep(ctx, tx, req, def, step, now)
	}

	// 没有剩余步骤，整体批准
	currentStep := stepByOrder(def, req.CurrentStep)
	return m.finishRequest(tx, req, def, currentStep, StatusApproved, actorID, "", now, decisionType)
}

// enterStep 把请求推进到指定步骤并生成该步骤的占位行
func (m *Manager) enterStep(ctx context.Context, tx *gorm.DB, req *ApprovalRequest, def *WorkflowDefinition, step *WorkflowStep, now time.Time) ([]Event, error) {
	updates := map[string]any{
		"current_step":    step.StepOrder,
		"step_entered_at": now,
		"stalled":         false,
		"stall_reason":    "",
	}

	approvers, rerr := m.resolveApprovers(ctx, req, step)
	var uerr *UnresolvedApproverError
	if rerr != nil {
		if !errors.As(rerr, &uerr) {
			return nil, rerr
		}
		updates["stalled"] = true
		updates["stall_reason"] = uerr.Error()
	}

	if err := m.casUpdateRequest(tx, req, updates); err != nil {
		return nil, err
	}
	req.CurrentStep = step.StepOrder
	req.StepEnteredAt = now

	if uerr != nil {
		m.logger.Warn("步骤审批人无法解析，请求已阻滞",
			zap.String("requestId", req.ID),
			zap.String("stepName", step.StepName),
			zap.Error(uerr),
		)
	} else {
		if err := m.materializeVoterRows(tx, req, step, approvers); err != nil {
			return nil, err
		}
	}

	metrics.ApprovalStepAdvancesTotal.WithLabelValues(req.PageID).Inc()
	return []Event{{
		RequestID:  req.ID,
		RequestNo:  req.RequestNo,
		PageID:     req.PageID,
		EntityID:   req.EntityID,
		Status:     StatusPending,
		StepOrder:  step.StepOrder,
		StepName:   step.StepName,
		OccurredAt: now,
	}}, nil
}

// finishRequest 把请求迁移到终态
func (m *Manager) finishRequest(tx *gorm.DB, req *ApprovalRequest, def *WorkflowDefinition, step *WorkflowStep, status RequestStatus, actorID, comment string, now time.Time, decisionType string) ([]Event, error) {
	if err := m.casUpdateRequest(tx, req, map[string]any{
		"status":       status,
		"completed_at": now,
		"stalled":      false,
		"stall_reason": "",
	}); err != nil {
		return nil, err
	}
	req.Status = status
	req.CompletedAt = &now

	metrics.ApprovalPendingGauge.WithLabelValues(req.PageID).Dec()
	metrics.ApprovalDecisionsTotal.WithLabelValues(req.PageID, string(status), decisionType).Inc()

	stepName := ""
	stepOrder := req.CurrentStep
	if step != nil {
		stepName = step.StepName
		stepOrder = step.StepOrder
	}
	m.logger.Info("审批请求已终结",
		zap.String("requestId", req.ID),
		zap.String("requestNo", req.RequestNo),
		zap.String("status", string(status)),
		zap.String("actor", actorID),
	)
	return []Event{{
		RequestID:  req.ID,
		RequestNo:  req.RequestNo,
		PageID:     req.PageID,
		EntityID:   req.EntityID,
		Status:     status,
		StepOrder:  stepOrder,
		StepName:   stepName,
		ActorID:    actorID,
		Comment:    comment,
		OccurredAt: now,
	}}, nil
}

// flipPendingRow 占位行只允许被翻转一次，重复翻转视为过期动作
// actedBy 记录实际执行翻转的身份，调度器注入时为 SystemActorID，
// 账本读取方据此区分人工决策和机器决策。
func (m *Manager) flipPendingRow(tx *gorm.DB, row *ApprovalAction, decision ActionKind, actedBy, comments string, now time.Time) error {
	res := tx.Model(&ApprovalAction{}).
		Where("id = ? AND action = ?", row.ID, ActionPending).
		Updates(map[string]any{
			"action":      decision,
			"acted_by":    actedBy,
			"comments":    comments,
			"action_date": now,
		})
	if res.Error != nil {
		return fmt.Errorf("翻转占位行失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &StaleActionError{
			RequestID: row.RequestID,
			ActorID:   row.ApproverID,
			Reason:    "该投票已被处理",
		}
	}
	return nil
}

// addVoterRow 为委托/升级目标追加占位行，目标已持有占位行时跳过
func (m *Manager) addVoterRow(tx *gorm.DB, req *ApprovalRequest, step *WorkflowStep, approverID string) error {
	existing, err := pendingRowFor(tx, req.ID, step.StepOrder, approverID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	row := &ApprovalAction{
		ID:         uuid.New().String(),
		RequestID:  req.ID,
		StepID:     step.ID,
		StepOrder:  step.StepOrder,
		ApproverID: approverID,
		Action:     ActionPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("追加审批占位行失败: %w", err)
	}
	return nil
}

// casUpdateRequest 基于 lock_version 的乐观并发控制
// 两个并发批准不会重复推进同一步骤：后到者 CAS 失败并被拒绝。
func (m *Manager) casUpdateRequest(tx *gorm.DB, req *ApprovalRequest, updates map[string]any) error {
	updates["lock_version"] = req.LockVersion + 1
	updates["updated_at"] = time.Now().UTC()
	res := tx.Model(&ApprovalRequest{}).
		Where("id = ? AND lock_version = ?", req.ID, req.LockVersion).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新审批请求失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return &StaleActionError{
			RequestID: req.ID,
			Reason:    "请求正在被并发修改",
		}
	}
	req.LockVersion++
	return nil
}

// stallRequest 把请求置为阻滞态，状态保持 pending，等待定义修复或人工取消
func (m *Manager) stallRequest(tx *gorm.DB, req *ApprovalRequest, reason string) error {
	if err := m.casUpdateRequest(tx, req, map[string]any{
		"stalled":      true,
		"stall_reason": reason,
	}); err != nil {
		return err
	}
	req.Stalled = true
	req.StallReason = reason
	m.logger.Warn("审批请求已阻滞",
		zap.String("requestId", req.ID),
		zap.String("reason", reason),
	)
	return nil
}

func loadRequest(tx *gorm.DB, requestID string) (*ApprovalRequest, error) {
	var req ApprovalRequest
	if err := tx.Where("id = ?", requestID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "审批请求", ID: requestID}
		}
		return nil, fmt.Errorf("查询审批请求失败: %w", err)
	}
	return &req, nil
}

func pendingRowFor(tx *gorm.DB, requestID string, stepOrder int, approverID string) (*ApprovalAction, error) {
	var row ApprovalAction
	err := tx.Where("request_id = ? AND step_order = ? AND approver_id = ? AND action = ?",
		requestID, stepOrder, approverID, ActionPending).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询占位行失败: %w", err)
	}
	return &row, nil
}

func stepByOrder(def *WorkflowDefinition, order int) *WorkflowStep {
	for i := range def.Steps {
		if def.Steps[i].StepOrder == order {
			return &def.Steps[i]
		}
	}
	return nil
}

func lastStepOrder(def *WorkflowDefinition) int {
	max := 0
	for i := range def.Steps {
		if def.Steps[i].StepOrder > max {
			max = def.Steps[i].StepOrder
		}
	}
	return max
}

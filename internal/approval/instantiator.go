package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hros/internal/metrics"
)

// InstantiateInput 业务事件触发审批的输入
type InstantiateInput struct {
	PageID      string
	RequesterID string
	EntityID    string         // 发起审批的业务记录 ID
	Priority    string         // low / normal / high
	DueDate     *time.Time     // 展示用的期望完成时间，过期由调度器标记
	Payload     map[string]any // 原样存储，仅用于条件路由
}

// Instantiate 解析当前工作流并创建审批请求
// 定义在创建时被冻结为快照引用，后续管理端修改不影响在途请求。
// 条件工作流从第 1 步起寻找命中的步骤，全部不命中视为配置错误返回调用方。
func (m *Manager) Instantiate(ctx context.Context, input InstantiateInput) (*ApprovalRequest, error) {
	if input.PageID == "" || input.RequesterID == "" {
		return nil, NewValidationError("业务实体类型和申请人不能为空")
	}

	workflowID, err := m.EnsureCurrentWorkflow(ctx, input.PageID)
	if err != nil {
		return nil, err
	}
	def, err := m.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	firstStep, err := m.firstEligibleStep(def, input.Payload)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &ApprovalRequest{
		ID:            uuid.New().String(),
		PageID:        input.PageID,
		EntityID:      input.EntityID,
		RequesterID:   input.RequesterID,
		WorkflowID:    def.ID,
		Status:        StatusPending,
		CurrentStep:   firstStep.StepOrder,
		Priority:      defaultPriority(input.Priority),
		RequestData:   input.Payload,
		StepEnteredAt: now,
		DueDate:       input.DueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		no, nerr := m.nextRequestNo(tx, input.PageID, now)
		if nerr != nil {
			return nerr
		}
		req.RequestNo = no
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("创建审批请求失败: %w", err)
		}

		approvers, rerr := m.resolveApprovers(ctx, req, firstStep)
		if rerr != nil {
			if uerr, ok := rerr.(*UnresolvedApproverError); ok {
				// 结构性故障不终止请求，标记阻滞等待运营处理
				return tx.Model(req).Updates(map[string]any{
					"stalled":      true,
					"stall_reason": uerr.Error(),
				}).Error
			}
			return rerr
		}
		return m.materializeVoterRows(tx, req, firstStep, approvers)
	})
	if err != nil {
		return nil, err
	}

	metrics.ApprovalPendingGauge.WithLabelValues(req.PageID).Inc()
	m.publishEvent(Event{
		RequestID:  req.ID,
		RequestNo:  req.RequestNo,
		PageID:     req.PageID,
		EntityID:   req.EntityID,
		Status:     StatusPending,
		StepOrder:  firstStep.StepOrder,
		StepName:   firstStep.StepName,
		OccurredAt: now,
	})
	m.logger.Info("审批请求已创建",
		zap.String("requestId", req.ID),
		zap.String("requestNo", req.RequestNo),
		zap.String("pageId", req.PageID),
		zap.Int("currentStep", req.CurrentStep),
	)
	return req, nil
}

// firstEligibleStep 找到第一个命中的步骤
// 非条件工作流恒为第 1 步；条件工作流逐个求值，全部不命中是错误态。
func (m *Manager) firstEligibleStep(def *WorkflowDefinition, payload map[string]any) (*WorkflowStep, error) {
	if len(def.Steps) == 0 {
		return nil, NewValidationError("工作流没有配置任何步骤")
	}
	if def.WorkflowType != WorkflowConditional {
		return &def.Steps[0], nil
	}
	for i := range def.Steps {
		step := &def.Steps[i]
		matched, err := EvaluateConditions(step.Conditions, payload)
		if err != nil {
			return nil, err
		}
		if matched {
			return step, nil
		}
	}
	return nil, NewValidationError("没有任何步骤的条件命中当前载荷，请检查工作流配置")
}

// nextRequestNo 生成顺序可读编号，形如 LR-202608-0007
func (m *Manager) nextRequestNo(tx *gorm.DB, pageID string, now time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%s", pagePrefix(pageID), now.Format("200601"))

	var seq RequestSequence
	if err := tx.Where(RequestSequence{Prefix: prefix}).FirstOrCreate(&seq).Error; err != nil {
		return "", fmt.Errorf("初始化请求序列失败: %w", err)
	}
	if err := tx.Model(&RequestSequence{}).
		Where("prefix = ?", prefix).
		UpdateColumn("last_seq", gorm.Expr("last_seq + 1")).Error; err != nil {
		return "", fmt.Errorf("递增请求序列失败: %w", err)
	}
	if err := tx.Where("prefix = ?", prefix).First(&seq).Error; err != nil {
		return "", fmt.Errorf("读取请求序列失败: %w", err)
	}
	return fmt.Sprintf("%s-%04d", prefix, seq.LastSeq), nil
}

// pagePrefix 取实体类型各段首字母作为编号前缀，如 leave_request -> LR
func pagePrefix(pageID string) string {
	var b strings.Builder
	for _, seg := range strings.FieldsFunc(pageID, func(r rune) bool { return r == '_' || r == '-' }) {
		b.WriteByte(seg[0])
	}
	if b.Len() == 0 {
		return "AP"
	}
	return strings.ToUpper(b.String())
}

func defaultPriority(p string) string {
	switch p {
	case "low", "normal", "high":
		return p
	default:
		return "normal"
	}
}

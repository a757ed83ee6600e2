package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GetCurrentWorkflow 返回 page 当前生效的工作流定义（含步骤，按 step_order 排序）
func (m *Manager) GetCurrentWorkflow(ctx context.Context, pageID string) (*WorkflowDefinition, error) {
	if m.cache != nil {
		if def, ok := m.cache.GetDefinition(ctx, pageID); ok {
			return def, nil
		}
	}

	var pointer WorkflowPage
	if err := m.db.WithContext(ctx).Where("page_id = ?", pageID).First(&pointer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "工作流", ID: pageID}
		}
		return nil, fmt.Errorf("查询当前工作流指针失败: %w", err)
	}

	def, err := m.GetWorkflow(ctx, pointer.CurrentWorkflowID)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		m.cache.SetDefinition(ctx, pageID, def)
	}
	return def, nil
}

// GetWorkflow 按 ID 加载工作流定义（含步骤）
func (m *Manager) GetWorkflow(ctx context.Context, workflowID string) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	err := m.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Where("id = ?", workflowID).
		First(&def).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "工作流", ID: workflowID}
		}
		return nil, fmt.Errorf("查询工作流定义失败: %w", err)
	}
	return &def, nil
}

// ListWorkflows 列出 page 下的全部版本，最新在前
func (m *Manager) ListWorkflows(ctx context.Context, pageID string) ([]*WorkflowDefinition, error) {
	var defs []*WorkflowDefinition
	query := m.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Order("version DESC")
	if pageID != "" {
		query = query.Where("page_id = ?", pageID)
	}
	if err := query.Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("查询工作流列表失败: %w", err)
	}
	return defs, nil
}

// EnsureCurrentWorkflow 幂等保证 page 存在当前工作流，返回其 ID
// 不存在时创建一个"直属上级单步审批"的最小默认定义，
// 保证任何业务事件总能解析到某个工作流。
func (m *Manager) EnsureCurrentWorkflow(ctx context.Context, pageID string) (string, error) {
	if pageID == "" {
		return "", NewValidationError("必须指定业务实体类型")
	}

	var pointer WorkflowPage
	err := m.db.WithContext(ctx).Where("page_id = ?", pageID).First(&pointer).Error
	if err == nil {
		return pointer.CurrentWorkflowID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("查询当前工作流指针失败: %w", err)
	}

	def := &WorkflowDefinition{
		ID:           uuid.New().String(),
		PageID:       pageID,
		Name:         fmt.Sprintf("%s 默认审批流", pageID),
		WorkflowType: WorkflowSequential,
		IsDefault:    true,
		IsActive:     true,
		Version:      1,
		Steps: []WorkflowStep{
			{
				ID:                uuid.New().String(),
				StepOrder:         1,
				StepName:          "直属上级审批",
				ApproverType:      ApproverManager,
				RequiredApprovals: 1,
			},
		},
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 并发兜底：指针已被别的协程建好则直接复用
		var existing WorkflowPage
		if err := tx.Where("page_id = ?", pageID).First(&existing).Error; err == nil {
			def.ID = existing.CurrentWorkflowID
			return nil
		}
		if err := tx.Create(def).Error; err != nil {
			return fmt.Errorf("创建默认工作流失败: %w", err)
		}
		if err := tx.Create(&WorkflowPage{PageID: pageID, CurrentWorkflowID: def.ID}).Error; err != nil {
			return fmt.Errorf("写入当前工作流指针失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("已创建默认工作流",
		zap.String("pageId", pageID),
		zap.String("workflowId", def.ID),
	)
	return def.ID, nil
}

// SaveWorkflow 保存工作流定义，返回生效的定义 ID
// 版本规则：已被请求快照引用的版本不可原地修改，
// 保存会生成新版本并取代旧版本，旧版本保持可读，在途请求不受影响。
func (m *Manager) SaveWorkflow(ctx context.Context, def *WorkflowDefinition) (string, error) {
	normalizeSteps(def)
	if err := validateDefinition(def); err != nil {
		return "", err
	}

	var savedID string
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if def.ID == "" {
			return m.createVersion(tx, def, 1)
		}

		var existing WorkflowDefinition
		if err := tx.Where("id = ?", def.ID).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Kind: "工作流", ID: def.ID}
			}
			return fmt.Errorf("查询工作流定义失败: %w", err)
		}
		if existing.PageID != def.PageID {
			return NewValidationError("不允许修改工作流所属的业务实体类型")
		}

		var referenced int64
		if err := tx.Model(&ApprovalRequest{}).
			Where("workflow_id = ?", def.ID).
			Count(&referenced).Error; err != nil {
			return fmt.Errorf("统计快照引用失败: %w", err)
		}

		if referenced == 0 {
			// 尚无请求快照此版本，原地更新
			def.Version = existing.Version
			def.IsActive = true
			def.IsDefault = true
			if err := tx.Where("workflow_id = ?", def.ID).Delete(&WorkflowStep{}).Error; err != nil {
				return fmt.Errorf("清理旧步骤失败: %w", err)
			}
			for i := range def.Steps {
				def.Steps[i].ID = uuid.New().String()
				def.Steps[i].WorkflowID = def.ID
			}
			if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(def).Error; err != nil {
				return fmt.Errorf("更新工作流定义失败: %w", err)
			}
			savedID = def.ID
			return m.updatePointer(tx, def.PageID, def.ID)
		}

		// 已有快照引用，生成新版本并停用旧版本
		if err := tx.Model(&WorkflowDefinition{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{"is_active": false, "is_default": false}).Error; err != nil {
			return fmt.Errorf("停用旧版本失败: %w", err)
		}
		def.ID = ""
		return m.createVersion(tx, def, existing.Version+1)
	})
	if err != nil {
		return "", err
	}

	if savedID == "" {
		savedID = def.ID
	}
	if m.cache != nil {
		m.cache.InvalidateDefinition(ctx, def.PageID)
	}
	m.logger.Info("工作流定义已保存",
		zap.String("workflowId", savedID),
		zap.String("pageId", def.PageID),
		zap.Int("version", def.Version),
	)
	return savedID, nil
}

// createVersion 写入新版本并把指针切过去
func (m *Manager) createVersion(tx *gorm.DB, def *WorkflowDefinition, version int) error {
	def.ID = uuid.New().String()
	def.Version = version
	def.IsActive = true
	def.IsDefault = true
	for i := range def.Steps {
		def.Steps[i].ID = uuid.New().String()
		def.Steps[i].WorkflowID = def.ID
	}
	if err := tx.Create(def).Error; err != nil {
		return fmt.Errorf("创建工作流定义失败: %w", err)
	}
	return m.updatePointer(tx, def.PageID, def.ID)
}

func (m *Manager) updatePointer(tx *gorm.DB, pageID, workflowID string) error {
	var pointer WorkflowPage
	err := tx.Where("page_id = ?", pageID).First(&pointer).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&WorkflowPage{PageID: pageID, CurrentWorkflowID: workflowID}).Error
	case err != nil:
		return fmt.Errorf("查询当前工作流指针失败: %w", err)
	default:
		return tx.Model(&WorkflowPage{}).
			Where("page_id = ?", pageID).
			Update("current_workflow_id", workflowID).Error
	}
}

// DeleteWorkflow 软删除工作流定义
// 仍被在途请求引用时返回 WorkflowInUseError。
func (m *Manager) DeleteWorkflow(ctx context.Context, workflowID string) error {
	var def WorkflowDefinition
	if err := m.db.WithContext(ctx).Where("id = ?", workflowID).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Kind: "工作流", ID: workflowID}
		}
		return fmt.Errorf("查询工作流定义失败: %w", err)
	}

	var inFlight int64
	if err := m.db.WithContext(ctx).Model(&ApprovalRequest{}).
		Where("workflow_id = ? AND status = ?", workflowID, StatusPending).
		Count(&inFlight).Error; err != nil {
		return fmt.Errorf("统计在途请求失败: %w", err)
	}
	if inFlight > 0 {
		return &WorkflowInUseError{WorkflowID: workflowID, InFlight: inFlight}
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&WorkflowDefinition{}).
			Where("id = ?", workflowID).
			Updates(map[string]any{"is_active": false, "is_default": false}).Error; err != nil {
			return fmt.Errorf("停用工作流失败: %w", err)
		}
		// 若当前指针还指向它，移除指针，后续 Ensure 会重建默认定义
		return tx.Where("page_id = ? AND current_workflow_id = ?", def.PageID, workflowID).
			Delete(&WorkflowPage{}).Error
	})
	if err != nil {
		return err
	}

	if m.cache != nil {
		m.cache.InvalidateDefinition(ctx, def.PageID)
	}
	return nil
}

// validateDefinition 保存期校验，一次性收集全部违规项
func validateDefinition(def *WorkflowDefinition) error {
	var violations []string

	if def == nil {
		return NewValidationError("工作流定义不能为空")
	}
	if strings.TrimSpace(def.Name) == "" {
		violations = append(violations, "工作流名称不能为空")
	}
	if strings.TrimSpace(def.PageID) == "" {
		violations = append(violations, "必须选择目标业务实体类型")
	}
	switch def.WorkflowType {
	case WorkflowSequential, WorkflowParallel, WorkflowConditional, "":
	default:
		violations = append(violations, fmt.Sprintf("未知的工作流类型: %s", def.WorkflowType))
	}
	if len(def.Steps) == 0 {
		violations = append(violations, "至少需要一个审批步骤")
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		label := fmt.Sprintf("步骤 %d", i+1)
		if strings.TrimSpace(step.StepName) == "" {
			violations = append(violations, fmt.Sprintf("%s: 步骤名称不能为空", label))
		}
		switch step.ApproverType {
		case ApproverUser:
			if len(step.ApproverIDs) == 0 {
				violations = append(violations, fmt.Sprintf("%s: 指定审批人类型必须配置具体审批人", label))
			}
		case ApproverManager:
		default:
			violations = append(violations, fmt.Sprintf("%s: 未知的审批人类型: %s", label, step.ApproverType))
		}
		if step.RequiredApprovals < 1 {
			violations = append(violations, fmt.Sprintf("%s: 所需票数必须大于等于 1", label))
		}
		if step.EscalationAfterHours > 0 && step.EscalationTo == "" {
			violations = append(violations, fmt.Sprintf("%s: 配置了升级时限但未指定升级目标", label))
		}
		// 升级必须先于静默自动批准触发
		if step.EscalationAfterHours > 0 && step.AutoApproveAfterHours > 0 &&
			step.EscalationAfterHours >= step.AutoApproveAfterHours {
			violations = append(violations, fmt.Sprintf("%s: 升级时限必须小于自动批准时限", label))
		}
		if expr := strings.TrimSpace(step.Conditions); expr != "" {
			if _, err := govaluate.NewEvaluableExpression(conditionVarPattern.ReplaceAllString(expr, "x")); err != nil {
				violations = append(violations, fmt.Sprintf("%s: 条件表达式无法解析: %v", label, err))
			}
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// normalizeSteps 按给定顺序重排步骤号，保证 1 起步、连续且唯一
func normalizeSteps(def *WorkflowDefinition) {
	if def.WorkflowType == "" {
		def.WorkflowType = WorkflowSequential
	}
	sort.SliceStable(def.Steps, func(i, j int) bool {
		return def.Steps[i].StepOrder < def.Steps[j].StepOrder
	})
	for i := range def.Steps {
		def.Steps[i].StepOrder = i + 1
		if def.Steps[i].RequiredApprovals == 0 {
			def.Steps[i].RequiredApprovals = 1
		}
	}
}

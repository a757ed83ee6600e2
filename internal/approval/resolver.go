package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// resolveApprovers 解析步骤的具体审批人集合
// 指定审批人直接返回配置列表；计算型（直属上级）依赖组织目录查询，
// 申请人没有上级时返回 UnresolvedApproverError，由调用方标记阻滞。
func (m *Manager) resolveApprovers(ctx context.Context, req *ApprovalRequest, step *WorkflowStep) ([]string, error) {
	switch step.ApproverType {
	case ApproverUser:
		approvers := dedupStrings(step.ApproverIDs)
		if len(approvers) == 0 {
			return nil, &UnresolvedApproverError{
				RequesterID: req.RequesterID,
				StepName:    step.StepName,
				Reason:      "步骤未配置审批人",
			}
		}
		return approvers, nil

	case ApproverManager:
		if m.directory == nil {
			return nil, &UnresolvedApproverError{
				RequesterID: req.RequesterID,
				StepName:    step.StepName,
				Reason:      "组织目录未接入",
			}
		}
		managerID, err := m.directory.DirectManager(ctx, req.RequesterID)
		if err != nil {
			return nil, fmt.Errorf("查询直属上级失败: %w", err)
		}
		if managerID == "" {
			return nil, &UnresolvedApproverError{
				RequesterID: req.RequesterID,
				StepName:    step.StepName,
				Reason:      "申请人没有直属上级",
			}
		}
		return []string{managerID}, nil

	default:
		return nil, &UnresolvedApproverError{
			RequesterID: req.RequesterID,
			StepName:    step.StepName,
			Reason:      fmt.Sprintf("未知的审批人类型: %s", step.ApproverType),
		}
	}
}

// materializeVoterRows 首次进入步骤时为每个审批人生成 pending 占位行
// 并行步骤的计票以这些占位行为基数。
func (m *Manager) materializeVoterRows(tx *gorm.DB, req *ApprovalRequest, step *WorkflowStep, approvers []string) error {
	for _, approverID := range approvers {
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
			return fmt.Errorf("创建审批占位行失败: %w", err)
		}
	}
	return nil
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

package workflows

// SaveWorkflowRequest 保存工作流定义请求
// ID 为空表示新建，非空表示更新（被在途请求引用时自动创建新版本）
type SaveWorkflowRequest struct {
	ID           string            `json:"id"`
	PageID       string            `json:"page_id" binding:"required"`
	Name         string            `json:"name" binding:"required"`
	Description  string            `json:"description"`
	WorkflowType string            `json:"workflow_type" binding:"required,oneof=sequential parallel conditional"`
	Steps        []SaveStepRequest `json:"steps" binding:"required,min=1,dive"`
}

// SaveStepRequest 工作流步骤定义
type SaveStepRequest struct {
	StepOrder             int      `json:"step_order" binding:"required,min=1"`
	StepName              string   `json:"step_name" binding:"required"`
	ApproverType          string   `json:"approver_type" binding:"required,oneof=user manager"`
	ApproverIDs           []string `json:"approver_ids"`
	RequiredApprovals     int      `json:"required_approvals"`
	AutoApproveAfterHours int      `json:"auto_approve_after_hours"`
	EscalationAfterHours  int      `json:"escalation_after_hours"`
	EscalationTo          string   `json:"escalation_to"`
	Conditions            string   `json:"conditions"`
}

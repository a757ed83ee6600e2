package approval

import (
	"fmt"
	"strings"
)

// ValidationError 定义保存时的校验错误，一次性列出全部违规项
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("工作流定义校验失败: %s", strings.Join(e.Violations, "; "))
}

// NewValidationError 创建校验错误
func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

// UnresolvedApproverError 步骤审批人无法解析
// 请求保持 pending 并被标记阻滞，交由运营介入，不向触发方抛出终止。
type UnresolvedApproverError struct {
	RequesterID string
	StepName    string
	Reason      string
}

func (e *UnresolvedApproverError) Error() string {
	return fmt.Sprintf("步骤 %q 审批人无法解析（申请人 %s）: %s", e.StepName, e.RequesterID, e.Reason)
}

// StaleActionError 投票目标已失效：请求已终结、步骤已前进或重复投票
type StaleActionError struct {
	RequestID string
	ActorID   string
	Reason    string
}

func (e *StaleActionError) Error() string {
	return fmt.Sprintf("动作已失效（请求 %s，操作人 %s）: %s", e.RequestID, e.ActorID, e.Reason)
}

// WorkflowInUseError 工作流仍被在途请求引用，禁止删除
type WorkflowInUseError struct {
	WorkflowID string
	InFlight   int64
}

func (e *WorkflowInUseError) Error() string {
	return fmt.Sprintf("工作流 %s 仍被 %d 个在途请求引用，无法删除", e.WorkflowID, e.InFlight)
}

// NotFoundError 未知的请求或工作流
type NotFoundError struct {
	Kind string // workflow / request
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s 不存在", e.Kind, e.ID)
}

package approval

import (
	"time"

	"gorm.io/gorm"
)

// WorkflowType 工作流类型
type WorkflowType string

const (
	WorkflowSequential  WorkflowType = "sequential"  // 顺序审批，逐级流转
	WorkflowParallel    WorkflowType = "parallel"    // 并行会签，按票数决定
	WorkflowConditional WorkflowType = "conditional" // 条件路由，按载荷字段跳步
)

// ApproverType 审批人类型
type ApproverType string

const (
	ApproverUser    ApproverType = "user"    // 指定审批人
	ApproverManager ApproverType = "manager" // 申请人直属上级
)

// RequestStatus 审批请求状态
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusExpired   RequestStatus = "expired"
)

// IsTerminal 是否为终态
func (s RequestStatus) IsTerminal() bool {
	return s != StatusPending
}

// ActionKind 审批动作类型
type ActionKind string

const (
	ActionPending   ActionKind = "pending" // 占位行，等待投票
	ActionApproved  ActionKind = "approved"
	ActionRejected  ActionKind = "rejected"
	ActionDelegated ActionKind = "delegated"
	ActionEscalated ActionKind = "escalated"
)

// SystemActorID 调度器代表系统注入动作时使用的身份
const SystemActorID = "system"

// WorkflowDefinition 工作流定义
// 同一 page 下同时至多一个 is_active && is_default 的版本，
// 新版本只会取代旧版本，不会删除，保证在途请求不受影响。
type WorkflowDefinition struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	PageID string `json:"pageId" gorm:"size:100;not null;index"` // 业务实体类型，如 leave_request

	Name         string       `json:"name" gorm:"size:255;not null"`
	Description  string       `json:"description" gorm:"type:text"`
	WorkflowType WorkflowType `json:"workflowType" gorm:"size:50;not null;default:sequential"`

	IsDefault bool `json:"isDefault" gorm:"default:true"`
	IsActive  bool `json:"isActive" gorm:"default:true"`
	Version   int  `json:"version" gorm:"not null;default:1"`

	Steps []WorkflowStep `json:"steps" gorm:"foreignKey:WorkflowID;references:ID"`

	CreatedBy string    `json:"createdBy" gorm:"size:100"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

func (WorkflowDefinition) TableName() string {
	return "workflow_definitions"
}

// WorkflowStep 工作流步骤
type WorkflowStep struct {
	ID         string `json:"id" gorm:"primaryKey;type:uuid"`
	WorkflowID string `json:"workflowId" gorm:"type:uuid;not null;index"`

	StepOrder int    `json:"stepOrder" gorm:"not null"` // 从 1 开始，定义内连续且唯一
	StepName  string `json:"stepName" gorm:"size:255;not null"`

	ApproverType ApproverType `json:"approverType" gorm:"size:50;not null;default:user"`
	ApproverIDs  []string     `json:"approverIds" gorm:"type:jsonb;serializer:json"` // approver_type=user 时的审批人列表

	RequiredApprovals int `json:"requiredApprovals" gorm:"not null;default:1"` // 满足步骤所需票数

	// 计时规则，单位小时，0 表示未设置。
	// 校验保证 escalation_after_hours < auto_approve_after_hours。
	AutoApproveAfterHours int    `json:"autoApproveAfterHours" gorm:"default:0"`
	EscalationAfterHours  int    `json:"escalationAfterHours" gorm:"default:0"`
	EscalationTo          string `json:"escalationTo" gorm:"size:100"`

	// 条件工作流的步骤谓词，针对 request_data 求值，空表示无条件命中
	Conditions string `json:"conditions" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

func (WorkflowStep) TableName() string {
	return "workflow_steps"
}

// WorkflowPage 当前版本指针表：page_id -> current_workflow_id
// 显式指针避免了对 is_active/is_default 的全表扫描，
// 也是"在途请求对管理端编辑免疫"的落点。
type WorkflowPage struct {
	PageID            string    `json:"pageId" gorm:"primaryKey;size:100"`
	CurrentWorkflowID string    `json:"currentWorkflowId" gorm:"type:uuid;not null"`
	UpdatedAt         time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

func (WorkflowPage) TableName() string {
	return "workflow_pages"
}

// ApprovalRequest 审批请求
// 创建时冻结对工作流版本的引用，流转中不再重新解析。
type ApprovalRequest struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	RequestNo string `json:"requestNo" gorm:"size:50;not null;uniqueIndex"`

	PageID      string `json:"pageId" gorm:"size:100;not null;index"`
	EntityID    string `json:"entityId" gorm:"size:100;index"` // 发起审批的业务记录
	RequesterID string `json:"requesterId" gorm:"size:100;not null;index"`
	WorkflowID  string `json:"workflowId" gorm:"type:uuid;not null;index"` // 版本快照引用

	Status      RequestStatus `json:"status" gorm:"size:50;not null;default:pending;index"`
	CurrentStep int           `json:"currentStep" gorm:"not null;default:1"`
	Priority    string        `json:"priority" gorm:"size:50;default:normal"`

	// 对引擎不透明的业务载荷，仅用于条件路由
	RequestData map[string]any `json:"requestData" gorm:"type:jsonb;serializer:json"`

	// 结构性故障（如审批人无法解析）只标记阻滞，不终止请求
	Stalled     bool   `json:"stalled" gorm:"default:false"`
	StallReason string `json:"stallReason" gorm:"type:text"`

	// 乐观锁版本号，所有状态迁移经 CAS 更新
	LockVersion int `json:"-" gorm:"not null;default:0"`

	StepEnteredAt time.Time  `json:"stepEnteredAt"`
	DueDate       *time.Time `json:"dueDate"`
	CreatedAt     time.Time  `json:"createdAt" gorm:"not null;autoCreateTime;index"`
	UpdatedAt     time.Time  `json:"updatedAt" gorm:"not null;autoUpdateTime"`
	CompletedAt   *time.Time `json:"completedAt"` // status=pending 时恒为空
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// ApprovalAction 审批动作，追加式账本
// 进入步骤时为每个审批人生成一条 pending 占位行，
// 占位行是唯一可变的单元，且只会被翻转为终值一次。
type ApprovalAction struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	RequestID string `json:"requestId" gorm:"type:uuid;not null;index"`
	StepID    string `json:"stepId" gorm:"type:uuid;not null;index"`
	StepOrder int    `json:"stepOrder" gorm:"not null"`

	ApproverID string     `json:"approverId" gorm:"size:100;not null;index"`
	Action     ActionKind `json:"action" gorm:"size:50;not null;default:pending"`
	ActedBy    string     `json:"actedBy" gorm:"size:100"`   // 翻转占位行的身份，调度器注入时为 system
	Comments   string     `json:"comments" gorm:"type:text"` // 拒绝时必填
	ActionDate *time.Time `json:"actionDate"`                // 占位行翻转时间

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

func (ApprovalAction) TableName() string {
	return "approval_actions"
}

// RequestSequence 请求编号序列表，按前缀月度累加
type RequestSequence struct {
	Prefix  string `gorm:"primaryKey;size:50"`
	LastSeq int64  `gorm:"not null;default:0"`
}

func (RequestSequence) TableName() string {
	return "approval_request_sequences"
}

// RequestDetails 请求详情（请求 + 按时间排序的动作账本）
type RequestDetails struct {
	Request *ApprovalRequest  `json:"request"`
	Steps   []WorkflowStep    `json:"steps"`
	Actions []*ApprovalAction `json:"actions"`
}

// AutoMigrate 迁移审批引擎相关表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&WorkflowDefinition{},
		&WorkflowStep{},
		&WorkflowPage{},
		&ApprovalRequest{},
		&ApprovalAction{},
		&RequestSequence{},
	)
}

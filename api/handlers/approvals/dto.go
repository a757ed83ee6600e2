package approvals

// ActionRequest 审批动作请求
type ActionRequest struct {
	Decision   string `json:"decision" binding:"required,oneof=approved rejected delegated escalated"`
	Comments   string `json:"comments"`    // 拒绝时必填
	DelegateTo string `json:"delegate_to"` // 委派/上报目标
}

// CancelRequest 取消审批请求
type CancelRequest struct {
	Reason string `json:"reason"`
}

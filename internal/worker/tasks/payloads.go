package tasks

import "time"

// 任务类型
const (
	TypeScanDeadlines        = "approval:scan_deadlines"
	TypeDispatchNotification = "notification:dispatch"
)

// ScanDeadlinesPayload 超时扫描任务载荷
type ScanDeadlinesPayload struct {
	TriggeredAt time.Time `json:"triggered_at"`
}

// DispatchNotificationPayload 审批事件通知投递载荷
type DispatchNotificationPayload struct {
	RequestID string `json:"request_id"`
	RequestNo string `json:"request_no"`
	PageID    string `json:"page_id"`
	EntityID  string `json:"entity_id"`
	Status    string `json:"status"`
	StepName  string `json:"step_name"`
	ActorID   string `json:"actor_id"`
	Comment   string `json:"comment"`
}

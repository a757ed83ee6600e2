package leave

// CreateLeaveRequest 创建请假单请求
type CreateLeaveRequest struct {
	Type      string  `json:"type" binding:"required,oneof=annual sick personal marriage maternity"`
	StartDate string  `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate   string  `json:"end_date" binding:"required"`   // YYYY-MM-DD
	Days      float64 `json:"days" binding:"required,gt=0"`
	Reason    string  `json:"reason"`
	Priority  string  `json:"priority" binding:"omitempty,oneof=low normal high"`
}

// SetBalanceRequest 设置假期额度请求
type SetBalanceRequest struct {
	EmployeeID string  `json:"employee_id" binding:"required"`
	Type       string  `json:"type" binding:"required,oneof=annual sick personal marriage maternity"`
	Year       int     `json:"year" binding:"required,min=2000"`
	Total      float64 `json:"total" binding:"required,gte=0"`
}

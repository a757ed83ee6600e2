// Package leave 提供请假申请与假期余额管理
package leave

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PageID 请假审批页面标识
const PageID = "leave_request"

// LeaveType 假期类型
type LeaveType string

const (
	LeaveAnnual    LeaveType = "annual"    // 年假
	LeaveSick      LeaveType = "sick"      // 病假
	LeavePersonal  LeaveType = "personal"  // 事假
	LeaveMarriage  LeaveType = "marriage"  // 婚假
	LeaveMaternity LeaveType = "maternity" // 产假
)

// RequestStatus 请假单状态，跟随审批请求终态
type RequestStatus string

const (
	StatusDraft     RequestStatus = "draft"     // 已创建但审批实例化失败
	StatusSubmitted RequestStatus = "submitted" // 审批进行中
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusExpired   RequestStatus = "expired"
)

// LeaveRequest 请假单
type LeaveRequest struct {
	ID         string         `json:"id" gorm:"primaryKey;type:uuid"`
	EmployeeID string         `json:"employeeId" gorm:"size:100;not null;index"`
	Type       LeaveType      `json:"type" gorm:"size:50;not null"`
	StartDate  datatypes.Date `json:"startDate" gorm:"not null"`
	EndDate    datatypes.Date `json:"endDate" gorm:"not null"`
	Days       float64        `json:"days" gorm:"not null"` // 支持半天
	Reason     string         `json:"reason" gorm:"type:text"`

	Status            RequestStatus `json:"status" gorm:"size:50;not null;default:draft;index"`
	ApprovalRequestID string        `json:"approvalRequestId" gorm:"type:uuid;index"`
	ApprovalRequestNo string        `json:"approvalRequestNo" gorm:"size:50"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (LeaveRequest) TableName() string {
	return "leave_requests"
}

// LeaveBalance 假期余额，按员工与假期类型逐年记账
type LeaveBalance struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	EmployeeID string    `json:"employeeId" gorm:"size:100;not null;uniqueIndex:idx_balance_emp_type_year"`
	Type       LeaveType `json:"type" gorm:"size:50;not null;uniqueIndex:idx_balance_emp_type_year"`
	Year       int       `json:"year" gorm:"not null;uniqueIndex:idx_balance_emp_type_year"`
	Total      float64   `json:"total" gorm:"not null;default:0"`
	Used       float64   `json:"used" gorm:"not null;default:0"`

	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (LeaveBalance) TableName() string {
	return "leave_balances"
}

// Remaining 剩余可用天数
func (b LeaveBalance) Remaining() float64 {
	return b.Total - b.Used
}

// AutoMigrate 迁移请假相关表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&LeaveRequest{}, &LeaveBalance{})
}

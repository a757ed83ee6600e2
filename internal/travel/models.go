// Package travel 提供差旅申请管理
package travel

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PageID 差旅审批页面标识
const PageID = "travel_request"

// RequestStatus 差旅单状态，跟随审批请求终态
type RequestStatus string

const (
	StatusDraft     RequestStatus = "draft"
	StatusSubmitted RequestStatus = "submitted"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
	StatusExpired   RequestStatus = "expired"
)

// TravelRequest 差旅单
// 预估费用参与审批条件路由，高额差旅走更长的审批链
type TravelRequest struct {
	ID            string         `json:"id" gorm:"primaryKey;type:uuid"`
	EmployeeID    string         `json:"employeeId" gorm:"size:100;not null;index"`
	Destination   string         `json:"destination" gorm:"size:255;not null"`
	Purpose       string         `json:"purpose" gorm:"type:text"`
	StartDate     datatypes.Date `json:"startDate" gorm:"not null"`
	EndDate       datatypes.Date `json:"endDate" gorm:"not null"`
	EstimatedCost float64        `json:"estimatedCost" gorm:"not null"`

	Status            RequestStatus `json:"status" gorm:"size:50;not null;default:draft;index"`
	ApprovalRequestID string        `json:"approvalRequestId" gorm:"type:uuid;index"`
	ApprovalRequestNo string        `json:"approvalRequestNo" gorm:"size:50"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (TravelRequest) TableName() string {
	return "travel_requests"
}

// AutoMigrate 迁移差旅相关表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&TravelRequest{})
}

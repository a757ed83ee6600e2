package travel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hros/internal/approval"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service 差旅业务服务
type Service struct {
	db      *gorm.DB
	manager *approval.Manager
	logger  *zap.Logger
}

// NewService 创建差旅服务
func NewService(db *gorm.DB, manager *approval.Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, manager: manager, logger: logger}
}

// CreateInput 差旅申请参数
type CreateInput struct {
	EmployeeID    string
	Destination   string
	Purpose       string
	StartDate     time.Time
	EndDate       time.Time
	EstimatedCost float64
	Priority      string
}

// Create 创建差旅单并发起审批
// 预估费用写入审批载荷，条件工作流据此路由到不同审批链
func (s *Service) Create(ctx context.Context, input CreateInput) (*TravelRequest, error) {
	if input.EmployeeID == "" {
		return nil, fmt.Errorf("员工 ID 不能为空")
	}
	if input.Destination == "" {
		return nil, fmt.Errorf("目的地不能为空")
	}
	if input.EstimatedCost < 0 {
		return nil, fmt.Errorf("预估费用不能为负数")
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, fmt.Errorf("结束日期不能早于开始日期")
	}

	req := &TravelRequest{
		ID:            uuid.NewString(),
		EmployeeID:    input.EmployeeID,
		Destination:   input.Destination,
		Purpose:       input.Purpose,
		StartDate:     toDate(input.StartDate),
		EndDate:       toDate(input.EndDate),
		EstimatedCost: input.EstimatedCost,
		Status:        StatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, fmt.Errorf("创建差旅单失败: %w", err)
	}

	due := input.StartDate
	approvalReq, err := s.manager.Instantiate(ctx, approval.InstantiateInput{
		PageID:      PageID,
		RequesterID: input.EmployeeID,
		EntityID:    req.ID,
		Priority:    input.Priority,
		DueDate:     &due,
		Payload: map[string]any{
			"destination":    input.Destination,
			"estimated_cost": input.EstimatedCost,
			"purpose":        input.Purpose,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("发起差旅审批失败: %w", err)
	}

	updates := map[string]any{
		"status":              StatusSubmitted,
		"approval_request_id": approvalReq.ID,
		"approval_request_no": approvalReq.RequestNo,
	}
	if err := s.db.WithContext(ctx).Model(req).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新差旅单状态失败: %w", err)
	}
	req.Status = StatusSubmitted
	req.ApprovalRequestID = approvalReq.ID
	req.ApprovalRequestNo = approvalReq.RequestNo

	s.logger.Info("差旅单已提交审批",
		zap.String("travelID", req.ID),
		zap.String("requestNo", approvalReq.RequestNo),
		zap.Float64("estimatedCost", input.EstimatedCost),
	)
	return req, nil
}

// GetRequest 查询差旅单
func (s *Service) GetRequest(ctx context.Context, id string) (*TravelRequest, error) {
	var req TravelRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("差旅单不存在: %s", id)
		}
		return nil, fmt.Errorf("查询差旅单失败: %w", err)
	}
	return &req, nil
}

// ListRequests 分页查询员工的差旅单
func (s *Service) ListRequests(ctx context.Context, employeeID string, page, pageSize int) ([]TravelRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&TravelRequest{})
	if employeeID != "" {
		query = query.Where("employee_id = ?", employeeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计差旅单数量失败: %w", err)
	}

	var requests []TravelRequest
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询差旅单列表失败: %w", err)
	}
	return requests, total, nil
}

// HandleApprovalEvent 消费审批终态事件，回写差旅单状态
func (s *Service) HandleApprovalEvent(ctx context.Context, evt approval.Event) error {
	if evt.PageID != PageID {
		return nil
	}

	status, terminal := mapStatus(evt.Status)
	if !terminal {
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&TravelRequest{}).
		Where("id = ? AND status = ?", evt.EntityID, StatusSubmitted).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("更新差旅单状态失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Warn("审批事件未命中待处理差旅单", zap.String("entityID", evt.EntityID))
	}
	return nil
}

func mapStatus(status approval.RequestStatus) (RequestStatus, bool) {
	switch status {
	case approval.StatusApproved:
		return StatusApproved, true
	case approval.StatusRejected:
		return StatusRejected, true
	case approval.StatusCancelled:
		return StatusCancelled, true
	case approval.StatusExpired:
		return StatusExpired, true
	default:
		return "", false
	}
}

func toDate(t time.Time) datatypes.Date {
	return datatypes.Date(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
}

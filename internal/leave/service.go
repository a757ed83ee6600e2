package leave

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

// Service 请假业务服务，创建请假单并发起审批
type Service struct {
	db      *gorm.DB
	manager *approval.Manager
	logger  *zap.Logger
}

// NewService 创建请假服务
func NewService(db *gorm.DB, manager *approval.Manager, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, manager: manager, logger: logger}
}

// CreateInput 请假申请参数
type CreateInput struct {
	EmployeeID string
	Type       LeaveType
	StartDate  time.Time
	EndDate    time.Time
	Days       float64
	Reason     string
	Priority   string
}

// Create 创建请假单并发起审批
// 先校验余额充足，审批通过时才实际扣减
func (s *Service) Create(ctx context.Context, input CreateInput) (*LeaveRequest, error) {
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}

	req := &LeaveRequest{
		ID:         uuid.NewString(),
		EmployeeID: input.EmployeeID,
		Type:       input.Type,
		StartDate:  toDate(input.StartDate),
		EndDate:    toDate(input.EndDate),
		Days:       input.Days,
		Reason:     input.Reason,
		Status:     StatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, fmt.Errorf("创建请假单失败: %w", err)
	}

	due := input.EndDate
	approvalReq, err := s.manager.Instantiate(ctx, approval.InstantiateInput{
		PageID:      PageID,
		RequesterID: input.EmployeeID,
		EntityID:    req.ID,
		Priority:    input.Priority,
		DueDate:     &due,
		Payload: map[string]any{
			"leave_type": string(input.Type),
			"days":       input.Days,
			"reason":     input.Reason,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("发起请假审批失败: %w", err)
	}

	updates := map[string]any{
		"status":              StatusSubmitted,
		"approval_request_id": approvalReq.ID,
		"approval_request_no": approvalReq.RequestNo,
	}
	if err := s.db.WithContext(ctx).Model(req).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新请假单状态失败: %w", err)
	}
	req.Status = StatusSubmitted
	req.ApprovalRequestID = approvalReq.ID
	req.ApprovalRequestNo = approvalReq.RequestNo

	s.logger.Info("请假单已提交审批",
		zap.String("leaveID", req.ID),
		zap.String("requestNo", approvalReq.RequestNo),
	)
	return req, nil
}

func (s *Service) validate(ctx context.Context, input CreateInput) error {
	if input.EmployeeID == "" {
		return fmt.Errorf("员工 ID 不能为空")
	}
	switch input.Type {
	case LeaveAnnual, LeaveSick, LeavePersonal, LeaveMarriage, LeaveMaternity:
	default:
		return fmt.Errorf("不支持的假期类型: %s", input.Type)
	}
	if input.Days <= 0 {
		return fmt.Errorf("请假天数必须大于 0")
	}
	if input.EndDate.Before(input.StartDate) {
		return fmt.Errorf("结束日期不能早于开始日期")
	}

	// 年假和事假需要余额充足，病假等不占额度
	if input.Type == LeaveAnnual || input.Type == LeavePersonal {
		balance, err := s.GetBalance(ctx, input.EmployeeID, input.Type, input.StartDate.Year())
		if err != nil {
			return err
		}
		if balance.Remaining() < input.Days {
			return fmt.Errorf("假期余额不足: 剩余 %.1f 天，申请 %.1f 天", balance.Remaining(), input.Days)
		}
	}
	return nil
}

// GetRequest 查询请假单
func (s *Service) GetRequest(ctx context.Context, id string) (*LeaveRequest, error) {
	var req LeaveRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("请假单不存在: %s", id)
		}
		return nil, fmt.Errorf("查询请假单失败: %w", err)
	}
	return &req, nil
}

// ListRequests 分页查询员工的请假单
func (s *Service) ListRequests(ctx context.Context, employeeID string, page, pageSize int) ([]LeaveRequest, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&LeaveRequest{})
	if employeeID != "" {
		query = query.Where("employee_id = ?", employeeID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计请假单数量失败: %w", err)
	}

	var requests []LeaveRequest
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询请假单列表失败: %w", err)
	}
	return requests, total, nil
}

// GetBalance 查询假期余额，不存在时返回零值记录
func (s *Service) GetBalance(ctx context.Context, employeeID string, leaveType LeaveType, year int) (*LeaveBalance, error) {
	var balance LeaveBalance
	err := s.db.WithContext(ctx).
		Where("employee_id = ? AND type = ? AND year = ?", employeeID, leaveType, year).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &LeaveBalance{EmployeeID: employeeID, Type: leaveType, Year: year}, nil
		}
		return nil, fmt.Errorf("查询假期余额失败: %w", err)
	}
	return &balance, nil
}

// SetBalance 设置员工年度假期额度
func (s *Service) SetBalance(ctx context.Context, employeeID string, leaveType LeaveType, year int, total float64) error {
	balance := LeaveBalance{
		EmployeeID: employeeID,
		Type:       leaveType,
		Year:       year,
	}
	err := s.db.WithContext(ctx).
		Where("employee_id = ? AND type = ? AND year = ?", employeeID, leaveType, year).
		FirstOrCreate(&balance).Error
	if err != nil {
		return fmt.Errorf("初始化假期余额失败: %w", err)
	}
	err = s.db.WithContext(ctx).
		Model(&LeaveBalance{}).
		Where("id = ?", balance.ID).
		Update("total", total).Error
	if err != nil {
		return fmt.Errorf("更新假期额度失败: %w", err)
	}
	return nil
}

// HandleApprovalEvent 消费审批终态事件，回写请假单状态并扣减余额
func (s *Service) HandleApprovalEvent(ctx context.Context, evt approval.Event) error {
	if evt.PageID != PageID {
		return nil
	}

	status, terminal := mapStatus(evt.Status)
	if !terminal {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req LeaveRequest
		if err := tx.First(&req, "id = ?", evt.EntityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 审批事件可能来自其它系统创建的实体，忽略
				s.logger.Warn("审批事件对应的请假单不存在", zap.String("entityID", evt.EntityID))
				return nil
			}
			return fmt.Errorf("查询请假单失败: %w", err)
		}
		if req.Status != StatusSubmitted {
			// 终态只回写一次
			return nil
		}

		if err := tx.Model(&req).Update("status", status).Error; err != nil {
			return fmt.Errorf("更新请假单状态失败: %w", err)
		}

		if status == StatusApproved && (req.Type == LeaveAnnual || req.Type == LeavePersonal) {
			year := time.Time(req.StartDate).Year()
			result := tx.Model(&LeaveBalance{}).
				Where("employee_id = ? AND type = ? AND year = ?", req.EmployeeID, req.Type, year).
				Update("used", gorm.Expr("used + ?", req.Days))
			if result.Error != nil {
				return fmt.Errorf("扣减假期余额失败: %w", result.Error)
			}
		}
		return nil
	})
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

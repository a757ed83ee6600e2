package org

import (
	"context"
	"errors"
	"fmt"

	"hros/internal/approval"
	"hros/internal/common"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Directory 员工目录服务
// 同时实现审批引擎的上级解析接口与通知收件人解析接口
type Directory struct {
	*common.BaseService
	db     *gorm.DB
	logger *zap.Logger
}

// NewDirectory 创建员工目录服务
func NewDirectory(db *gorm.DB, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		BaseService: common.NewBaseService(db),
		db:          db,
		logger:      logger,
	}
}

// DirectManager 返回员工的直属上级 ID
// 员工不存在、无上级或上级已离职时返回空串，由调用方判定为无法解析
func (d *Directory) DirectManager(ctx context.Context, userID string) (string, error) {
	var emp Employee
	err := d.db.WithContext(ctx).First(&emp, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("查询员工失败: %w", err)
	}
	if emp.ManagerID == "" {
		return "", nil
	}

	var mgr Employee
	err = d.db.WithContext(ctx).First(&mgr, "id = ?", emp.ManagerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("查询上级失败: %w", err)
	}
	if mgr.Status == EmployeeInactive {
		return "", nil
	}
	return mgr.ID, nil
}

// GetEmployee 按 ID 查询员工
func (d *Directory) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	var emp Employee
	if err := d.db.WithContext(ctx).First(&emp, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("员工不存在: %s", id)
		}
		return nil, fmt.Errorf("查询员工失败: %w", err)
	}
	return &emp, nil
}

// ListEmployees 分页查询员工，支持部门与状态过滤
func (d *Directory) ListEmployees(ctx context.Context, department string, status EmployeeStatus, page, pageSize int) ([]Employee, int64, error) {
	query := d.db.WithContext(ctx).Model(&Employee{}).
		Scopes(common.ByDepartment(department), common.ByStatus(string(status)))

	total, err := d.CountWithQuery(ctx, query.Session(&gorm.Session{}))
	if err != nil {
		return nil, 0, fmt.Errorf("统计员工数量失败: %w", err)
	}

	var employees []Employee
	err = d.ApplyPagination(query.Order("id"), page, pageSize).Find(&employees).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询员工列表失败: %w", err)
	}
	return employees, total, nil
}

// SaveEmployee 新建或更新员工档案
func (d *Directory) SaveEmployee(ctx context.Context, emp *Employee) error {
	if emp.ID == "" || emp.Name == "" || emp.Email == "" {
		return fmt.Errorf("员工 ID、姓名和邮箱不能为空")
	}
	if emp.ManagerID == emp.ID {
		return fmt.Errorf("员工不能将自己设置为上级")
	}
	if emp.Status == "" {
		emp.Status = EmployeeActive
	}
	if err := d.db.WithContext(ctx).Save(emp).Error; err != nil {
		return fmt.Errorf("保存员工失败: %w", err)
	}
	return nil
}

// Recipients 解析审批事件的通知收件人邮箱
// 待审事件通知当前步骤的待处理审批人，终态事件通知申请人
func (d *Directory) Recipients(ctx context.Context, requestID string, status string) ([]string, error) {
	var userIDs []string

	if status == string(approval.StatusPending) {
		err := d.db.WithContext(ctx).
			Model(&approval.ApprovalAction{}).
			Where("request_id = ? AND action = ?", requestID, approval.ActionPending).
			Pluck("approver_id", &userIDs).Error
		if err != nil {
			return nil, fmt.Errorf("查询待处理审批人失败: %w", err)
		}
	} else {
		err := d.db.WithContext(ctx).
			Model(&approval.ApprovalRequest{}).
			Where("id = ?", requestID).
			Pluck("requester_id", &userIDs).Error
		if err != nil {
			return nil, fmt.Errorf("查询申请人失败: %w", err)
		}
	}

	if len(userIDs) == 0 {
		return nil, nil
	}

	var emails []string
	err := d.db.WithContext(ctx).
		Model(&Employee{}).
		Where("id IN ? AND status <> ?", userIDs, EmployeeInactive).
		Pluck("email", &emails).Error
	if err != nil {
		return nil, fmt.Errorf("查询收件人邮箱失败: %w", err)
	}
	return emails, nil
}

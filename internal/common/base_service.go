package common

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// BaseService 服务基类，封装通用的数据库操作方法
// 业务 Service 嵌入此基类来复用分页、计数等通用功能
type BaseService struct {
	DB *gorm.DB
}

// NewBaseService 创建BaseService实例
func NewBaseService(db *gorm.DB) *BaseService {
	return &BaseService{DB: db}
}

// ApplyPagination 应用分页条件
// page: 页码（从1开始）
// pageSize: 每页数量
func (s *BaseService) ApplyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return query.Offset(offset).Limit(pageSize)
}

// ApplySorting 应用排序条件
// sortBy: 排序字段
// sortOrder: 排序方向 (asc/desc)
// allowedFields: 允许的排序字段白名单
func (s *BaseService) ApplySorting(query *gorm.DB, sortBy, sortOrder string, allowedFields []string) *gorm.DB {
	if sortBy == "" {
		return query.Order("created_at DESC")
	}

	if len(allowedFields) > 0 {
		allowed := false
		for _, field := range allowedFields {
			if field == sortBy {
				allowed = true
				break
			}
		}
		if !allowed {
			return query.Order("created_at DESC")
		}
	}

	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	return query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))
}

// ApplyStatusFilter 应用状态过滤
func (s *BaseService) ApplyStatusFilter(query *gorm.DB, status string) *gorm.DB {
	if status != "" {
		return query.Where("status = ?", status)
	}
	return query
}

// Create 创建记录
func (s *BaseService) Create(ctx context.Context, model interface{}) error {
	return s.DB.WithContext(ctx).Create(model).Error
}

// Update 更新记录
func (s *BaseService) Update(ctx context.Context, model interface{}) error {
	return s.DB.WithContext(ctx).Save(model).Error
}

// Delete 删除记录（硬删除）
func (s *BaseService) Delete(ctx context.Context, model interface{}) error {
	return s.DB.WithContext(ctx).Delete(model).Error
}

// Exists 检查记录是否存在
func (s *BaseService) Exists(ctx context.Context, model interface{}, condition string, args ...interface{}) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(model).Where(condition, args...).Count(&count).Error
	return count > 0, err
}

// Transaction 执行事务
func (s *BaseService) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}

// Count 统计记录数
func (s *BaseService) Count(ctx context.Context, model interface{}, condition string, args ...interface{}) (int64, error) {
	var count int64
	query := s.DB.WithContext(ctx).Model(model)
	if condition != "" {
		query = query.Where(condition, args...)
	}
	err := query.Count(&count).Error
	return count, err
}

// CountWithQuery 使用自定义查询统计
func (s *BaseService) CountWithQuery(ctx context.Context, query *gorm.DB) (int64, error) {
	var count int64
	err := query.WithContext(ctx).Count(&count).Error
	return count, err
}

// BatchCreate 批量创建记录
func (s *BaseService) BatchCreate(ctx context.Context, models interface{}, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	return s.DB.WithContext(ctx).CreateInBatches(models, batchSize).Error
}

package common

import "gorm.io/gorm"

// ByStatus 按状态过滤
// 使用方法：db.Scopes(common.ByStatus("pending")).Find(&requests)
func ByStatus(status string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if status == "" {
			return db
		}
		return db.Where("status = ?", status)
	}
}

// ByDepartment 按部门过滤
// 使用方法：db.Scopes(common.ByDepartment("研发部")).Find(&employees)
func ByDepartment(department string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if department == "" {
			return db
		}
		return db.Where("department = ?", department)
	}
}

// ActiveOnly 仅查询活跃状态的记录
// 使用方法：db.Scopes(common.ActiveOnly()).Find(&employees)
func ActiveOnly() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", "active")
	}
}

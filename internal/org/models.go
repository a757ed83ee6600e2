// Package org 提供员工目录：汇报关系解析与通讯信息查询
package org

import (
	"hros/internal/common"

	"gorm.io/gorm"
)

// EmployeeStatus 员工状态
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeOnLeave  EmployeeStatus = "on_leave"
	EmployeeInactive EmployeeStatus = "inactive" // 已离职
)

// Employee 员工档案
type Employee struct {
	ID         string         `json:"id" gorm:"primaryKey;size:100"`
	Name       string         `json:"name" gorm:"size:255;not null"`
	Email      string         `json:"email" gorm:"size:255;not null;uniqueIndex"`
	Department string         `json:"department" gorm:"size:255;index"`
	Title      string         `json:"title" gorm:"size:255"`
	ManagerID  string         `json:"managerId" gorm:"size:100;index"` // 空表示无上级（组织根节点）
	Status     EmployeeStatus `json:"status" gorm:"size:50;not null;default:active;index"`

	common.TimestampModel
}

func (Employee) TableName() string {
	return "employees"
}

// AutoMigrate 迁移员工目录表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Employee{})
}

package model

import (
	"time"

	"gorm.io/gorm"
)

// Task is a tenant-owned work item belonging to a project.
type Task struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"index;not null"`
	ProjectID   uint           `json:"project_id" gorm:"index;not null"`
	Title       string         `json:"title" gorm:"type:varchar(200);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Visibility  string         `json:"visibility" gorm:"type:varchar(20);not null;default:'workspace'"`
	Status      string         `json:"status" gorm:"type:varchar(20);not null;default:'open'"`
	CreatedBy   uint           `json:"created_by" gorm:"index;not null"`
	AssigneeID  *uint          `json:"assignee_id,omitempty" gorm:"index"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

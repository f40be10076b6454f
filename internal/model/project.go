package model

import (
	"time"

	"gorm.io/gorm"
)

// Resource visibility. A private resource is readable only by its creator,
// explicit grantees, or tenant admins.
const (
	VisibilityWorkspace = "workspace"
	VisibilityPrivate   = "private"
)

// Project is a tenant-owned work item grouping tasks.
type Project struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	TenantID    uint           `json:"tenant_id" gorm:"index;not null"`
	WorkspaceID uint           `json:"workspace_id" gorm:"index"`
	Name        string         `json:"name" gorm:"type:varchar(200);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Visibility  string         `json:"visibility" gorm:"type:varchar(20);not null;default:'workspace'"`
	Status      string         `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	CreatedBy   uint           `json:"created_by" gorm:"index;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

package model

import (
	"time"

	"gorm.io/gorm"
)

// Workspace is an organizational grouping within a tenant. It is NOT a
// visibility boundary; visibility is decided by the access resolver and
// the private visibility filter, never by workspace membership.
type Workspace struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	IsPrimary bool           `json:"is_primary" gorm:"default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

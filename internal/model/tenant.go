package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant status values. Suspended and deleted tenants reject logins,
// impersonation and provisioning.
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
	TenantStatusDeleted   = "deleted"
)

// Tenant is the top-level isolation boundary. Every tenant-owned row
// carries a non-null tenant id equal to its tenant's id; cross-tenant
// references are forbidden and rejected by the tenancy guard.
type Tenant struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);uniqueIndex"`
	Status    string         `json:"status" gorm:"type:varchar(20);not null;default:'active'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsActive reports whether the tenant may be logged into or impersonated.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

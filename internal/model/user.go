package model

import (
	"time"

	"gorm.io/gorm"
)

// User roles. A super_user operates across tenants (platform staff);
// admin is tenant-wide; employee and client are regular members.
const (
	RoleSuperUser = "super_user"
	RoleAdmin     = "admin"
	RoleEmployee  = "employee"
	RoleClient    = "client"
)

// User represents the user model stored in the database. TenantID is
// nullable only transiently for orphaned users awaiting tenant assignment.
type User struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  *uint          `json:"tenant_id,omitempty" gorm:"index"`
	Email     string         `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	Password  string         `json:"-" gorm:"type:varchar(255)"`
	Name      string         `json:"name" gorm:"type:varchar(100)"`
	Role      string         `json:"role" gorm:"type:varchar(20);not null;default:'employee'"`
	IsActive  bool           `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsTenantAdmin reports whether the user holds a tenant-wide admin role.
func (u *User) IsTenantAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperUser
}

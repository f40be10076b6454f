package model

import (
	"time"
)

// Grant roles on a task or project. An "admin" grant allows managing the
// resource's other grants; viewer and editor only affect the resource
// itself. Roles are replaced, never stacked.
const (
	GrantRoleViewer = "viewer"
	GrantRoleEditor = "editor"
	GrantRoleAdmin  = "admin"
)

// ValidGrantRole reports whether role is one of the accepted grant roles.
func ValidGrantRole(role string) bool {
	switch role {
	case GrantRoleViewer, GrantRoleEditor, GrantRoleAdmin:
		return true
	}
	return false
}

// TaskAccess is an explicit grant binding a user to a task with a role.
// The composite unique index backs the one-grant-per-(task,user) invariant;
// the application-level existence check is only an early exit.
type TaskAccess struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	TenantID        uint      `json:"tenant_id" gorm:"index;not null"`
	TaskID          uint      `json:"task_id" gorm:"not null;uniqueIndex:idx_task_access_task_user"`
	UserID          uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_task_access_task_user"`
	Role            string    `json:"role" gorm:"type:varchar(20);not null;default:'viewer'"`
	InvitedByUserID uint      `json:"invited_by_user_id" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProjectAccess is an explicit grant binding a user to a project with a role.
type ProjectAccess struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	TenantID        uint      `json:"tenant_id" gorm:"index;not null"`
	ProjectID       uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_project_access_project_user"`
	UserID          uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_project_access_project_user"`
	Role            string    `json:"role" gorm:"type:varchar(20);not null;default:'viewer'"`
	InvitedByUserID uint      `json:"invited_by_user_id" gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

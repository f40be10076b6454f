package model

import (
	"time"
)

// Audit event types written on privileged or cross-tenant actions.
const (
	AuditImpersonationStart = "impersonation_start"
	AuditImpersonationStop  = "impersonation_stop"
	AuditAccessGranted      = "access_granted"
	AuditAccessRoleChanged  = "access_role_changed"
	AuditAccessRevoked      = "access_revoked"
	AuditTenantProvisioned  = "tenant_provisioned"
	AuditUserProvisioned    = "user_provisioned"
)

// TenantAuditEvent is an append-only log entry. Normal operation never
// mutates or deletes rows of this table.
type TenantAuditEvent struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TenantID    uint      `json:"tenant_id" gorm:"index;not null"`
	ActorUserID uint      `json:"actor_user_id" gorm:"index;not null"`
	EventType   string    `json:"event_type" gorm:"type:varchar(50);not null"`
	Message     string    `json:"message" gorm:"type:text"`
	Metadata    string    `json:"metadata" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Package audit appends tenant audit events for privileged and
// cross-tenant actions. Audit writes never block the action they describe:
// a failed write is logged and swallowed, which means an audit gap is
// possible under database failure. That tradeoff is accepted here; it is
// not applied to the primary data paths.
package audit

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"project-service/internal/model"
)

// Recorder appends TenantAuditEvent rows.
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{db: db, log: log}
}

// Record appends an audit event. Events missing an actor, tenant or type
// are dropped with a log entry; they would be unattributable.
func (r *Recorder) Record(ctx context.Context, event *model.TenantAuditEvent) {
	if event.TenantID == 0 || event.ActorUserID == 0 || event.EventType == "" {
		r.log.Warn("dropping malformed audit event",
			zap.Uint("tenant_id", event.TenantID),
			zap.Uint("actor_user_id", event.ActorUserID),
			zap.String("event_type", event.EventType))
		return
	}

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		r.log.Error("audit write failed",
			zap.String("event_type", event.EventType),
			zap.Uint("tenant_id", event.TenantID),
			zap.Error(err))
	}
}

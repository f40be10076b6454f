package impersonation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"project-service/internal/audit"
	"project-service/internal/model"
	"project-service/pkg/session"
	"project-service/prometheus"
)

// Precondition errors. No session mutation occurs before all preconditions
// pass.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrTenantNotActive = errors.New("tenant is suspended or deleted")
	ErrUserInactive    = errors.New("user is not active")
	ErrUserHasNoTenant = errors.New("user has no tenant assigned")
)

// Actor identifies the real super-user behind an impersonation request.
type Actor struct {
	UserID uint
	Email  string
}

// Manager drives the impersonation session state machine.
type Manager struct {
	db    *gorm.DB
	store *session.Store
	audit *audit.Recorder
	log   *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(db *gorm.DB, store *session.Store, recorder *audit.Recorder, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{db: db, store: store, audit: recorder, log: log}
}

// StartTenant begins impersonating a tenant context without assuming a
// specific user identity.
func (m *Manager) StartTenant(ctx context.Context, c echo.Context, actor Actor, tenantID uint) (State, error) {
	var tenant model.Tenant
	if err := m.db.WithContext(ctx).First(&tenant, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Idle(), ErrTenantNotFound
		}
		return Idle(), err
	}
	if !tenant.IsActive() {
		return Idle(), ErrTenantNotActive
	}

	next := State{
		State:                  StateImpersonating,
		OriginalSuperUserID:    actor.UserID,
		OriginalSuperUserEmail: actor.Email,
		ImpersonatedTenantID:   tenant.ID,
		StartedAt:              time.Now().UTC(),
	}
	return m.begin(ctx, c, actor, next, fmt.Sprintf("super-user %s started impersonating tenant %d", actor.Email, tenant.ID))
}

// StartUser begins impersonating a specific tenant user.
func (m *Manager) StartUser(ctx context.Context, c echo.Context, actor Actor, targetUserID uint) (State, error) {
	var user model.User
	if err := m.db.WithContext(ctx).First(&user, targetUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Idle(), ErrUserNotFound
		}
		return Idle(), err
	}
	if !user.IsActive {
		return Idle(), ErrUserInactive
	}
	if user.TenantID == nil {
		return Idle(), ErrUserHasNoTenant
	}

	var tenant model.Tenant
	if err := m.db.WithContext(ctx).First(&tenant, *user.TenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Idle(), ErrTenantNotFound
		}
		return Idle(), err
	}
	if !tenant.IsActive() {
		return Idle(), ErrTenantNotActive
	}

	next := State{
		State:                  StateImpersonating,
		OriginalSuperUserID:    actor.UserID,
		OriginalSuperUserEmail: actor.Email,
		ImpersonatedUserID:     user.ID,
		ImpersonatedUserEmail:  user.Email,
		ImpersonatedRole:       user.Role,
		ImpersonatedTenantID:   tenant.ID,
		StartedAt:              time.Now().UTC(),
	}
	return m.begin(ctx, c, actor, next, fmt.Sprintf("super-user %s started impersonating user %d in tenant %d", actor.Email, user.ID, tenant.ID))
}

// begin applies the idle -> impersonating transition, persists the session
// before anything is reported to the caller, then audits.
func (m *Manager) begin(ctx context.Context, c echo.Context, actor Actor, next State, message string) (State, error) {
	sess, err := m.store.Get(ctx, c)
	if err != nil {
		return Idle(), err
	}
	cur, err := loadState(sess)
	if err != nil {
		return Idle(), err
	}
	st, err := transition(cur, next)
	if err != nil {
		return cur, err
	}
	if err := saveState(sess, st); err != nil {
		return cur, err
	}
	if err := m.store.Save(ctx, c, sess); err != nil {
		return cur, err
	}

	prometheus.RecordImpersonationOperation("start")
	prometheus.ActiveImpersonationsGauge.Inc()
	m.log.Info("impersonation started",
		zap.Uint("actor_user_id", actor.UserID),
		zap.Uint("impersonated_tenant_id", st.ImpersonatedTenantID),
		zap.Uint("impersonated_user_id", st.ImpersonatedUserID))

	m.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    st.ImpersonatedTenantID,
		ActorUserID: actor.UserID,
		EventType:   model.AuditImpersonationStart,
		Message:     message,
		Metadata:    fmt.Sprintf(`{"impersonated_user_id":%d,"started_at":%q}`, st.ImpersonatedUserID, st.StartedAt.Format(time.RFC3339)),
	})
	return st, nil
}

// Exit ends the active impersonation session. Every impersonation field is
// removed from the session and the save is awaited before returning, so a
// crash between mutation and save cannot leave a half-exited state visible.
func (m *Manager) Exit(ctx context.Context, c echo.Context) (time.Duration, error) {
	sess, err := m.store.Get(ctx, c)
	if err != nil {
		return 0, err
	}
	cur, err := loadState(sess)
	if err != nil {
		return 0, err
	}
	st, err := transition(cur, Idle())
	if err != nil {
		return 0, err
	}

	duration := time.Since(cur.StartedAt)
	if err := saveState(sess, st); err != nil {
		return 0, err
	}
	if err := m.store.Save(ctx, c, sess); err != nil {
		return 0, err
	}

	prometheus.RecordImpersonationOperation("exit")
	prometheus.ActiveImpersonationsGauge.Dec()
	m.log.Info("impersonation exited",
		zap.Uint("actor_user_id", cur.OriginalSuperUserID),
		zap.Uint("impersonated_tenant_id", cur.ImpersonatedTenantID),
		zap.Duration("duration", duration))

	m.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    cur.ImpersonatedTenantID,
		ActorUserID: cur.OriginalSuperUserID,
		EventType:   model.AuditImpersonationStop,
		Message:     fmt.Sprintf("super-user %s stopped impersonating after %s", cur.OriginalSuperUserEmail, duration.Round(time.Second)),
		Metadata:    fmt.Sprintf(`{"impersonated_user_id":%d,"duration_seconds":%.0f}`, cur.ImpersonatedUserID, duration.Seconds()),
	})
	return duration, nil
}

// Status reflects exactly the fields present in the session. The returned
// TTL bounds how long an abandoned session can survive without an explicit
// exit; there is no other expiry audit mechanism.
func (m *Manager) Status(ctx context.Context, c echo.Context) (State, time.Duration, error) {
	sess, err := m.store.Get(ctx, c)
	if err != nil {
		return Idle(), 0, err
	}
	st, err := loadState(sess)
	if err != nil {
		return Idle(), 0, err
	}
	ttl, err := m.store.TTL(ctx, sess)
	if err != nil {
		return st, 0, err
	}
	prometheus.RecordImpersonationOperation("status")
	return st, ttl, nil
}

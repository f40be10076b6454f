package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"project-service/internal/access"
	"project-service/internal/audit"
	"project-service/internal/model"
	"project-service/internal/tenancy"
	"project-service/pkg/logger"
	"project-service/prometheus"
)

// TaskAccessHandler serves the per-task access grant list.
type TaskAccessHandler struct {
	guard    *tenancy.Guard
	resolver *access.Resolver
	audit    *audit.Recorder
}

// NewTaskAccessHandler constructs a TaskAccessHandler.
func NewTaskAccessHandler(guard *tenancy.Guard, resolver *access.Resolver, recorder *audit.Recorder) *TaskAccessHandler {
	return &TaskAccessHandler{guard: guard, resolver: resolver, audit: recorder}
}

// List returns the grants on a task. Viewing the grant list requires view
// access to the task itself.
func (h *TaskAccessHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid task ID"})
	}

	allowed, err := h.resolver.CanViewTask(ctx, tenantID, taskID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	grants, err := h.resolver.ListTaskAccess(ctx, tenantID, taskID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, grants)
}

// Grant invites a same-tenant user onto a task
func (h *TaskAccessHandler) Grant(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid task ID"})
	}

	var req struct {
		UserID uint   `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and role are required"})
	}

	allowed, err := h.resolver.CanManageTaskAccess(ctx, tenantID, taskID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		prometheus.RecordGrantOperation("task", "grant_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	grant, err := h.resolver.GrantTaskAccess(ctx, tenantID, taskID, actorID, req.UserID, req.Role)
	if err != nil {
		return respondError(c, err)
	}

	auditActor, _ := authenticatedUserID(c)
	h.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    tenantID,
		ActorUserID: auditActor,
		EventType:   model.AuditAccessGranted,
		Message:     fmt.Sprintf("user %d granted %s on task %d", req.UserID, grant.Role, taskID),
	})

	log.Info("Task access granted",
		zap.Uint("task_id", taskID), zap.Uint("user_id", req.UserID), zap.String("role", grant.Role))
	return c.JSON(http.StatusCreated, grant)
}

// UpdateRole replaces the role on an existing grant
func (h *TaskAccessHandler) UpdateRole(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid task ID"})
	}
	targetID, err := parseIDParam(c, "userId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	allowed, err := h.resolver.CanManageTaskAccess(ctx, tenantID, taskID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	grant, err := h.resolver.UpdateTaskAccessRole(ctx, tenantID, taskID, targetID, req.Role)
	if err != nil {
		return respondError(c, err)
	}

	auditActor, _ := authenticatedUserID(c)
	h.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    tenantID,
		ActorUserID: auditActor,
		EventType:   model.AuditAccessRoleChanged,
		Message:     fmt.Sprintf("user %d role changed to %s on task %d", targetID, grant.Role, taskID),
	})

	return c.JSON(http.StatusOK, grant)
}

// Revoke removes a grant from a task
func (h *TaskAccessHandler) Revoke(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	taskID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid task ID"})
	}
	targetID, err := parseIDParam(c, "userId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	allowed, err := h.resolver.CanManageTaskAccess(ctx, tenantID, taskID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	if err := h.resolver.RevokeTaskAccess(ctx, tenantID, taskID, targetID); err != nil {
		return respondError(c, err)
	}

	auditActor, _ := authenticatedUserID(c)
	h.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    tenantID,
		ActorUserID: auditActor,
		EventType:   model.AuditAccessRevoked,
		Message:     fmt.Sprintf("user %d access revoked on task %d", targetID, taskID),
	})

	return c.NoContent(http.StatusNoContent)
}

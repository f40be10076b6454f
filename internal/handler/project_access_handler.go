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

// ProjectAccessHandler serves the per-project access grant list.
type ProjectAccessHandler struct {
	guard    *tenancy.Guard
	resolver *access.Resolver
	audit    *audit.Recorder
}

// NewProjectAccessHandler constructs a ProjectAccessHandler.
func NewProjectAccessHandler(guard *tenancy.Guard, resolver *access.Resolver, recorder *audit.Recorder) *ProjectAccessHandler {
	return &ProjectAccessHandler{guard: guard, resolver: resolver, audit: recorder}
}

// List returns the grants on a project
func (h *ProjectAccessHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project ID"})
	}

	allowed, err := h.resolver.CanViewProject(ctx, tenantID, projectID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	grants, err := h.resolver.ListProjectAccess(ctx, tenantID, projectID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, grants)
}

// Grant invites a same-tenant user onto a project
func (h *ProjectAccessHandler) Grant(c echo.Context) error {
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
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project ID"})
	}

	var req struct {
		UserID uint   `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and role are required"})
	}

	allowed, err := h.resolver.CanManageProjectAccess(ctx, tenantID, projectID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		prometheus.RecordGrantOperation("project", "grant_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	grant, err := h.resolver.GrantProjectAccess(ctx, tenantID, projectID, actorID, req.UserID, req.Role)
	if err != nil {
		return respondError(c, err)
	}

	auditActor, _ := authenticatedUserID(c)
	h.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    tenantID,
		ActorUserID: auditActor,
		EventType:   model.AuditAccessGranted,
		Message:     fmt.Sprintf("user %d granted %s on project %d", req.UserID, grant.Role, projectID),
	})

	log.Info("Project access granted",
		zap.Uint("project_id", projectID), zap.Uint("user_id", req.UserID), zap.String("role", grant.Role))
	return c.JSON(http.StatusCreated, grant)
}

// UpdateRole replaces the role on an existing grant
func (h *ProjectAccessHandler) UpdateRole(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project ID"})
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

	allowed, err := h.resolver.CanManageProjectAccess(ctx, tenantID, projectID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	grant, err := h.resolver.UpdateProjectAccessRole(ctx, tenantID, projectID, targetID, req.Role)
	if err != nil {
		return respondError(c, err)
	}

	auditActor, _ := authenticatedUserID(c)
	h.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    tenantID,
		ActorUserID: auditActor,
		EventType:   model.AuditAccessRoleChanged,
		Message:     fmt.Sprintf("user %d role changed to %s on project %d", targetID, grant.Role, projectID),
	})

	return c.JSON(http.StatusOK, grant)
}

// Revoke removes a grant from a project
func (h *ProjectAccessHandler) Revoke(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	projectID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project ID"})
	}
	targetID, err := parseIDParam(c, "userId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	allowed, err := h.resolver.CanManageProjectAccess(ctx, tenantID, projectID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	if err := h.resolver.RevokeProjectAccess(ctx, tenantID, projectID, targetID); err != nil {
		return respondError(c, err)
	}

	auditActor, _ := authenticatedUserID(c)
	h.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    tenantID,
		ActorUserID: auditActor,
		EventType:   model.AuditAccessRevoked,
		Message:     fmt.Sprintf("user %d access revoked on project %d", targetID, projectID),
	})

	return c.NoContent(http.StatusNoContent)
}

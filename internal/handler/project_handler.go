package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"project-service/internal/access"
	"project-service/internal/model"
	"project-service/internal/tenancy"
	"project-service/internal/workspace"
	"project-service/pkg/database"
	"project-service/pkg/logger"
	"project-service/prometheus"
)

// ProjectHandler serves tenant-scoped project CRUD.
type ProjectHandler struct {
	guard    *tenancy.Guard
	resolver *access.Resolver
	cache    workspace.Cache
}

// NewProjectHandler constructs a ProjectHandler.
func NewProjectHandler(guard *tenancy.Guard, resolver *access.Resolver, cache workspace.Cache) *ProjectHandler {
	return &ProjectHandler{guard: guard, resolver: resolver, cache: cache}
}

// Create creates a project in the effective tenant
func (h *ProjectHandler) Create(c echo.Context) error {
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

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Visibility  string `json:"visibility"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse project request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	if req.Visibility == "" {
		req.Visibility = model.VisibilityWorkspace
	}
	if req.Visibility != model.VisibilityWorkspace && req.Visibility != model.VisibilityPrivate {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid visibility"})
	}

	// Convenience lookup only; the project stays valid with no workspace
	workspaceID, err := h.cache.PrimaryWorkspaceID(ctx, tenantID)
	if err != nil && err != workspace.ErrNoWorkspace {
		return respondError(c, err)
	}

	if err := h.guard.AssertTenantIDOnInsert(tenantID, "projects"); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	project := model.Project{
		TenantID:    tenantID,
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
		Status:      "active",
		CreatedBy:   actorID,
	}
	if err := database.GetDB().WithContext(ctx).Create(&project).Error; err != nil {
		log.Error("Failed to create project", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "project creation failed"})
	}

	log.Info("Project created", zap.Uint("id", project.ID), zap.Uint("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, project)
}

// List lists the tenant's projects, hiding private projects the acting user
// may not see
func (h *ProjectHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var projects []model.Project
	if err := database.GetDB().WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		Find(&projects).Error; err != nil {
		return respondError(c, err)
	}

	accessible, filtered, err := h.resolver.AccessiblePrivateProjectIDs(ctx, tenantID, actorID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, access.FilterVisibleProjects(projects, accessible, filtered))
}

// Get returns a single project after scoping and visibility checks
func (h *ProjectHandler) Get(c echo.Context) error {
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

	defer prometheus.TrackDBOperation("query")(time.Now())

	var project model.Project
	if err := database.GetDB().WithContext(ctx).First(&project, projectID).Error; err != nil {
		return respondError(c, err)
	}

	if err := h.guard.AssertScopedRead(&project.TenantID, tenantID, "project", project.ID); err != nil {
		return respondError(c, err)
	}

	allowed, err := h.resolver.CanViewProject(ctx, tenantID, project.ID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, project)
}

// Update mutates a project after ownership and edit checks
func (h *ProjectHandler) Update(c echo.Context) error {
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

	var project model.Project
	if err := database.GetDB().WithContext(ctx).First(&project, projectID).Error; err != nil {
		return respondError(c, err)
	}
	if err := h.guard.AssertOwnership(project.TenantID, tenantID, "project", project.ID); err != nil {
		return respondError(c, err)
	}

	allowed, err := h.resolver.CanEditProject(ctx, tenantID, project.ID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		Visibility  *string `json:"visibility"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Status != nil {
		project.Status = *req.Status
	}
	if req.Visibility != nil {
		if *req.Visibility != model.VisibilityWorkspace && *req.Visibility != model.VisibilityPrivate {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid visibility"})
		}
		project.Visibility = *req.Visibility
	}

	if err := h.guard.AssertScopedWrite(project.TenantID, tenantID, "projects"); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := database.GetDB().WithContext(ctx).Save(&project).Error; err != nil {
		log.Error("Failed to update project", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "project update failed"})
	}

	return c.JSON(http.StatusOK, project)
}

// Delete removes a project after ownership and manage checks
func (h *ProjectHandler) Delete(c echo.Context) error {
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

	var project model.Project
	if err := database.GetDB().WithContext(ctx).First(&project, projectID).Error; err != nil {
		return respondError(c, err)
	}
	if err := h.guard.AssertOwnership(project.TenantID, tenantID, "project", project.ID); err != nil {
		return respondError(c, err)
	}

	allowed, err := h.resolver.CanManageProjectAccess(ctx, tenantID, project.ID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := database.GetDB().WithContext(ctx).Delete(&project).Error; err != nil {
		log.Error("Failed to delete project", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "project deletion failed"})
	}

	return c.NoContent(http.StatusNoContent)
}

func parseIDParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

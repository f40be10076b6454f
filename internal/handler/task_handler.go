package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"project-service/internal/access"
	"project-service/internal/model"
	"project-service/internal/tenancy"
	"project-service/pkg/database"
	"project-service/pkg/logger"
	"project-service/prometheus"
)

// TaskHandler serves tenant-scoped task CRUD.
type TaskHandler struct {
	guard    *tenancy.Guard
	resolver *access.Resolver
}

// NewTaskHandler constructs a TaskHandler.
func NewTaskHandler(guard *tenancy.Guard, resolver *access.Resolver) *TaskHandler {
	return &TaskHandler{guard: guard, resolver: resolver}
}

// Create creates a task under a project of the effective tenant
func (h *TaskHandler) Create(c echo.Context) error {
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
		ProjectID   uint       `json:"project_id"`
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Visibility  string     `json:"visibility"`
		AssigneeID  *uint      `json:"assignee_id"`
		DueDate     *time.Time `json:"due_date"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse task request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Title == "" || req.ProjectID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and project_id are required"})
	}
	if req.Visibility == "" {
		req.Visibility = model.VisibilityWorkspace
	}
	if req.Visibility != model.VisibilityWorkspace && req.Visibility != model.VisibilityPrivate {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid visibility"})
	}

	// The parent project must live in the effective tenant
	var project model.Project
	if err := database.GetDB().WithContext(ctx).
		Where("id = ? AND tenant_id = ?", req.ProjectID, tenantID).
		First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "project not found"})
		}
		return respondError(c, err)
	}

	if err := h.guard.AssertTenantIDOnInsert(tenantID, "tasks"); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	task := model.Task{
		TenantID:    tenantID,
		ProjectID:   project.ID,
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
		Status:      "open",
		CreatedBy:   actorID,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
	}
	if err := database.GetDB().WithContext(ctx).Create(&task).Error; err != nil {
		log.Error("Failed to create task", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "task creation failed"})
	}

	log.Info("Task created", zap.Uint("id", task.ID), zap.Uint("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, task)
}

// List lists the tenant's tasks, optionally scoped to a project, hiding
// private tasks the acting user may not see
func (h *TaskHandler) List(c echo.Context) error {
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

	q := database.GetDB().WithContext(ctx).Where("tenant_id = ?", tenantID)
	if raw := c.QueryParam("project_id"); raw != "" {
		projectID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid project_id"})
		}
		q = q.Where("project_id = ?", uint(projectID))
	}

	var tasks []model.Task
	if err := q.Order("id ASC").Find(&tasks).Error; err != nil {
		return respondError(c, err)
	}

	accessible, filtered, err := h.resolver.AccessiblePrivateTaskIDs(ctx, tenantID, actorID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, access.FilterVisibleTasks(tasks, accessible, filtered))
}

// Get returns a single task after scoping and visibility checks
func (h *TaskHandler) Get(c echo.Context) error {
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

	defer prometheus.TrackDBOperation("query")(time.Now())

	var task model.Task
	if err := database.GetDB().WithContext(ctx).First(&task, taskID).Error; err != nil {
		return respondError(c, err)
	}

	if err := h.guard.AssertScopedRead(&task.TenantID, tenantID, "task", task.ID); err != nil {
		return respondError(c, err)
	}

	allowed, err := h.resolver.CanViewTask(ctx, tenantID, task.ID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, task)
}

// Update mutates a task after ownership and edit checks
func (h *TaskHandler) Update(c echo.Context) error {
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

	var task model.Task
	if err := database.GetDB().WithContext(ctx).First(&task, taskID).Error; err != nil {
		return respondError(c, err)
	}
	if err := h.guard.AssertOwnership(task.TenantID, tenantID, "task", task.ID); err != nil {
		return respondError(c, err)
	}

	allowed, err := h.resolver.CanEditTask(ctx, tenantID, task.ID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		Status      *string    `json:"status"`
		Visibility  *string    `json:"visibility"`
		AssigneeID  *uint      `json:"assignee_id"`
		DueDate     *time.Time `json:"due_date"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if req.Visibility != nil {
		if *req.Visibility != model.VisibilityWorkspace && *req.Visibility != model.VisibilityPrivate {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid visibility"})
		}
		task.Visibility = *req.Visibility
	}
	if req.AssigneeID != nil {
		task.AssigneeID = req.AssigneeID
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}

	if err := h.guard.AssertScopedWrite(task.TenantID, tenantID, "tasks"); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	if err := database.GetDB().WithContext(ctx).Save(&task).Error; err != nil {
		log.Error("Failed to update task", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "task update failed"})
	}

	return c.JSON(http.StatusOK, task)
}

// Delete removes a task after ownership and manage checks
func (h *TaskHandler) Delete(c echo.Context) error {
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

	var task model.Task
	if err := database.GetDB().WithContext(ctx).First(&task, taskID).Error; err != nil {
		return respondError(c, err)
	}
	if err := h.guard.AssertOwnership(task.TenantID, tenantID, "task", task.ID); err != nil {
		return respondError(c, err)
	}

	allowed, err := h.resolver.CanManageTaskAccess(ctx, tenantID, task.ID, actorID)
	if err != nil {
		return respondError(c, err)
	}
	if !allowed {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())

	if err := database.GetDB().WithContext(ctx).Delete(&task).Error; err != nil {
		log.Error("Failed to delete task", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "task deletion failed"})
	}

	return c.NoContent(http.StatusNoContent)
}

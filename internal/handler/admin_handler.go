package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"project-service/internal/audit"
	"project-service/internal/model"
	"project-service/internal/workspace"
	"project-service/pkg/database"
	"project-service/pkg/logger"
	"project-service/prometheus"
)

// AdminHandler serves super-user provisioning endpoints.
type AdminHandler struct {
	audit *audit.Recorder
	cache workspace.Cache
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(recorder *audit.Recorder, cache workspace.Cache) *AdminHandler {
	return &AdminHandler{audit: recorder, cache: cache}
}

// ProvisionTenant creates a tenant, its primary workspace and its first
// admin user in a single transaction
func (h *AdminHandler) ProvisionTenant(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	var req struct {
		Name          string `json:"name"`
		AdminEmail    string `json:"admin_email"`
		AdminPassword string `json:"admin_password"`
		AdminName     string `json:"admin_name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" || req.AdminEmail == "" || req.AdminPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, admin_email and admin_password are required"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "provisioning failed"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	var count int64
	database.GetDB().WithContext(ctx).Model(&model.User{}).Where("email = ?", req.AdminEmail).Count(&count)
	if count > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	tenant := model.Tenant{Name: req.Name, Status: model.TenantStatusActive}
	var admin model.User
	err = database.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}
		ws := model.Workspace{TenantID: tenant.ID, Name: "Main", IsPrimary: true}
		if err := tx.Create(&ws).Error; err != nil {
			return err
		}
		admin = model.User{
			TenantID: &tenant.ID,
			Email:    req.AdminEmail,
			Password: string(hash),
			Name:     req.AdminName,
			Role:     model.RoleAdmin,
			IsActive: true,
		}
		return tx.Create(&admin).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "tenant name or email already in use"})
		}
		log.Error("Failed to provision tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "provisioning failed"})
	}

	h.cache.Invalidate(tenant.ID)

	auditActor, _ := authenticatedUserID(c)
	h.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    tenant.ID,
		ActorUserID: auditActor,
		EventType:   model.AuditTenantProvisioned,
		Message:     fmt.Sprintf("tenant %q provisioned with admin %s", tenant.Name, admin.Email),
	})

	log.Info("Tenant provisioned", zap.Uint("tenant_id", tenant.ID), zap.String("name", tenant.Name))
	return c.JSON(http.StatusCreated, echo.Map{
		"tenant": tenant,
		"admin":  admin,
	})
}

// ProvisionUser creates a user inside an existing active tenant. The tenant
// comes from the path, never the body.
func (h *AdminHandler) ProvisionUser(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	tenantID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	if req.Role == "" {
		req.Role = model.RoleEmployee
	}
	switch req.Role {
	case model.RoleAdmin, model.RoleEmployee, model.RoleClient:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
	}

	var tenant model.Tenant
	if err := database.GetDB().WithContext(ctx).First(&tenant, tenantID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
		}
		return respondError(c, err)
	}
	if !tenant.IsActive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant is suspended or deleted"})
	}

	var count int64
	database.GetDB().WithContext(ctx).Model(&model.User{}).Where("email = ?", req.Email).Count(&count)
	if count > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "provisioning failed"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	user := model.User{
		TenantID: &tenant.ID,
		Email:    req.Email,
		Password: string(hash),
		Name:     req.Name,
		Role:     req.Role,
		IsActive: true,
	}
	if err := database.GetDB().WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		log.Error("Failed to provision user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "provisioning failed"})
	}

	auditActor, _ := authenticatedUserID(c)
	h.audit.Record(ctx, &model.TenantAuditEvent{
		TenantID:    tenant.ID,
		ActorUserID: auditActor,
		EventType:   model.AuditUserProvisioned,
		Message:     fmt.Sprintf("user %s provisioned into tenant %d with role %s", user.Email, tenant.ID, user.Role),
	})

	log.Info("User provisioned", zap.Uint("user_id", user.ID), zap.Uint("tenant_id", tenant.ID))
	return c.JSON(http.StatusCreated, user)
}

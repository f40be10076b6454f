package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"project-service/internal/impersonation"
	"project-service/pkg/logger"
)

// ImpersonationHandler exposes the super-user impersonation endpoints.
type ImpersonationHandler struct {
	manager *impersonation.Manager
}

// NewImpersonationHandler constructs an ImpersonationHandler.
func NewImpersonationHandler(manager *impersonation.Manager) *ImpersonationHandler {
	return &ImpersonationHandler{manager: manager}
}

func requestActor(c echo.Context) (impersonation.Actor, bool) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return impersonation.Actor{}, false
	}
	email, _ := c.Get("email").(string)
	return impersonation.Actor{UserID: userID, Email: email}, true
}

// Start begins impersonating a tenant context
func (h *ImpersonationHandler) Start(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	actor, ok := requestActor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		TenantID uint `json:"tenant_id"`
	}
	if err := c.Bind(&req); err != nil || req.TenantID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	st, err := h.manager.StartTenant(ctx, c, actor, req.TenantID)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Tenant impersonation started",
		zap.Uint("actor_user_id", actor.UserID), zap.Uint("tenant_id", st.ImpersonatedTenantID))
	return c.JSON(http.StatusOK, echo.Map{
		"message":   "impersonation started",
		"tenant_id": st.ImpersonatedTenantID,
	})
}

// StartUser begins impersonating a specific user identity
func (h *ImpersonationHandler) StartUser(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	actor, ok := requestActor(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	targetID, err := parseIDParam(c, "userId")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	st, err := h.manager.StartUser(ctx, c, actor, targetID)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("User impersonation started",
		zap.Uint("actor_user_id", actor.UserID),
		zap.Uint("impersonated_user_id", st.ImpersonatedUserID),
		zap.Uint("tenant_id", st.ImpersonatedTenantID))
	return c.JSON(http.StatusOK, echo.Map{
		"message":   "impersonation started",
		"user_id":   st.ImpersonatedUserID,
		"email":     st.ImpersonatedUserEmail,
		"role":      st.ImpersonatedRole,
		"tenant_id": st.ImpersonatedTenantID,
	})
}

// Exit ends the active impersonation session
func (h *ImpersonationHandler) Exit(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	duration, err := h.manager.Exit(ctx, c)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Impersonation exited", zap.Duration("duration", duration))
	return c.JSON(http.StatusOK, echo.Map{
		"message":          "impersonation ended",
		"duration_seconds": int64(duration / time.Second),
	})
}

// Status reports whether the caller is impersonating and what remains of
// the session
func (h *ImpersonationHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	st, ttl, err := h.manager.Status(ctx, c)
	if err != nil {
		return respondError(c, err)
	}

	if !st.IsImpersonating() {
		return c.JSON(http.StatusOK, echo.Map{"is_impersonating": false})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"is_impersonating":          true,
		"original_super_user_id":    st.OriginalSuperUserID,
		"original_super_user_email": st.OriginalSuperUserEmail,
		"impersonated_user_id":      st.ImpersonatedUserID,
		"impersonated_user_email":   st.ImpersonatedUserEmail,
		"impersonated_role":         st.ImpersonatedRole,
		"impersonated_tenant_id":    st.ImpersonatedTenantID,
		"started_at":                st.StartedAt,
		"expires_in_seconds":        int64(ttl / time.Second),
	})
}

package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"project-service/internal/access"
	"project-service/internal/impersonation"
	"project-service/internal/tenancy"
	"project-service/pkg/logger"
	"project-service/prometheus"
)

// respondError is the single place guard, resolver and impersonation errors
// are translated to HTTP responses. Nothing below the handler layer writes
// to the response.
func respondError(c echo.Context, err error) error {
	log := logger.FromContext(c)

	switch {
	case errors.Is(err, tenancy.ErrTenantContextMissing):
		prometheus.RecordRequestError("tenant_context_missing")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant context required"})

	case errors.Is(err, tenancy.ErrCrossTenant):
		prometheus.RecordRequestError("cross_tenant_violation")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})

	case errors.Is(err, tenancy.ErrNotRoomMember):
		prometheus.RecordRequestError("not_room_member")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of this room"})

	case errors.Is(err, tenancy.ErrMissingTenantID):
		prometheus.RecordRequestError("missing_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payload is not tenant-scoped"})

	case errors.Is(err, tenancy.ErrClientTenantID):
		prometheus.RecordRequestError("client_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id must not be supplied by the client"})

	case errors.Is(err, access.ErrGrantExists):
		prometheus.RecordRequestError("grant_conflict")
		return c.JSON(http.StatusConflict, echo.Map{"error": "access grant already exists"})

	case errors.Is(err, access.ErrGrantNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "access grant not found"})

	case errors.Is(err, access.ErrCrossTenantInvite):
		prometheus.RecordRequestError("cross_tenant_invite")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invited user does not belong to this tenant"})

	case errors.Is(err, access.ErrInvalidRole):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid grant role"})

	case errors.Is(err, access.ErrResourceNotFound),
		errors.Is(err, access.ErrUserNotFound),
		errors.Is(err, impersonation.ErrTenantNotFound),
		errors.Is(err, impersonation.ErrUserNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})

	case errors.Is(err, impersonation.ErrTenantNotActive),
		errors.Is(err, impersonation.ErrUserInactive),
		errors.Is(err, impersonation.ErrUserHasNoTenant),
		errors.Is(err, impersonation.ErrAlreadyImpersonating),
		errors.Is(err, impersonation.ErrNotImpersonating):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})

	default:
		prometheus.RecordRequestError("internal")
		log.Error("Unhandled error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// actingUserID returns the effective acting user for the request. Under
// impersonation this is the impersonated user; user_id stays the
// authenticated identity.
func actingUserID(c echo.Context) (uint, bool) {
	id, ok := c.Get("acting_user_id").(uint)
	return id, ok
}

// authenticatedUserID returns the real authenticated user, used for audit
// actor attribution.
func authenticatedUserID(c echo.Context) (uint, bool) {
	id, ok := c.Get("user_id").(uint)
	return id, ok
}

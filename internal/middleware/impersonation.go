package middleware

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"project-service/internal/impersonation"
	"project-service/internal/model"
	"project-service/pkg/logger"
	"project-service/pkg/session"
)

// ImpersonationContext overlays an active impersonation session onto the
// request: the effective tenant id and acting identity become the
// impersonated ones while user_id stays the authenticated super-user, so
// every downstream audit record still points at the real actor. Only
// super-users can carry an impersonation session.
func ImpersonationContext(store *session.Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("user_role").(string)
			if role != model.RoleSuperUser {
				return next(c)
			}

			log := logger.FromContext(c)
			ctx := c.Request().Context()

			sess, err := store.Get(ctx, c)
			if err != nil {
				log.Error("Failed to load session", zap.Error(err))
				return next(c)
			}
			st, err := impersonation.FromSession(sess)
			if err != nil {
				log.Error("Failed to decode impersonation state", zap.Error(err))
				return next(c)
			}
			if !st.IsImpersonating() {
				return next(c)
			}

			// user_role keeps the authenticated role so super-user gates
			// still pass; only the acting identity is substituted.
			c.Set("tenant_id", st.ImpersonatedTenantID)
			if st.ImpersonatedUserID != 0 {
				c.Set("acting_user_id", st.ImpersonatedUserID)
				c.Set("acting_role", st.ImpersonatedRole)
			}

			log.Debug("Request running under impersonation",
				zap.Uint("original_super_user_id", st.OriginalSuperUserID),
				zap.Uint("impersonated_tenant_id", st.ImpersonatedTenantID),
				zap.Uint("impersonated_user_id", st.ImpersonatedUserID))

			return next(c)
		}
	}
}

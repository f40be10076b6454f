package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"project-service/internal/model"
	"project-service/pkg/logger"
)

// RequireSuperUser gates platform-level routes. The check runs against the
// authenticated identity, never the impersonated one, so an impersonating
// super-user keeps access and an impersonated admin gains none.
func RequireSuperUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		role, ok := c.Get("user_role").(string)
		if !ok || role != model.RoleSuperUser {
			log.Warn("Super-user privilege required")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "super-user privilege required"})
		}

		return next(c)
	}
}

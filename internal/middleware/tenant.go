package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"project-service/internal/tenancy"
	"project-service/pkg/logger"
)

// RequireTenantContext ensures the request carries an effective tenant id.
// Absence is fatal for the request.
func RequireTenantContext(guard *tenancy.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			if _, err := guard.RequireTenantContext(c); err != nil {
				log.Warn("Missing tenant context")
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":   "tenant context required",
					"message": "Please select a tenant before accessing this resource",
				})
			}

			return next(c)
		}
	}
}

// NoClientTenantID inspects the request body and query for client-supplied
// tenant id fields. The tenant id must only ever originate from the
// authenticated session; depending on guard mode the request is rejected or
// the field is logged and left to be overridden by handlers.
func NoClientTenantID(guard *tenancy.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			body := map[string]interface{}{}
			req := c.Request()
			if req.Body != nil && req.ContentLength != 0 {
				raw, err := io.ReadAll(req.Body)
				if err != nil {
					log.Error("Failed to read request body", zap.Error(err))
					return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
				}
				// Restore the body so handlers can still bind it
				req.Body = io.NopCloser(bytes.NewReader(raw))

				// Non-JSON bodies are not inspected
				_ = json.Unmarshal(raw, &body)
			}

			if err := guard.AssertNoClientTenantID(body, c.QueryParams()); err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{
					"error": "tenant_id must not be supplied by the client",
				})
			}

			return next(c)
		}
	}
}

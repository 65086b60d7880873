package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/converso/gateway/internal/auth"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// requireTenant resolves the authenticated tenant and checks it against
// the tenant_id path segment. Cross-tenant access is rejected without
// revealing whether the target exists.
func requireTenant(c echo.Context) (string, error) {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return "", err
	}
	if pathTenant := c.Param("tenant_id"); pathTenant != "" && pathTenant != tenantID {
		return "", echo.NewHTTPError(http.StatusForbidden, "tenant mismatch")
	}
	return tenantID, nil
}

package httpserver

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	XTenantIDHeader = "X-Tenant-Id"
	DefaultTenant   = "default"
)

// GetTenantID reads the tenant set by the API gateway authorizer.
// Requests without one share the default tenant.
func GetTenantID(ctx echo.Context) string {
	id := strings.TrimSpace(ctx.Request().Header.Get(XTenantIDHeader))
	if id == "" {
		return DefaultTenant
	}
	return id
}

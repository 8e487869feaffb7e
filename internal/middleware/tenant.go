package middleware

import (
	"context"
	"slices"

	common_models "github.com/Altroz1812/wfm-sep-loanzen/internal/common/models"

	"github.com/gofiber/fiber/v2"
)

const TenantLocalsKey = "tenant_id"

// TenantScope binds the :tenant path parameter to the request. Tokens issued
// for one tenant cannot address another; tenantless tokens (dev admin) can.
func TenantScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		tenantID := c.Params("tenant")
		if tenantID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "tenant is required",
			})
		}
		if claims.TenantID != "" && claims.TenantID != tenantID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: token not valid for tenant",
			})
		}

		c.Locals(TenantLocalsKey, tenantID)
		ctx := context.WithValue(c.UserContext(), common_models.TenantIDKey, tenantID)
		ctx = context.WithValue(ctx, common_models.ActorIDKey, claims.UserID)
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// RequireRole rejects callers whose token role is not one of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := Claims(c)
		if claims == nil || !slices.Contains(roles, claims.Role) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: Insufficient permissions",
			})
		}
		return c.Next()
	}
}

// TenantID is the tenant bound by TenantScope.
func TenantID(c *fiber.Ctx) string {
	id, _ := c.Locals(TenantLocalsKey).(string)
	return id
}

// ActorID is the authenticated user id.
func ActorID(c *fiber.Ctx) string {
	if claims := Claims(c); claims != nil {
		return claims.UserID
	}
	return ""
}

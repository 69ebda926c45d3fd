package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Abdin71/supportflow-ai/internal/domain"
	apperrors "github.com/Abdin71/supportflow-ai/pkg/util"
)

// RequireRole ensures the caller holds one of the allowed roles.
func RequireRole(allowed ...domain.UserRole) fiber.Handler {
	allowedSet := make(map[domain.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[identity.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequirePrivileged ensures the caller is an agent or admin.
func RequirePrivileged() fiber.Handler {
	return RequireRole(domain.UserRoleAgent, domain.UserRoleAdmin)
}

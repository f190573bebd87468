package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/appointment-service/internal/domain"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

// RequireRole ensures the principal holds at least one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowed) == 0 {
			return c.Next()
		}
		for _, role := range allowed {
			if principal.User.HasRole(role) {
				return c.Next()
			}
		}
		return apperrors.NewForbidden("insufficient role")
	}
}

// RequireAuthenticated ensures a principal was loaded.
func RequireAuthenticated() fiber.Handler {
	return RequireRole()
}

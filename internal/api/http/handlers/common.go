package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/domain"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

func principalFrom(c *fiber.Ctx) (*domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

// parseBody decodes the request body into out. An empty body leaves out untouched.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

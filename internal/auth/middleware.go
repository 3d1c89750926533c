package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/domain"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	resolver IdentityResolver
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(resolver IdentityResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*domain.Principal, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return nil, apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, apperrors.NewUnauthorized("invalid authorization header")
	}

	principal, err := m.resolver.Resolve(c.UserContext(), strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}
	return principal, nil
}

// OpsAccess admits either a valid ops key or an authenticated administrator.
func (m *AuthMiddleware) OpsAccess(keys *OpsKeyVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key := c.Get(OpsKeyHeader); key != "" {
			if !keys.Verify(key) {
				return apperrors.NewUnauthorized("invalid ops key")
			}
			c.Locals(principalKey, &domain.Principal{ID: "ops-key", Role: domain.RoleAdmin})
			return c.Next()
		}
		principal, err := m.authenticate(c)
		if err != nil {
			return err
		}
		if principal.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("administrator or ops key required")
		}
		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.Principal)
	return principal, ok
}

// Package middleware provides HTTP middleware components for the application.
// It includes authentication and the partner capability used by the
// partner-only routes.
package middleware

import (
	"strings"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/models"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// AuthMiddleware validates bearer tokens issued by the auth provider.
type AuthMiddleware struct {
	secret string
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	if secret == "" {
		panic("jwt secret is required")
	}
	return &AuthMiddleware{secret: secret}
}

// Handler validates the JWT and adds its claims to the request context.
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return utils.Unauthorized(c, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return utils.Unauthorized(c, "invalid authorization format")
	}

	claims, err := utils.ParseToken(m.secret, strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		log.Debug().Err(err).Str("path", c.Path()).Msg("token rejected")
		return utils.Unauthorized(c, "invalid token")
	}

	c.Locals(utils.LocalsClaims, claims)
	c.Locals(utils.LocalsUserID, claims.UserID)
	return c.Next()
}

// HasPermission returns a middleware that checks for a specific permission.
func HasPermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return utils.Unauthorized(c, "unauthorized")
		}
		if claims.Role == models.RoleAdmin || claims.HasPermission(permission) {
			return c.Next()
		}
		log.Warn().
			Uint("user_id", claims.UserID).
			Str("role", claims.Role).
			Str("permission", permission).
			Msg("permission denied")
		return utils.Error(c, apperrors.New(apperrors.KindForbidden, "INSUFFICIENT_PERMISSIONS", "insufficient permissions"))
	}
}

// RequirePartner resolves the caller's partner profile once per request
// and stores it in the request context.
func RequirePartner(partners partner.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return utils.Unauthorized(c, "unauthorized")
		}

		p, err := partners.GetByOwner(c.UserContext(), claims.UserID)
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindNotFound {
				return utils.Error(c, apperrors.ErrPartnerRequired)
			}
			return utils.Error(c, err)
		}

		c.Locals(utils.LocalsPartner, p)
		return c.Next()
	}
}

package utils

import (
	"errors"

	"tapdeal/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by the auth middleware.
const (
	LocalsClaims  = "claims"
	LocalsUserID  = "userID"
	LocalsPartner = "partner"
)

// GetUserClaims extracts the user claims from the Fiber context.
// It returns an error if the claims are missing or of an invalid type.
func GetUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	v := c.Locals(LocalsClaims)
	if v == nil {
		return nil, errors.New("claims not found in context")
	}

	claims, ok := v.(*models.UserClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

// GetPartner returns the partner profile resolved by RequirePartner.
func GetPartner(c *fiber.Ctx) (*models.Partner, error) {
	p, ok := c.Locals(LocalsPartner).(*models.Partner)
	if !ok || p == nil {
		return nil, errors.New("partner not found in context")
	}
	return p, nil
}

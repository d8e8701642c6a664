package handlers

import (
	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/services/analytics"
	"tapdeal/internal/services/order"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type PartnerHandler struct {
	partners  partner.Service
	orders    order.Service
	analytics analytics.Service
}

func NewPartnerHandler(partners partner.Service, orders order.Service, analytics analytics.Service) *PartnerHandler {
	return &PartnerHandler{
		partners:  partners,
		orders:    orders,
		analytics: analytics,
	}
}

type discountRateRequest struct {
	DiscountRate *decimal.Decimal `json:"discountRate"`
}

func (h *PartnerHandler) Orders(c *fiber.Ctx) error {
	p, err := utils.GetPartner(c)
	if err != nil {
		return utils.Error(c, err)
	}

	page := utils.GetPagination(c, 1, 20)
	orders, total, err := h.orders.ListForPartner(c.UserContext(), p.ID, page.ListOptions())
	if err != nil {
		return utils.Error(c, err)
	}
	page.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(orders, page))
}

func (h *PartnerHandler) Analytics(c *fiber.Ctx) error {
	p, err := utils.GetPartner(c)
	if err != nil {
		return utils.Error(c, err)
	}

	a, err := h.analytics.Snapshot(c.UserContext(), p.ID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"partnerId": p.ID, "analytics": a})
}

// RebuildAnalytics recomputes the caller's totals from its settled orders.
func (h *PartnerHandler) RebuildAnalytics(c *fiber.Ctx) error {
	p, err := utils.GetPartner(c)
	if err != nil {
		return utils.Error(c, err)
	}

	a, err := h.analytics.Rebuild(c.UserContext(), p.ID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"partnerId": p.ID, "analytics": a})
}

// UpdateDiscountRate changes the rate used for new bills and direct
// payments. Bills already issued keep the rate they were created with.
func (h *PartnerHandler) UpdateDiscountRate(c *fiber.Ctx) error {
	p, err := utils.GetPartner(c)
	if err != nil {
		return utils.Error(c, err)
	}

	var input discountRateRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, apperrors.ErrInvalidBody)
	}
	if input.DiscountRate == nil {
		return utils.Error(c, apperrors.Validation("discountRate", "is required"))
	}

	updated, err := h.partners.UpdateDiscountRate(c.UserContext(), p.ID, *input.DiscountRate)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"partner": updated})
}

package handlers

import (
	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/models"
	"tapdeal/internal/services/order"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/utils"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
)

type OrderHandler struct {
	orders   order.Service
	partners partner.Service
}

func NewOrderHandler(orders order.Service, partners partner.Service) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		partners: partners,
	}
}

// Get returns an order to its payer or to the partner it was paid to.
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "unauthorized")
	}

	principal := order.Principal{UserID: claims.UserID}
	if claims.Role == models.RolePartner {
		p, err := h.partners.GetByOwner(c.UserContext(), claims.UserID)
		switch {
		case err == nil:
			principal.PartnerID = p.ID
		case apperrors.KindOf(err) != apperrors.KindNotFound:
			return utils.Error(c, err)
		}
	}

	o, err := h.orders.Get(c.UserContext(), fiberutils.CopyString(c.Params("orderId")), principal)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"order": o})
}

// List returns the caller's payment history, newest first.
func (h *OrderHandler) List(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "unauthorized")
	}

	page := utils.GetPagination(c, 1, 20)
	orders, total, err := h.orders.ListForUser(c.UserContext(), claims.UserID, page.ListOptions())
	if err != nil {
		return utils.Error(c, err)
	}
	page.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(orders, page))
}

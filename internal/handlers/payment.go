package handlers

import (
	"errors"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/models"
	"tapdeal/internal/services/gateway"
	"tapdeal/internal/services/order"
	"tapdeal/internal/services/webhook"
	"tapdeal/internal/utils"
	"tapdeal/internal/validation"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	orders     order.Service
	dispatcher *webhook.Dispatcher
	gateway    gateway.Gateway
}

func NewPaymentHandler(orders order.Service, dispatcher *webhook.Dispatcher, gw gateway.Gateway) *PaymentHandler {
	return &PaymentHandler{
		orders:     orders,
		dispatcher: dispatcher,
		gateway:    gw,
	}
}

type payBillRequest struct {
	BillID string `json:"billId" validate:"required,billid"`
}

type directPaymentRequest struct {
	PartnerID uint            `json:"partnerId" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
}

type verifyPaymentRequest struct {
	OrderID        string `json:"orderId" validate:"required,orderid"`
	GatewayOrderID string `json:"gatewayOrderId" validate:"required,max=64"`
	PaymentID      string `json:"paymentId" validate:"required,max=64"`
	Signature      string `json:"signature" validate:"required,max=256"`
}

type checkoutResponse struct {
	OrderID string                `json:"orderId"`
	Order   *models.Order         `json:"order"`
	Gateway order.GatewayCheckout `json:"gateway"`
}

func newCheckoutResponse(co *order.Checkout) checkoutResponse {
	return checkoutResponse{OrderID: co.Order.OrderID, Order: co.Order, Gateway: co.Gateway}
}

// PayBill consumes a bill and opens a gateway order for its discounted amount.
func (h *PaymentHandler) PayBill(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "unauthorized")
	}

	var input payBillRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, apperrors.ErrInvalidBody)
	}
	if err := validation.Struct(input); err != nil {
		return utils.Error(c, err)
	}

	co, err := h.orders.CreateFromBill(c.UserContext(), input.BillID, claims.UserID)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, newCheckoutResponse(co))
}

// Direct pays a partner without a bill at the partner's current rate.
func (h *PaymentHandler) Direct(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "unauthorized")
	}

	var input directPaymentRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, apperrors.ErrInvalidBody)
	}
	if err := validation.Struct(input); err != nil {
		return utils.Error(c, err)
	}
	amount, err := validation.Amount("amount", input.Amount)
	if err != nil {
		return utils.Error(c, err)
	}

	co, err := h.orders.CreateDirect(c.UserContext(), input.PartnerID, claims.UserID, amount)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Created(c, newCheckoutResponse(co))
}

// Verify completes an order from the checkout callback.
func (h *PaymentHandler) Verify(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "unauthorized")
	}

	var input verifyPaymentRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, apperrors.ErrInvalidBody)
	}
	if err := validation.Struct(input); err != nil {
		return utils.Error(c, err)
	}

	o, err := h.orders.Verify(c.UserContext(), order.VerifyRequest{
		OrderID:        input.OrderID,
		GatewayOrderID: input.GatewayOrderID,
		PaymentID:      input.PaymentID,
		Signature:      input.Signature,
		UserID:         claims.UserID,
	})
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"order": o})
}

// Webhook receives gateway callbacks. Any delivery with a valid signature
// that was durably handled is acknowledged, including duplicates and
// events for unknown orders; a 5xx asks the gateway to retry.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	_, err := h.dispatcher.Dispatch(c.UserContext(), webhook.Request{
		Body:      append([]byte(nil), c.Body()...),
		Signature: fiberutils.CopyString(c.Get(h.gateway.SignatureHeader())),
		EventID:   fiberutils.CopyString(c.Get(h.gateway.EventIDHeader())),
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrWebhookSignatureInvalid) {
			return utils.Error(c, err)
		}
		return utils.Error(c, apperrors.ErrInternal.Wrap(err))
	}
	return utils.Success(c, fiber.Map{"received": true})
}

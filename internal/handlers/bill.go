package handlers

import (
	"time"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/models"
	"tapdeal/internal/services/bill"
	"tapdeal/internal/services/settlement"
	"tapdeal/internal/utils"
	"tapdeal/internal/utils/money"
	"tapdeal/internal/validation"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/shopspring/decimal"
)

type BillHandler struct {
	bills bill.Service
}

func NewBillHandler(bills bill.Service) *BillHandler {
	return &BillHandler{bills: bills}
}

type createBillRequest struct {
	Amount        decimal.Decimal  `json:"amount" validate:"required"`
	DiscountRate  *decimal.Decimal `json:"discountRate"`
	Description   string           `json:"description" validate:"max=200"`
	ExpiryMinutes int              `json:"expiryMinutes" validate:"omitempty,min=1"`
}

type billResponse struct {
	BillID      string            `json:"billId"`
	QRToken     string            `json:"qrToken"`
	Description string            `json:"description,omitempty"`
	Status      models.BillStatus `json:"status"`
	Amounts     settlement.Split  `json:"amounts"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

type activeBill struct {
	BillID       string            `json:"billId"`
	Amount       money.Amount      `json:"amount"`
	DiscountRate decimal.Decimal   `json:"discountRate"`
	Description  string            `json:"description,omitempty"`
	Status       models.BillStatus `json:"status"`
	ExpiresAt    time.Time         `json:"expiresAt"`
}

type validateBillRequest struct {
	QRToken string `json:"qrToken" validate:"required,max=512"`
}

type validatedBillResponse struct {
	BillID      string               `json:"billId"`
	Description string               `json:"description,omitempty"`
	Merchant    models.PartnerPublic `json:"merchant"`
	Amounts     settlement.Split     `json:"amounts"`
	ExpiresAt   time.Time            `json:"expiresAt"`
}

// Create issues a bill for the calling partner.
func (h *BillHandler) Create(c *fiber.Ctx) error {
	p, err := utils.GetPartner(c)
	if err != nil {
		return utils.Error(c, err)
	}

	var input createBillRequest
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

	created, err := h.bills.Create(c.UserContext(), bill.CreateRequest{
		PartnerID:     p.ID,
		Amount:        amount,
		DiscountRate:  input.DiscountRate,
		Description:   input.Description,
		ExpiryMinutes: input.ExpiryMinutes,
	})
	if err != nil {
		return utils.Error(c, err)
	}

	return utils.Created(c, billResponse{
		BillID:      created.Bill.BillID,
		QRToken:     created.Bill.QRToken,
		Description: created.Bill.Description,
		Status:      created.Bill.Status,
		Amounts:     created.Split,
		ExpiresAt:   created.Bill.ExpiresAt,
	})
}

// Active lists the partner's bills that can still be paid.
func (h *BillHandler) Active(c *fiber.Ctx) error {
	p, err := utils.GetPartner(c)
	if err != nil {
		return utils.Error(c, err)
	}

	bills, err := h.bills.ListActive(c.UserContext(), p.ID)
	if err != nil {
		return utils.Error(c, err)
	}

	out := make([]activeBill, 0, len(bills))
	for _, b := range bills {
		out = append(out, activeBill{
			BillID:       b.BillID,
			Amount:       b.Amount,
			DiscountRate: b.DiscountRate,
			Description:  b.Description,
			Status:       b.Status,
			ExpiresAt:    b.ExpiresAt,
		})
	}
	return utils.Success(c, fiber.Map{"bills": out})
}

func (h *BillHandler) Cancel(c *fiber.Ctx) error {
	p, err := utils.GetPartner(c)
	if err != nil {
		return utils.Error(c, err)
	}

	if err := h.bills.Cancel(c.UserContext(), p.ID, fiberutils.CopyString(c.Params("billId"))); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.Map{"success": true})
}

// Validate decodes a scanned token and shows the payer what they will pay.
func (h *BillHandler) Validate(c *fiber.Ctx) error {
	var input validateBillRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.Error(c, apperrors.ErrInvalidBody)
	}
	if err := validation.Struct(input); err != nil {
		return utils.Error(c, err)
	}

	v, err := h.bills.Validate(c.UserContext(), input.QRToken)
	if err != nil {
		return utils.Error(c, err)
	}

	return utils.Success(c, validatedBillResponse{
		BillID:      v.Bill.BillID,
		Description: v.Bill.Description,
		Merchant:    v.Merchant,
		Amounts:     v.Split,
		ExpiresAt:   v.Bill.ExpiresAt,
	})
}

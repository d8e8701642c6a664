package handlers

import (
	"errors"
	"net/http"
	"strings"

	"tapdeal/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders errors that escape a handler, such as unknown
// routes and oversized bodies, in the API error envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_"))
		if code == "" {
			code = "HTTP_ERROR"
		}
		return utils.Respond(c, fe.Code, utils.ErrorBody{Error: utils.ErrorDetail{
			Code:    code,
			Message: fe.Message,
		}})
	}
	return utils.Error(c, err)
}

// TooManyRequests answers requests rejected by the rate limiter.
func TooManyRequests(c *fiber.Ctx) error {
	return utils.Respond(c, fiber.StatusTooManyRequests, utils.ErrorBody{Error: utils.ErrorDetail{
		Code:    "RATE_LIMITED",
		Message: "too many requests, please try again later",
	}})
}

package utils

import (
	apperrors "tapdeal/internal/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorBody is the uniform error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Respond sends a JSON response with the specified status code.
func Respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(data)
}

// Success sends a successful JSON response.
func Success(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusOK, data)
}

// Created sends a JSON response with status 201.
func Created(c *fiber.Ctx, data interface{}) error {
	return Respond(c, fiber.StatusCreated, data)
}

// Unauthorized sends a JSON error response with status 401.
func Unauthorized(c *fiber.Ctx, message string) error {
	return Respond(c, fiber.StatusUnauthorized, ErrorBody{Error: ErrorDetail{Code: "UNAUTHORIZED", Message: message}})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation, apperrors.KindSecurityRejection:
		return fiber.StatusBadRequest
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindInvalidState, apperrors.KindConflict:
		return fiber.StatusConflict
	case apperrors.KindForbidden:
		return fiber.StatusForbidden
	case apperrors.KindUpstreamUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Error renders err in the error envelope. Errors outside the domain
// taxonomy are logged and answered with a generic internal error.
func Error(c *fiber.Ctx, err error) error {
	de, ok := apperrors.As(err)
	if !ok || de.Kind == apperrors.KindInternal {
		log.Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Interface("request_id", c.Locals("requestid")).
			Msg("request failed")
		de = apperrors.ErrInternal
	} else if de.Err != nil {
		log.Warn().
			Err(de.Err).
			Str("code", de.Code).
			Str("path", c.Path()).
			Msg("request rejected")
	}

	return Respond(c, StatusFor(de.Kind), ErrorBody{Error: ErrorDetail{
		Code:    de.Code,
		Message: de.Message,
		Field:   de.Field,
	}})
}

package utils

import (
	"context"
	"errors"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"github.com/gofiber/fiber/v2"
)

// StatusFromError maps service errors onto HTTP status codes.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, sentinel.ErrInvalidAction),
		errors.Is(err, sentinel.ErrInvalidDefinition),
		errors.Is(err, sentinel.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, sentinel.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, sentinel.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, sentinel.ErrConditionNotMet):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorResponse writes {"error": ...} with the mapped status. Internal errors are not echoed.
func ErrorResponse(c *fiber.Ctx, err error) error {
	status := StatusFromError(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "Internal Server Error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

package response

import (
	"errors"

	apperrors "casa/internal/errors"

	"github.com/gofiber/fiber/v2"
)

func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(fiber.Map{
		"message": message,
		"data":    data,
	})
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

func ServerError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, message)
}

func Unauthorized(c *fiber.Ctx) error {
	return Error(c, fiber.StatusUnauthorized, "Unauthorized")
}

// Domain maps a typed domain error onto the HTTP status it deserves and
// includes the error code so clients can branch without parsing messages.
func Domain(c *fiber.Ctx, err error) error {
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		return ServerError(c, "internal error")
	}
	return c.Status(statusFor(domainErr)).JSON(fiber.Map{
		"error": domainErr.Message,
		"code":  domainErr.Code,
	})
}

func statusFor(err *apperrors.DomainError) int {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, apperrors.ErrDuplicateCapture),
		errors.Is(err, apperrors.ErrDisputeWindowClosed),
		errors.Is(err, apperrors.ErrInvoiceDisputed),
		errors.Is(err, apperrors.ErrReconciliationRequired):
		return fiber.StatusConflict
	case errors.Is(err, apperrors.ErrInsufficientAuthorization):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrGateway):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

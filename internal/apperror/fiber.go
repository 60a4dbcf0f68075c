package apperror

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Body is the canonical error payload.
type Body struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Handler renders AppError and fiber.Error values as Body. Untyped errors
// are reported as 500 without leaking their text.
func Handler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(Status(appErr)).JSON(Body{Message: appErr.Message, Field: appErr.Field})
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(Body{Message: fiberErr.Message})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(Body{Message: "internal server error"})
}

package middleware

import (
	"bloodbank-ledger/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler is the global Fiber error handler. Errors that escape a
// handler go through the same mapping handlers use.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return response.FromError(c, err)
}

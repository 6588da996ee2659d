package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/autograde-api/internal/utils"
)

// WithAuth wraps a handler so it only runs for an authenticated user. Every
// row is scoped to its owner, so the user id is the whole authorization model.
func WithAuth(handler fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		return handler(c)
	}
}

// RequireUser is WithAuth as a route middleware.
func RequireUser() fiber.Handler {
	return WithAuth(func(c *fiber.Ctx) error {
		return c.Next()
	})
}

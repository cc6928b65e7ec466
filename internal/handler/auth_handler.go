package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fridgechef/api/internal/middleware"
)

// AuthHandler answers the gateway's ForwardAuth calls. It runs behind the
// token middleware, so reaching it means the token was valid.
type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// Verify handles GET /auth/verify and returns the identity as X-User-*
// headers.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	c.Set("X-User-Id", middleware.GetUserID(c))
	c.Set("X-User-Email", middleware.GetUserEmail(c))
	return c.SendStatus(fiber.StatusOK)
}

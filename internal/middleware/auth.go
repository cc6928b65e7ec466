package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fridgechef/api/internal/auth"
	"github.com/fridgechef/api/pkg/response"
)

const (
	localUserID = "userId"
	localEmail  = "email"
	localName   = "name"
)

// AuthMiddleware authenticates bearer tokens against Zitadel, falling back
// to legacy HMAC tokens when a secret is configured.
type AuthMiddleware struct {
	verifier  auth.TokenVerifier
	jwtSecret string
}

// NewAuthMiddleware accepts either argument empty, not both.
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, jwtSecret: jwtSecret}
}

func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return response.Unauthorized(c, "Missing or malformed authorization header")
		}

		if m.verifier != nil {
			if claims, err := m.verifier.Validate(token); err == nil {
				setUser(c, claims.UserID, claims.Email, claims.Name)
				return c.Next()
			}
			if m.jwtSecret == "" {
				return response.Unauthorized(c, "Invalid or expired token")
			}
		}

		if m.jwtSecret != "" {
			claims, err := auth.ValidateLegacyToken(token, m.jwtSecret)
			if err != nil {
				return response.Unauthorized(c, "Invalid or expired token")
			}
			setUser(c, claims.UserID, claims.Email, "")
			return c.Next()
		}

		return response.Unauthorized(c, "Authentication not configured")
	}
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

func setUser(c *fiber.Ctx, userID, email, name string) {
	c.Locals(localUserID, userID)
	c.Locals(localEmail, email)
	c.Locals(localName, name)
}

// GetUserID returns the authenticated user, or "" outside authenticated
// routes.
func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals(localUserID).(string)
	return userID
}

func GetUserEmail(c *fiber.Ctx) string {
	email, _ := c.Locals(localEmail).(string)
	return email
}

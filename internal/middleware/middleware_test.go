package middleware

import (
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/auth"
)

func whoami(c *fiber.Ctx) error {
	return c.SendString(GetUserID(c) + "|" + GetUserEmail(c))
}

func TestAuthenticate_LegacyToken(t *testing.T) {
	app := fiber.New()
	app.Get("/me", NewAuthMiddleware(nil, "secret").Authenticate(), whoami)

	token, err := auth.IssueLegacyToken("user-1", "cook@example.com", "secret", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, fiber.StatusOK},
		{"lowercase scheme", "bearer " + token, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, fiber.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAuthenticate_NotConfigured(t *testing.T) {
	app := fiber.New()
	app.Get("/me", NewAuthMiddleware(nil, "").Authenticate(), whoami)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/me", GatewayAuthMiddleware(), whoami)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("X-User-Id", "user-9")
	req.Header.Set("X-User-Email", "nine@example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimiter_Limit(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	userID := "user-" + uuid.NewString()
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		setUser(c, userID, "", "")
		return c.Next()
	})
	app.Get("/", NewRateLimiter(rdb, zap.NewNop()).Limit("test", 2, time.Minute), whoami)

	for i, want := range []int{fiber.StatusOK, fiber.StatusOK, fiber.StatusTooManyRequests} {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "request %d", i+1)
		if want == fiber.StatusTooManyRequests {
			assert.NotEmpty(t, resp.Header.Get("Retry-After"))
		}
	}
}

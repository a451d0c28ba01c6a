package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newProtectedApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/protected", BearerSecret(secret), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestBearerSecret(t *testing.T) {
	app := newProtectedApp("s3cret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", want: fiber.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: fiber.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer nope", want: fiber.StatusUnauthorized},
		{name: "valid", header: "Bearer s3cret", want: fiber.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestBearerSecretEmptyLeavesRouteOpen(t *testing.T) {
	resp, err := newProtectedApp("").Test(httptest.NewRequest("GET", "/protected", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestWebhookRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Post("/hook", WebhookRateLimiter(2, nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/hook", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/hook", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

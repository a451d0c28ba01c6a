package middleware

import (
	"crypto/subtle"
	"strings"

	"dripcrm/utils"

	"github.com/gofiber/fiber/v2"
)

// BearerSecret requires "Authorization: Bearer <secret>". An empty secret
// leaves the route open.
func BearerSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
		}

		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid authorization format", nil)
		}

		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(tokenParts[1])), []byte(secret)) != 1 {
			utils.LogEvent("unauthorized_request", map[string]interface{}{
				"endpoint": c.Path(),
				"ip":       c.IP(),
			})
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Unauthorized", nil)
		}

		return c.Next()
	}
}

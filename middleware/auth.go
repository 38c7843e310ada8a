// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalUserID   = "user_id"
	LocalUserName = "user_name"
)

// UserContextMiddleware extracts the player identity set by the Gateway.
// Every duel route acts on behalf of a player, so X-User-ID is mandatory.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID missing on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing_user_context",
			})
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserName, strings.TrimSpace(c.Get("X-User-Name")))
		return c.Next()
	}
}

// UserID returns the player id stored by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// UserName returns the display name forwarded by the Gateway, if any.
func UserName(c *fiber.Ctx) string {
	name, _ := c.Locals(LocalUserName).(string)
	return name
}

package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp() *fiber.App {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("secret"))
	app.Get("/me", UserContextMiddleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": UserID(c), "name": UserName(c)})
	})
	return app
}

func TestGatewayAuth(t *testing.T) {
	app := testApp()
	cases := map[string]struct {
		auth string
		want int
	}{
		"missing":   {"", fiber.StatusUnauthorized},
		"wrong":     {"Bearer nope", fiber.StatusUnauthorized},
		"bearer":    {"Bearer secret", fiber.StatusOK},
		"raw token": {"secret", fiber.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			req.Header.Set("X-User-ID", "alice")
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestUserContext(t *testing.T) {
	app := testApp()

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Name", "Alice")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "alice", body["id"])
	assert.Equal(t, "Alice", body["name"])
}

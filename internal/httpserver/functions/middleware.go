package functions

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/orchestr8/dashboard/internal/httpserver/httputil"
)

const ownerLocal = "ownerID"

// requireOwner validates the bearer token and stashes the owner id for the
// handlers downstream.
func requireOwner(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "missing bearer token")
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "invalid bearer token")
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "token missing subject")
		}

		c.Locals(ownerLocal, sub)
		return c.Next()
	}
}

func ownerFromCtx(c *fiber.Ctx) (string, bool) {
	owner, ok := c.Locals(ownerLocal).(string)
	return owner, ok && owner != ""
}

package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// LocalUserID is the fiber locals key holding the authenticated user id.
const LocalUserID = "user_id"

// JWTMiddleware validates bearer tokens and stores user_id in locals.
func JWTMiddleware(signer *Signer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims, err := signer.Parse(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(LocalUserID, claims.UserID)
		return c.Next()
	}
}

// SocketMiddleware is for websocket upgrades, where browsers cannot set
// headers: the token may also come as ?token=. A missing token lets the
// connection through unauthenticated; a bad one is rejected.
func SocketMiddleware(signer *Signer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			token = bearerFromHeader(c.Get("Authorization"))
		}
		if token == "" {
			return c.Next()
		}

		claims, err := signer.Parse(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(LocalUserID, claims.UserID)
		return c.Next()
	}
}

// UserID reads the id stored by either middleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

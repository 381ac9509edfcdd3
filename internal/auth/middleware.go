package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// User is the caller identity carried by a valid bearer token.
type User struct {
	ID    string
	Admin bool
}

// Middleware validates an optional bearer token and sets the User on the
// request. Requests without an Authorization header continue anonymously; a
// malformed or expired token is rejected.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid auth header format.")
		}

		claims, err := ParseToken(parts[1], secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token.")
		}

		c.Locals("user", &User{ID: claims.Subject, Admin: claims.Admin})
		return c.Next()
	}
}

// GetUser extracts the User from a Fiber context; nil means anonymous.
func GetUser(c *fiber.Ctx) *User {
	user, _ := c.Locals("user").(*User)
	return user
}

package admin

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// SessionCookie names the cookie carrying the console session id.
const SessionCookie = "labdesk_session"

const loginPath = "/admin/login"

// RequireSession redirects requests without a live admin session to the
// login page. No error is shown.
func RequireSession(m *SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := m.Get(c.Cookies(SessionCookie))
		if s == nil {
			clearSessionCookie(c)
			return c.Redirect(loginPath, fiber.StatusSeeOther)
		}
		c.Locals("session", s)
		return c.Next()
	}
}

// CurrentSession extracts the session set by RequireSession.
func CurrentSession(c *fiber.Ctx) *Session {
	s, _ := c.Locals("session").(*Session)
	return s
}

func setSessionCookie(c *fiber.Ctx, s *Session, maxAge time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    s.ID,
		Path:     "/admin",
		MaxAge:   int(maxAge.Seconds()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func clearSessionCookie(c *fiber.Ctx) {
	if c.Cookies(SessionCookie) == "" {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

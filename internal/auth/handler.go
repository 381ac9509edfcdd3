package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"labdesk/internal/record"
)

// ErrUserNotFound is returned by a UserStore when no user matches.
var ErrUserNotFound = errors.New("user not found")

// UserStore looks up auth records of the users collection.
type UserStore interface {
	// FindUserByEmail returns the user record and its password hash.
	FindUserByEmail(ctx context.Context, email string) (record.Record, string, error)
	FindUser(ctx context.Context, id string) (record.Record, error)
}

// AuthHandler handles the users collection's auth endpoints.
type AuthHandler struct {
	users     UserStore
	jwtSecret string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users UserStore, jwtSecret string, ttl time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, ttl: ttl, logger: logger}
}

type authResponse struct {
	Token  string        `json:"token"`
	Record record.Record `json:"record"`
}

// AuthWithPassword handles POST /api/collections/users/auth-with-password.
func (h *AuthHandler) AuthWithPassword(c *fiber.Ctx) error {
	var body struct {
		Identity string `json:"identity" form:"identity"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body.")
	}
	email := strings.TrimSpace(body.Identity)
	if email == "" || body.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to authenticate.")
	}

	rec, hash, err := h.users.FindUserByEmail(c.UserContext(), email)
	if errors.Is(err, ErrUserNotFound) {
		return fiber.NewError(fiber.StatusBadRequest, "Failed to authenticate.")
	}
	if err != nil {
		return err
	}
	if !CheckPassword(body.Password, hash) {
		h.logger.Info("password mismatch", zap.String("user", rec.ID))
		return fiber.NewError(fiber.StatusBadRequest, "Failed to authenticate.")
	}

	return h.respond(c, rec)
}

// Refresh handles POST /api/collections/users/auth-refresh. It re-reads the
// user so the returned record and token carry the current admin flag.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return fiber.NewError(fiber.StatusUnauthorized, "The request requires valid record authorization token to be set.")
	}

	rec, err := h.users.FindUser(c.UserContext(), user.ID)
	if errors.Is(err, ErrUserNotFound) {
		return fiber.NewError(fiber.StatusUnauthorized, "The authorized record no longer exists.")
	}
	if err != nil {
		return err
	}

	return h.respond(c, rec)
}

func (h *AuthHandler) respond(c *fiber.Ctx, rec record.Record) error {
	token, err := GenerateToken(rec.ID, rec.Bool("is_admin"), h.jwtSecret, h.ttl)
	if err != nil {
		return err
	}
	return c.JSON(authResponse{Token: token, Record: rec})
}

// RegisterAuthRoutes registers the auth routes on the given router.
func RegisterAuthRoutes(r fiber.Router, h *AuthHandler) {
	users := r.Group("/api/collections/users")
	users.Post("/auth-with-password", h.AuthWithPassword)
	users.Post("/auth-refresh", h.Refresh)
}

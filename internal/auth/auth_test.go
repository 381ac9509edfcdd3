package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labdesk/internal/record"
)

const secret = "test-secret"

func TestToken_RoundTrip(t *testing.T) {
	tok, err := GenerateToken("u1", true, secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.True(t, claims.Admin)

	_, err = ParseToken(tok, "other-secret")
	assert.Error(t, err)
}

func TestToken_Expired(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ParseToken(tok, secret)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = ParseToken("not-a-jwt", secret)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword("s3cret", hash))
	assert.False(t, CheckPassword("wrong", hash))
	assert.False(t, CheckPassword("s3cret", ""))
}

type fakeUsers struct {
	byEmail map[string]record.Record
	hashes  map[string]string
}

func (f *fakeUsers) FindUserByEmail(_ context.Context, email string) (record.Record, string, error) {
	rec, ok := f.byEmail[email]
	if !ok {
		return record.Record{}, "", ErrUserNotFound
	}
	return rec, f.hashes[rec.ID], nil
}

func (f *fakeUsers) FindUser(_ context.Context, id string) (record.Record, error) {
	for _, rec := range f.byEmail {
		if rec.ID == id {
			return rec, nil
		}
	}
	return record.Record{}, ErrUserNotFound
}

func newAuthApp(t *testing.T) *fiber.App {
	t.Helper()
	hash, err := HashPassword("pw")
	require.NoError(t, err)

	admin := record.New("users", "u1")
	admin.Attrs["email"] = "admin@example.com"
	admin.Attrs["is_admin"] = true
	users := &fakeUsers{
		byEmail: map[string]record.Record{"admin@example.com": admin},
		hashes:  map[string]string{"u1": hash},
	}

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
		}
		return c.Status(code).JSON(fiber.Map{"code": code, "message": err.Error()})
	}})
	app.Use(Middleware(secret))
	RegisterAuthRoutes(app, NewAuthHandler(users, secret, time.Hour, zap.NewNop()))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		if u := GetUser(c); u != nil {
			return c.SendString(u.ID)
		}
		return c.SendString("anonymous")
	})
	return app
}

func TestAuthWithPassword(t *testing.T) {
	app := newAuthApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/collections/users/auth-with-password",
		strings.NewReader(`{"identity":"admin@example.com","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Token  string        `json:"token"`
		Record record.Record `json:"record"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "u1", body.Record.ID)

	claims, err := ParseToken(body.Token, secret)
	require.NoError(t, err)
	assert.True(t, claims.Admin)

	req = httptest.NewRequest(http.MethodPost, "/api/collections/users/auth-refresh", nil)
	req.Header.Set("Authorization", "Bearer "+body.Token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthWithPassword_Rejected(t *testing.T) {
	app := newAuthApp(t)

	for _, payload := range []string{
		`{"identity":"admin@example.com","password":"nope"}`,
		`{"identity":"ghost@example.com","password":"pw"}`,
		`{"identity":"","password":""}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/collections/users/auth-with-password", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, payload)
	}
}

func TestRefresh_RequiresToken(t *testing.T) {
	app := newAuthApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/collections/users/auth-refresh", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMiddleware(t *testing.T) {
	app := newAuthApp(t)
	tok, err := GenerateToken("u9", false, secret, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		header string
		status int
		body   string
	}{
		{"", http.StatusOK, "anonymous"},
		{"Bearer " + tok, http.StatusOK, "u9"},
		{"Bearer garbage", http.StatusUnauthorized, ""},
		{"Token " + tok, http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tc.status, resp.StatusCode, tc.header)
		if tc.body != "" {
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.body, string(body))
		}
	}
}

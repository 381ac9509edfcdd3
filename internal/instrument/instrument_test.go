package instrument

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newApp(logger *zap.Logger) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(logger))
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendString(TraceID(c.UserContext()))
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})
	return app
}

func TestMiddleware_AssignsTraceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := newApp(zap.New(core))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	id := resp.Header.Get(HeaderTraceID)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, id, fields["trace_id"])
	assert.Equal(t, "/ok", fields["path"])
	assert.EqualValues(t, 200, fields["status"])
}

func TestMiddleware_KeepsIncomingTraceID(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	app := newApp(zap.New(core))
	incoming := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderTraceID, incoming)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, incoming, resp.Header.Get(HeaderTraceID))

	// anything that is not a uuid is replaced
	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderTraceID, "<script>")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.NotEqual(t, "<script>", resp.Header.Get(HeaderTraceID))
}

func TestMiddleware_LogsFinalStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := newApp(zap.New(core))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.EqualValues(t, 404, entries[1].ContextMap()["status"])
}

func TestLogger_AddsTraceField(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	Logger(WithTraceID(context.Background(), "abc"), base).Info("x")
	Logger(context.Background(), base).Info("y")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[0].ContextMap()["trace_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

package devstore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labdesk/internal/admin"
	"labdesk/internal/config"
	"labdesk/internal/devstore"
	"labdesk/internal/form"
	"labdesk/internal/gateway"
	"labdesk/internal/instrument"
	"labdesk/internal/schema"
	"labdesk/internal/storage"
)

const seed = `
records:
  users:
    - email: admin@lab.test
      password: secret
      name: Lab Admin
      is_admin: true
    - email: patient@lab.test
      password: secret
      name: Patient
  categories:
    - id: cardiac
      name: Cardiac Health
    - id: diabetes
      name: Diabetes
  tests:
    - id: lipid
      name: Lipid Profile
      code: LP-01
      price: 1250
      category: cardiac
    - id: hba1c
      name: HbA1c
      price: 600
      category: diabetes
`

// startStore runs a seeded devstore behind a real HTTP listener.
func startStore(t *testing.T) *gateway.Client {
	t.Helper()
	ctx := context.Background()
	reg := schema.Default()

	st, err := devstore.Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   ":memory:",
		Name:   "e2e_" + uuid.NewString(),
	}, reg)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	logger := zap.NewNop()
	s, err := devstore.New(st, reg, storage.NewLocalStorage(t.TempDir()), logger, devstore.Options{
		JWTSecret: "e2e-secret",
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)
	_, err = s.Seed(ctx, strings.NewReader(seed))
	require.NoError(t, err)

	srv := httptest.NewServer(adaptor.FiberApp(s.App(instrument.Middleware(logger))))
	t.Cleanup(srv.Close)
	return gateway.New(srv.URL, srv.Client())
}

func TestGatewayAgainstDevStore(t *testing.T) {
	ctx := context.Background()
	client := startStore(t)
	tests, _ := schema.Default().Lookup(schema.Tests)

	_, _, err := client.AuthWithPassword(ctx, "admin@lab.test", "wrong")
	require.Error(t, err)

	sess, who, err := client.AuthWithPassword(ctx, "admin@lab.test", "secret")
	require.NoError(t, err)
	assert.True(t, who.IsAdmin)
	assert.Equal(t, "Lab Admin", who.Name)

	again, err := client.Identity(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, who.ID, again.ID)

	res, err := client.List(ctx, sess, schema.Tests, gateway.ListParams{
		Sort:   "name",
		Filter: gateway.SearchFilter(tests.SearchFields, "lp-"),
		Expand: tests.Expand,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	lipid := res.Items[0]
	assert.Equal(t, "Lipid Profile", lipid.String("name"))
	category, ok := lipid.One("category")
	require.True(t, ok)
	assert.Equal(t, "Cardiac Health", gateway.OptionLabel(category, "name"))

	opts, err := client.RelationOptions(ctx, sess, tests.Fields)
	require.NoError(t, err)
	assert.Len(t, opts["category"], 2)
	assert.Len(t, opts["included_tests"], 2)

	d := form.NewDraft("")
	d.SetString("name", "Diabetes Package")
	d.SetString("price", "1999.50")
	d.SetString("category", "diabetes")
	d.SetFlag("top_level_test", true)
	d.SetList("included_tests", []string{"lipid", "hba1c"})
	d.SetList("flags", []string{"fasting_required"})
	d.SetFile("image", &form.Upload{Filename: "pkg.png", ContentType: "image/png", Data: []byte("img")})
	sub, err := form.Encode(tests, d, time.UTC)
	require.NoError(t, err)

	created, err := client.Create(ctx, sess, schema.Tests, sub)
	require.NoError(t, err)
	assert.Equal(t, "Diabetes Package", created.String("name"))
	assert.Equal(t, []string{"lipid", "hba1c"}, created.Strings("included_tests"))
	assert.True(t, created.Bool("top_level_test"))
	image := created.String("image")
	require.NotEmpty(t, image)

	resp, err := http.Get(client.FileURL(schema.Tests, created.ID, image))
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "img", string(data))

	// an edit round trip keeps the stored image
	d = form.Seed(tests, created, time.UTC)
	d.SetString("price", "1799")
	d.SetList("included_tests", []string{"hba1c", created.ID})
	sub, err = form.Encode(tests, d, time.UTC)
	require.NoError(t, err)
	updated, err := client.Update(ctx, sess, schema.Tests, created.ID, sub)
	require.NoError(t, err)
	assert.Equal(t, image, updated.String("image"))
	assert.Equal(t, []string{"hba1c"}, updated.Strings("included_tests"))

	full, err := client.Get(ctx, sess, schema.Tests, created.ID, "category", "included_tests")
	require.NoError(t, err)
	category, ok = full.One("category")
	require.True(t, ok)
	assert.Equal(t, "Diabetes", category.String("name"))
	assert.Len(t, full.Many("included_tests"), 1)

	require.NoError(t, client.Delete(ctx, sess, schema.Tests, created.ID))
	_, err = client.Get(ctx, sess, schema.Tests, created.ID)
	assert.True(t, gateway.IsNotFound(err))
}

func TestGatewayNonAdminDenied(t *testing.T) {
	ctx := context.Background()
	client := startStore(t)

	sess, who, err := client.AuthWithPassword(ctx, "patient@lab.test", "secret")
	require.NoError(t, err)
	assert.False(t, who.IsAdmin)

	_, err = client.List(ctx, sess, schema.Users, gateway.ListParams{})
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	err = client.Delete(ctx, sess, schema.Tests, "lipid")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestConsoleAgainstDevStore(t *testing.T) {
	client := startStore(t)

	views, err := admin.ParseViews()
	require.NoError(t, err)
	sessions := admin.NewSessionManager(time.Hour, time.Hour, admin.SurfaceFactory(client, 200, time.UTC))
	h := admin.NewHandler(client, schema.Default(), sessions, views, zap.NewNop(), admin.Options{
		Location:   time.UTC,
		LoadWait:   5 * time.Second,
		SessionTTL: time.Hour,
	})
	app := fiber.New()
	admin.RegisterRoutes(app, h)

	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(url.Values{
		"email":    {"admin@lab.test"},
		"password": {"secret"},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == admin.SessionCookie {
			cookie = c.Value
		}
	}
	require.NotEmpty(t, cookie)

	req = httptest.NewRequest(http.MethodGet, "/admin/c/tests?q=lipid", nil)
	req.Header.Set("Cookie", admin.SessionCookie+"="+cookie)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Lipid Profile")
	assert.NotContains(t, string(body), "HbA1c")
}

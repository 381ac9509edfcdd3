// Package admin is the web console: per-session list and edit surfaces over
// the collections of the schema registry.
package admin

import (
	"errors"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"labdesk/internal/form"
	"labdesk/internal/gateway"
	"labdesk/internal/schema"
)

// DefaultLoadWait is how long a request waits for a load before rendering the
// spinner.
const DefaultLoadWait = 1500 * time.Millisecond

type Options struct {
	PublicURL  string
	Location   *time.Location
	LoadWait   time.Duration
	SessionTTL time.Duration
}

type Handler struct {
	backend  Backend
	registry *schema.Registry
	sessions *SessionManager
	views    *Views
	logger   *zap.Logger
	opts     Options
}

func NewHandler(b Backend, reg *schema.Registry, sessions *SessionManager, views *Views, logger *zap.Logger, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.LoadWait <= 0 {
		opts.LoadWait = DefaultLoadWait
	}
	if opts.PublicURL == "" {
		opts.PublicURL = "/"
	}
	return &Handler{backend: b, registry: reg, sessions: sessions, views: views, logger: logger, opts: opts}
}

// SurfaceFactory binds new sessions' surfaces to backend.
func SurfaceFactory(b Backend, pageSize int, loc *time.Location) func(gateway.Session) (*ListSurface, *EditSurface) {
	return func(cred gateway.Session) (*ListSurface, *EditSurface) {
		return NewListSurface(b, cred, pageSize), NewEditSurface(b, cred, loc)
	}
}

func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/", func(c *fiber.Ctx) error { return c.Redirect("/admin", fiber.StatusSeeOther) })
	app.Get("/admin/login", h.LoginPage)
	app.Post("/admin/login", h.Login)

	admin := app.Group("/admin", RequireSession(h.sessions))

	admin.Post("/logout", h.Logout)
	admin.Get("/", h.Home)
	admin.Get("/c/:collection", h.List)
	admin.Get("/c/:collection/new", h.New)
	admin.Get("/c/:collection/edit/:id", h.Edit)
	admin.Get("/c/:collection/form", h.Form)
	admin.Post("/c/:collection/form", h.Submit)
	admin.Post("/c/:collection/form/close", h.CloseForm)
	admin.Get("/c/:collection/delete/:id", h.ConfirmDelete)
	admin.Post("/c/:collection/delete/:id", h.Delete)
}

// --- Auth ---

func (h *Handler) LoginPage(c *fiber.Ctx) error {
	if s := h.sessions.Get(c.Cookies(SessionCookie)); s != nil {
		return c.Redirect("/admin", fiber.StatusSeeOther)
	}
	return h.views.Render(c, fiber.StatusOK, "login", loginPage{Page: Page{Title: "Sign in"}})
}

// Login authenticates against the store and checks the admin flag once. A
// non-admin is sent to the public site without a session or a message.
func (h *Handler) Login(c *fiber.Ctx) error {
	email := strings.TrimSpace(c.FormValue("email"))
	password := c.FormValue("password")

	cred, _, err := h.backend.AuthWithPassword(c.Context(), email, password)
	if err != nil {
		h.logger.Info("login failed", zap.String("email", email), zap.Error(err))
		return h.views.Render(c, fiber.StatusUnauthorized, "login", loginPage{
			Page:  Page{Title: "Sign in"},
			Email: email,
			Err:   err.Error(),
		})
	}

	who, err := h.backend.Identity(c.Context(), cred)
	if err != nil || !who.IsAdmin {
		h.logger.Info("admin access denied", zap.String("email", email), zap.Error(err))
		return c.Redirect(h.opts.PublicURL, fiber.StatusSeeOther)
	}

	s := h.sessions.Create(cred, who)
	setSessionCookie(c, s, h.opts.SessionTTL)
	h.logger.Info("admin signed in", zap.String("user", who.ID), zap.String("session", s.ID))
	return c.Redirect("/admin", fiber.StatusSeeOther)
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	if s := CurrentSession(c); s != nil {
		h.sessions.Remove(s.ID)
	}
	clearSessionCookie(c)
	return c.Redirect(loginPath, fiber.StatusSeeOther)
}

// --- List ---

func (h *Handler) Home(c *fiber.Ctx) error {
	names := h.registry.Names()
	if len(names) == 0 {
		return fiber.ErrNotFound
	}
	return c.Redirect("/admin/c/"+names[0], fiber.StatusSeeOther)
}

func (h *Handler) List(c *fiber.Ctx) error {
	s := CurrentSession(c)
	coll, ok := h.collection(c)
	if !ok {
		return h.unknownCollection(c, s)
	}
	q := strings.TrimSpace(c.Query("q"))
	if c.Query("refresh") != "" || s.List.NeedsLoad(coll.Name, q) {
		s.List.Load(coll, q)
	}
	s.List.Wait(c.Context(), h.opts.LoadWait)
	return h.renderList(c, s, coll, fiber.StatusOK, "")
}

func (h *Handler) renderList(c *fiber.Ctx, s *Session, coll *schema.Collection, status int, alert string) error {
	st := s.List.Snapshot()
	data := listPage{
		Page:       h.page(s, coll.Name, coll.Label),
		Collection: coll,
		Query:      st.Query,
		Err:        st.Err,
		Loading:    st.Loading || st.Collection != coll.Name,
	}
	data.Alert = alert
	if data.Loading {
		data.Refresh = listURL(coll.Name, st.Query)
	}
	for _, col := range coll.Columns {
		data.Headers = append(data.Headers, col.Header)
	}
	if !data.Loading {
		for _, rec := range st.Rows {
			row := rowView{
				ID:        rec.ID,
				EditURL:   "/admin/c/" + coll.Name + "/edit/" + url.PathEscape(rec.ID),
				DeleteURL: "/admin/c/" + coll.Name + "/delete/" + url.PathEscape(rec.ID) + "?q=" + url.QueryEscape(st.Query),
			}
			for _, col := range coll.Columns {
				row.Cells = append(row.Cells, coll.Cell(col, rec, h.opts.Location))
			}
			data.Rows = append(data.Rows, row)
		}
	}
	return h.views.Render(c, status, "list", data)
}

// --- Edit ---

func (h *Handler) New(c *fiber.Ctx) error {
	return h.open(c, "")
}

func (h *Handler) Edit(c *fiber.Ctx) error {
	return h.open(c, c.Params("id"))
}

func (h *Handler) open(c *fiber.Ctx, id string) error {
	s := CurrentSession(c)
	coll, ok := h.collection(c)
	if !ok {
		return h.unknownCollection(c, s)
	}
	s.Edit.Open(coll, id)
	s.Edit.Wait(c.Context(), h.opts.LoadWait)
	return h.renderForm(c, s, coll, fiber.StatusOK, "")
}

// Form renders the current state of the edit surface without reopening it.
func (h *Handler) Form(c *fiber.Ctx) error {
	s := CurrentSession(c)
	coll, ok := h.collection(c)
	if !ok {
		return h.unknownCollection(c, s)
	}
	return h.renderForm(c, s, coll, fiber.StatusOK, "")
}

func (h *Handler) renderForm(c *fiber.Ctx, s *Session, coll *schema.Collection, status int, alert string) error {
	v := s.Edit.View()
	if v.State == Closed {
		if v.Err != "" {
			return h.views.Render(c, fiber.StatusBadGateway, "message", messagePage{
				Page:    h.page(s, coll.Name, coll.Label),
				Heading: "Could not open record",
				Message: v.Err,
				Back:    listURL(coll.Name, s.List.Snapshot().Query),
			})
		}
		return c.Redirect(listURL(coll.Name, s.List.Snapshot().Query), fiber.StatusSeeOther)
	}
	if v.Collection.Name != coll.Name {
		return c.Redirect("/admin/c/"+v.Collection.Name+"/form", fiber.StatusSeeOther)
	}

	data := formPage{
		Page:       h.page(s, coll.Name, coll.Label),
		Collection: coll,
		ID:         v.Draft.ID,
		IsNew:      v.Draft.IsNew(),
		Opening:    v.State == Opening,
		Saving:     v.State == Saving,
	}
	data.Alert = alert
	if data.Opening {
		data.Refresh = "/admin/c/" + coll.Name + "/form"
	} else {
		data.Fields = buildWidgets(v, h.backend.FileURL)
	}
	return h.views.Render(c, status, "form", data)
}

// Submit applies the posted form to the draft and, unless only applying,
// saves it. A failed save keeps the form open and raises an alert.
func (h *Handler) Submit(c *fiber.Ctx) error {
	s := CurrentSession(c)
	coll, ok := h.collection(c)
	if !ok {
		return h.unknownCollection(c, s)
	}

	mf, err := postedForm(c)
	if err != nil {
		return h.renderForm(c, s, coll, fiber.StatusBadRequest, "Invalid form submission: "+err.Error())
	}
	draft, err := form.FromForm(coll, mf)
	if err != nil {
		return h.renderForm(c, s, coll, fiber.StatusBadRequest, err.Error())
	}

	if c.FormValue("_action") == "apply" {
		if err := s.Edit.Update(draft); err != nil {
			return h.editError(c, s, coll, err)
		}
		return h.renderForm(c, s, coll, fiber.StatusOK, "")
	}

	rec, err := s.Edit.Save(c.Context(), draft)
	if err != nil {
		h.logger.Warn("save failed",
			zap.String("collection", coll.Name),
			zap.String("id", draft.ID),
			zap.Error(err))
		return h.editError(c, s, coll, err)
	}
	h.logger.Info("record saved", zap.String("collection", coll.Name), zap.String("id", rec.ID))

	q := s.List.Snapshot().Query
	s.List.Load(coll, q)
	return c.Redirect(listURL(coll.Name, q), fiber.StatusSeeOther)
}

func (h *Handler) editError(c *fiber.Ctx, s *Session, coll *schema.Collection, err error) error {
	if errors.Is(err, ErrNotEditing) {
		return c.Redirect(listURL(coll.Name, s.List.Snapshot().Query), fiber.StatusSeeOther)
	}
	status := fiber.StatusUnprocessableEntity
	if errors.Is(err, ErrSaveInProgress) {
		status = fiber.StatusConflict
	}
	return h.renderForm(c, s, coll, status, err.Error())
}

func (h *Handler) CloseForm(c *fiber.Ctx) error {
	s := CurrentSession(c)
	s.Edit.Close()
	return c.Redirect(listURL(c.Params("collection"), s.List.Snapshot().Query), fiber.StatusSeeOther)
}

// --- Delete ---

func (h *Handler) ConfirmDelete(c *fiber.Ctx) error {
	s := CurrentSession(c)
	coll, ok := h.collection(c)
	if !ok {
		return h.unknownCollection(c, s)
	}
	id := c.Params("id")
	label := id
	for _, rec := range s.List.Snapshot().Rows {
		if rec.ID == id && len(coll.Columns) > 0 {
			label = coll.Cell(coll.Columns[0], rec, h.opts.Location)
		}
	}
	return h.views.Render(c, fiber.StatusOK, "confirm", confirmPage{
		Page:       h.page(s, coll.Name, "Delete"),
		Collection: coll,
		ID:         id,
		Label:      label,
		Query:      c.Query("q"),
	})
}

// Delete removes the record only when the confirmation was given.
func (h *Handler) Delete(c *fiber.Ctx) error {
	s := CurrentSession(c)
	coll, ok := h.collection(c)
	if !ok {
		return h.unknownCollection(c, s)
	}
	q := strings.TrimSpace(c.FormValue("q"))
	if c.FormValue("confirm") != "yes" {
		return c.Redirect(listURL(coll.Name, q), fiber.StatusSeeOther)
	}

	id := c.Params("id")
	if err := h.backend.Delete(c.Context(), s.Credential, coll.Name, id); err != nil {
		h.logger.Warn("delete failed", zap.String("collection", coll.Name), zap.String("id", id), zap.Error(err))
		s.List.Load(coll, q)
		s.List.Wait(c.Context(), h.opts.LoadWait)
		return h.renderList(c, s, coll, fiber.StatusBadGateway, "Delete failed: "+err.Error())
	}
	h.logger.Info("record deleted", zap.String("collection", coll.Name), zap.String("id", id))

	s.List.Load(coll, q)
	return c.Redirect(listURL(coll.Name, q), fiber.StatusSeeOther)
}

// --- helpers ---

func (h *Handler) collection(c *fiber.Ctx) (*schema.Collection, bool) {
	return h.registry.Lookup(c.Params("collection"))
}

// unknownCollection answers a collection name missing from the registry. The
// store is never called.
func (h *Handler) unknownCollection(c *fiber.Ctx, s *Session) error {
	name := c.Params("collection")
	return h.views.Render(c, fiber.StatusNotFound, "message", messagePage{
		Page:    h.page(s, "", "Unknown collection"),
		Heading: "Unknown collection",
		Message: "There is no collection named \"" + name + "\".",
		Back:    "/admin",
	})
}

func (h *Handler) page(s *Session, active, title string) Page {
	p := Page{Title: title}
	for _, coll := range h.registry.All() {
		p.Nav = append(p.Nav, NavItem{Name: coll.Name, Label: coll.Label, Active: coll.Name == active})
	}
	if s != nil {
		p.User = s.Identity.Email
	}
	return p
}

func listURL(collection, query string) string {
	u := "/admin/c/" + collection
	if query != "" {
		u += "?q=" + url.QueryEscape(query)
	}
	return u
}

// postedForm reads a multipart body, or a urlencoded one as a form with no files.
func postedForm(c *fiber.Ctx) (*multipart.Form, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return c.MultipartForm()
	}
	mf := &multipart.Form{Value: map[string][]string{}, File: map[string][]*multipart.FileHeader{}}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		mf.Value[string(k)] = append(mf.Value[string(k)], string(v))
	})
	return mf, nil
}

package devstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"labdesk/internal/auth"
	"labdesk/internal/instrument"
	"labdesk/internal/record"
	"labdesk/internal/schema"
	"labdesk/internal/store"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// newID returns a 15 character lowercase hex id.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:15]
}

func now() string {
	return time.Now().UTC().Format(schema.TimestampLayout)
}

func (s *Server) table(c *fiber.Ctx) (*table, error) {
	name := c.Params("collection")
	t, ok := s.tables[name]
	if !ok {
		return nil, UnknownCollectionError(name)
	}
	return t, nil
}

func (s *Server) authorize(c *fiber.Ctx, t *table, action Action, id string) error {
	ok, err := s.rules.Allow(t.coll.Name, action, auth.GetUser(c), id)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError()
	}
	return nil
}

type listResponse struct {
	Page       int              `json:"page"`
	PerPage    int              `json:"perPage"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
	Items      []map[string]any `json:"items"`
}

// List handles GET /api/collections/:collection/records.
func (s *Server) List(c *fiber.Ctx) error {
	t, err := s.table(c)
	if err != nil {
		return err
	}
	if err := s.authorize(c, t, ActionList, ""); err != nil {
		return err
	}

	q, err := parseListQuery(c, t)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	recs, total, err := s.listRecords(ctx, t, q)
	if err != nil {
		return err
	}
	if err := s.loadExpand(ctx, t, recs, q.Expand, auth.GetUser(c)); err != nil {
		return err
	}

	items := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, s.wireRecord(rec))
	}
	return c.JSON(listResponse{
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalItems: total,
		TotalPages: totalPages(total, q.PerPage),
		Items:      items,
	})
}

// View handles GET /api/collections/:collection/records/:id.
func (s *Server) View(c *fiber.Ctx) error {
	t, err := s.table(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	if err := s.authorize(c, t, ActionView, id); err != nil {
		return err
	}
	return s.respondRecord(c, t, id)
}

// Create handles POST /api/collections/:collection/records.
func (s *Server) Create(c *fiber.Ctx) error {
	t, err := s.table(c)
	if err != nil {
		return err
	}
	if err := s.authorize(c, t, ActionCreate, ""); err != nil {
		return err
	}

	in, err := readForm(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	co := coerce(t.coll, in, true, s.opts.MaxFileSize)
	if err := s.validate(c, co, "Failed to create record."); err != nil {
		return err
	}

	id := strings.TrimSpace(in.first("id"))
	if id == "" {
		id = newID()
	} else if !idPattern.MatchString(id) {
		return ValidationError("Failed to create record.", map[string]string{"id": "Invalid id."})
	}

	values := co.values
	values["id"] = id
	values["created"] = now()
	values["updated"] = values["created"]
	if err := s.setPassword(t, in, values); err != nil {
		return err
	}

	saved, err := s.saveUploads(ctx, t, id, co.uploads)
	if err != nil {
		return err
	}
	for key, name := range saved {
		values[key] = name
	}

	if err := s.insertRecord(ctx, t, values); err != nil {
		s.removeFiles(ctx, t, id, saved)
		if errors.Is(err, store.ErrUniqueViolation) {
			return ValidationError("Failed to create record.", map[string]string{uniqueField(t): "Value must be unique."})
		}
		return fmt.Errorf("insert %s: %w", t.coll.Name, err)
	}

	instrument.Logger(ctx, s.logger).Info("record created", zap.String("collection", t.coll.Name), zap.String("id", id))
	return s.respondRecord(c, t, id)
}

// Update handles PATCH /api/collections/:collection/records/:id. Only keys
// present in the body change; an absent file key keeps the stored file.
func (s *Server) Update(c *fiber.Ctx) error {
	t, err := s.table(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	if err := s.authorize(c, t, ActionUpdate, id); err != nil {
		return err
	}

	ctx := c.UserContext()
	existing, err := s.getRecord(ctx, t, id)
	if isNotFound(err) {
		return NotFoundError()
	}
	if err != nil {
		return err
	}

	in, err := readForm(c)
	if err != nil {
		return err
	}
	co := coerce(t.coll, in, false, s.opts.MaxFileSize)
	if err := s.validate(c, co, "Failed to update record."); err != nil {
		return err
	}

	values := co.values
	values["updated"] = now()
	if err := s.setPassword(t, in, values); err != nil {
		return err
	}

	saved, err := s.saveUploads(ctx, t, id, co.uploads)
	if err != nil {
		return err
	}
	for key, name := range saved {
		values[key] = name
	}

	if err := s.updateRecord(ctx, t, id, values); err != nil {
		s.removeFiles(ctx, t, id, saved)
		if errors.Is(err, store.ErrUniqueViolation) {
			return ValidationError("Failed to update record.", map[string]string{uniqueField(t): "Value must be unique."})
		}
		if isNotFound(err) {
			return NotFoundError()
		}
		return fmt.Errorf("update %s: %w", t.coll.Name, err)
	}

	// replaced or cleared files
	stale := map[string]string{}
	for _, key := range t.fileColumns() {
		newName, touched := values[key]
		if old := existing.String(key); touched && old != "" && old != newName {
			stale[key] = old
		}
	}
	s.removeFiles(ctx, t, id, stale)

	instrument.Logger(ctx, s.logger).Info("record updated", zap.String("collection", t.coll.Name), zap.String("id", id))
	return s.respondRecord(c, t, id)
}

// Delete handles DELETE /api/collections/:collection/records/:id.
func (s *Server) Delete(c *fiber.Ctx) error {
	t, err := s.table(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	if err := s.authorize(c, t, ActionDelete, id); err != nil {
		return err
	}

	ctx := c.UserContext()
	existing, err := s.getRecord(ctx, t, id)
	if isNotFound(err) {
		return NotFoundError()
	}
	if err != nil {
		return err
	}

	if err := s.deleteRecord(ctx, t, id); err != nil {
		if isNotFound(err) {
			return NotFoundError()
		}
		return fmt.Errorf("delete %s: %w", t.coll.Name, err)
	}

	files := map[string]string{}
	for _, key := range t.fileColumns() {
		if name := existing.String(key); name != "" {
			files[key] = name
		}
	}
	s.removeFiles(ctx, t, id, files)

	instrument.Logger(ctx, s.logger).Info("record deleted", zap.String("collection", t.coll.Name), zap.String("id", id))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) respondRecord(c *fiber.Ctx, t *table, id string) error {
	expand, err := parseExpand(c.Query("expand"), t)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	rec, err := s.getRecord(ctx, t, id)
	if isNotFound(err) {
		return NotFoundError()
	}
	if err != nil {
		return err
	}

	recs := []record.Record{rec}
	if err := s.loadExpand(ctx, t, recs, expand, auth.GetUser(c)); err != nil {
		return err
	}
	return c.JSON(s.wireRecord(recs[0]))
}

// validate merges coercion and relation failures into one validation error.
func (s *Server) validate(c *fiber.Ctx, co *coercion, msg string) error {
	missing, err := s.missingRelations(c.UserContext(), co.relations)
	if err != nil {
		return err
	}
	for k, v := range missing {
		if _, dup := co.errs[k]; !dup {
			co.errs[k] = v
		}
	}
	if len(co.errs) > 0 {
		return ValidationError(msg, co.errs)
	}
	return nil
}

// setPassword hashes a posted password for the users collection.
func (s *Server) setPassword(t *table, in formInput, values map[string]any) error {
	if t.coll.Name != schema.Users {
		return nil
	}
	pw := in.first("password")
	if pw == "" {
		return nil
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	values[store.PasswordColumn] = hash
	return nil
}

func uniqueField(t *table) string {
	if t.coll.Name == schema.Users {
		return "email"
	}
	return "id"
}

// readForm reads a multipart, urlencoded or JSON record body.
func readForm(c *fiber.Ctx) (formInput, error) {
	in := formInput{values: map[string][]string{}, files: map[string][]*multipart.FileHeader{}}
	ct := strings.ToLower(c.Get(fiber.HeaderContentType))

	switch {
	case strings.HasPrefix(ct, fiber.MIMEMultipartForm):
		mf, err := c.MultipartForm()
		if err != nil {
			return in, NewAppError(fiber.StatusBadRequest, "Invalid multipart body.")
		}
		for k, vs := range mf.Value {
			in.values[k] = vs
		}
		for k, fhs := range mf.File {
			in.files[k] = fhs
		}
	case strings.HasPrefix(ct, fiber.MIMEApplicationJSON):
		var body map[string]any
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return in, NewAppError(fiber.StatusBadRequest, "Invalid JSON body.")
		}
		for k, v := range body {
			if list, ok := v.([]any); ok {
				for _, item := range list {
					in.values[k] = append(in.values[k], record.Stringify(item))
				}
				if len(list) == 0 {
					in.values[k] = []string{""}
				}
				continue
			}
			in.values[k] = []string{record.Stringify(v)}
		}
	default:
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			in.values[string(key)] = append(in.values[string(key)], string(value))
		})
	}
	return in, nil
}

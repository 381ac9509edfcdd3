package devstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"labdesk/internal/storage"
)

// storedName makes the uploaded filename unique within the record, keeping
// its extension: "Lipid Panel.png" becomes "Lipid_Panel_3f9a1c2b7d.png".
func storedName(original string) string {
	safe := storage.SafeName(original)
	ext := filepath.Ext(safe)
	base := strings.TrimSuffix(safe, ext)
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%s_%s%s", base, strings.ReplaceAll(uuid.NewString(), "-", "")[:10], ext)
}

// saveUploads stores each upload and returns the stored name per field. On
// failure the files saved so far are removed.
func (s *Server) saveUploads(ctx context.Context, t *table, id string, uploads map[string]*multipart.FileHeader) (map[string]string, error) {
	saved := map[string]string{}
	for key, fh := range uploads {
		name := storedName(fh.Filename)
		if err := s.saveUpload(ctx, t.coll.Name, id, name, fh); err != nil {
			s.removeFiles(ctx, t, id, saved)
			return nil, fmt.Errorf("save %s: %w", key, err)
		}
		saved[key] = name
	}
	return saved, nil
}

func (s *Server) saveUpload(ctx context.Context, collection, id, name string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()
	return s.files.Save(ctx, collection, id, name, src)
}

// removeFiles deletes stored files; failures are logged, not returned.
func (s *Server) removeFiles(ctx context.Context, t *table, id string, names map[string]string) {
	for key, name := range names {
		if err := s.files.Delete(ctx, t.coll.Name, id, name); err != nil {
			s.logger.Warn("remove stored file",
				zap.String("collection", t.coll.Name),
				zap.String("id", id),
				zap.String("field", key),
				zap.Error(err))
		}
	}
}

// ServeFile handles GET /api/files/:collection/:id/:filename. The file must be
// referenced by one of the record's file fields.
func (s *Server) ServeFile(c *fiber.Ctx) error {
	t, err := s.table(c)
	if err != nil {
		return err
	}
	id, filename := c.Params("id"), c.Params("filename")

	ctx := c.UserContext()
	rec, err := s.getRecord(ctx, t, id)
	if isNotFound(err) {
		return NotFoundError()
	}
	if err != nil {
		return err
	}

	referenced := false
	for _, key := range t.fileColumns() {
		if rec.String(key) == filename {
			referenced = true
			break
		}
	}
	if !referenced {
		return NotFoundError()
	}

	reader, err := s.files.Open(ctx, t.coll.Name, id, filename)
	if errors.Is(err, storage.ErrNotFound) {
		return NotFoundError()
	}
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s"`, filename))

	// fasthttp closes the reader once the body is written
	return c.SendStream(reader)
}

package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open when no file is stored under the key.
var ErrNotFound = errors.New("file not found")

// FileStorage keeps the content of file-kind fields, keyed by collection,
// record id and stored filename.
type FileStorage interface {
	Save(ctx context.Context, collection, recordID, filename string, r io.Reader) error
	Open(ctx context.Context, collection, recordID, filename string) (io.ReadCloser, error)
	Delete(ctx context.Context, collection, recordID, filename string) error
}

package admin

import (
	"context"

	"labdesk/internal/form"
	"labdesk/internal/gateway"
	"labdesk/internal/record"
	"labdesk/internal/schema"
)

// Lister loads a page of records.
type Lister interface {
	List(ctx context.Context, sess gateway.Session, collection string, p gateway.ListParams) (*gateway.ListResult, error)
}

// Editor is the part of the store the edit surface uses.
type Editor interface {
	Get(ctx context.Context, sess gateway.Session, collection, id string, expand ...string) (record.Record, error)
	Create(ctx context.Context, sess gateway.Session, collection string, sub *form.Submission) (record.Record, error)
	Update(ctx context.Context, sess gateway.Session, collection, id string, sub *form.Submission) (record.Record, error)
	RelationOptions(ctx context.Context, sess gateway.Session, fields []schema.Field) (map[string][]gateway.Option, error)
}

// Backend is everything the console needs from the record store.
// *gateway.Client implements it.
type Backend interface {
	Lister
	Editor
	Delete(ctx context.Context, sess gateway.Session, collection, id string) error
	AuthWithPassword(ctx context.Context, email, password string) (gateway.Session, gateway.Identity, error)
	Identity(ctx context.Context, sess gateway.Session) (gateway.Identity, error)
	FileURL(collection, id, filename string) string
}

var _ Backend = (*gateway.Client)(nil)

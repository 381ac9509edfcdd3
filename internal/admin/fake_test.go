package admin

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"labdesk/internal/form"
	"labdesk/internal/gateway"
	"labdesk/internal/record"
	"labdesk/internal/schema"
)

// fakeBackend is an in-memory store. Hooks let tests block or fail calls.
type fakeBackend struct {
	mu      sync.Mutex
	records map[string][]record.Record
	nextID  int

	admin     bool
	listCalls atomic.Int32
	deletes   []string
	saved     []*form.Submission

	listHook func(ctx context.Context, collection string) error
	saveHook func(ctx context.Context) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: map[string][]record.Record{}, admin: true}
}

func (f *fakeBackend) add(collection string, attrs map[string]any) record.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec := record.New(collection, fmt.Sprintf("%s%d", collection[:1], f.nextID))
	for k, v := range attrs {
		rec.Attrs[k] = v
	}
	f.records[collection] = append(f.records[collection], rec)
	return rec
}

func (f *fakeBackend) List(ctx context.Context, _ gateway.Session, collection string, _ gateway.ListParams) (*gateway.ListResult, error) {
	f.listCalls.Add(1)
	if f.listHook != nil {
		if err := f.listHook(ctx, collection); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := slices.Clone(f.records[collection])
	return &gateway.ListResult{Page: 1, Items: items, TotalItems: len(items), TotalPages: 1}, nil
}

func (f *fakeBackend) Get(_ context.Context, _ gateway.Session, collection, id string, _ ...string) (record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records[collection] {
		if rec.ID == id {
			return rec, nil
		}
	}
	return record.Record{}, &gateway.APIError{Status: 404, Message: "The requested resource wasn't found."}
}

func (f *fakeBackend) Create(ctx context.Context, _ gateway.Session, collection string, sub *form.Submission) (record.Record, error) {
	if err := f.save(ctx, sub); err != nil {
		return record.Record{}, err
	}
	attrs := map[string]any{}
	for _, p := range sub.Parts {
		if p.File == nil {
			attrs[p.Key] = p.Value
		}
	}
	return f.add(collection, attrs), nil
}

func (f *fakeBackend) Update(ctx context.Context, _ gateway.Session, collection, id string, sub *form.Submission) (record.Record, error) {
	if err := f.save(ctx, sub); err != nil {
		return record.Record{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rec := range f.records[collection] {
		if rec.ID == id {
			for _, p := range sub.Parts {
				if p.File == nil {
					rec.Attrs[p.Key] = p.Value
				}
			}
			f.records[collection][i] = rec
			return rec, nil
		}
	}
	return record.Record{}, &gateway.APIError{Status: 404, Message: "The requested resource wasn't found."}
}

func (f *fakeBackend) save(ctx context.Context, sub *form.Submission) error {
	if f.saveHook != nil {
		if err := f.saveHook(ctx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.saved = append(f.saved, sub)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) lastSaved() *form.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil
	}
	return f.saved[len(f.saved)-1]
}

func (f *fakeBackend) Delete(_ context.Context, _ gateway.Session, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	f.records[collection] = slices.DeleteFunc(f.records[collection], func(r record.Record) bool { return r.ID == id })
	return nil
}

func (f *fakeBackend) RelationOptions(ctx context.Context, sess gateway.Session, fields []schema.Field) (map[string][]gateway.Option, error) {
	out := map[string][]gateway.Option{}
	for _, fld := range fields {
		target, labelPath, _ := fld.Target()
		res, err := f.List(ctx, sess, target, gateway.ListParams{})
		if err != nil {
			return nil, err
		}
		for _, rec := range res.Items {
			out[fld.Key] = append(out[fld.Key], gateway.Option{ID: rec.ID, Label: gateway.OptionLabel(rec, labelPath)})
		}
	}
	return out, nil
}

func (f *fakeBackend) AuthWithPassword(_ context.Context, email, password string) (gateway.Session, gateway.Identity, error) {
	if password != "secret" {
		return gateway.Session{}, gateway.Identity{}, &gateway.APIError{Status: 400, Message: "Failed to authenticate."}
	}
	return gateway.Session{Token: "tok-" + email}, gateway.Identity{ID: "u1", Email: email}, nil
}

func (f *fakeBackend) Identity(_ context.Context, sess gateway.Session) (gateway.Identity, error) {
	return gateway.Identity{ID: "u1", Email: "admin@lab.test", IsAdmin: f.admin}, nil
}

func (f *fakeBackend) FileURL(collection, id, filename string) string {
	return "http://store/api/files/" + collection + "/" + id + "/" + filename
}

package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"labdesk/internal/form"
	"labdesk/internal/gateway"
	"labdesk/internal/record"
	"labdesk/internal/schema"
)

var (
	ErrSaveInProgress = errors.New("a save is already in progress")
	ErrNotEditing     = errors.New("no form is open for editing")
)

// EditState is the lifecycle stage of the edit surface.
type EditState int

const (
	Closed EditState = iota
	Opening
	Editing
	Saving
)

func (s EditState) String() string {
	switch s {
	case Opening:
		return "opening"
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	default:
		return "closed"
	}
}

// EditView is a snapshot of the edit surface for rendering.
type EditView struct {
	State      EditState
	Collection *schema.Collection
	Draft      *form.Draft
	Existing   record.Record
	Options    map[string][]gateway.Option
	OptionsErr string
	Err        string
}

// EditSurface hosts the single create-or-edit form of one session.
type EditSurface struct {
	store Editor
	sess  gateway.Session
	loc   *time.Location

	mu         sync.Mutex
	gen        uint64
	cancel     context.CancelFunc
	done       chan struct{}
	state      EditState
	coll       *schema.Collection
	draft      *form.Draft
	existing   record.Record
	options    map[string][]gateway.Option
	optionsErr string
	err        string
}

func NewEditSurface(store Editor, sess gateway.Session, loc *time.Location) *EditSurface {
	done := make(chan struct{})
	close(done)
	return &EditSurface{store: store, sess: sess, loc: loc, done: done}
}

// Open starts editing record id of c, or a new record when id is empty. The
// record and the relation options load concurrently. A later Open or Close
// supersedes this one. The returned channel closes when the open settles.
func (e *EditSurface) Open(c *schema.Collection, id string) <-chan struct{} {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	gen := e.gen
	e.cancel = cancel
	e.done = done
	e.state = Opening
	e.coll = c
	e.draft = form.NewDraft(id)
	e.existing = record.Record{}
	e.options = nil
	e.optionsErr = ""
	e.err = ""
	e.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		var (
			rec        record.Record
			recErr     error
			options    map[string][]gateway.Option
			optionsErr error
		)
		var g errgroup.Group
		if id != "" {
			g.Go(func() error {
				rec, recErr = e.store.Get(ctx, e.sess, c.Name, id)
				return nil
			})
		}
		if fields := c.RelationFields(); len(fields) > 0 {
			g.Go(func() error {
				options, optionsErr = e.store.RelationOptions(ctx, e.sess, fields)
				return nil
			})
		}
		_ = g.Wait()

		e.mu.Lock()
		defer e.mu.Unlock()
		if gen != e.gen {
			return
		}
		e.cancel = nil
		if recErr != nil {
			e.state = Closed
			e.draft = nil
			e.err = fmt.Sprintf("Could not open record: %v", recErr)
			return
		}
		if id != "" {
			e.existing = rec
			e.draft = form.Seed(c, rec, e.loc)
		}
		e.options = options
		if optionsErr != nil {
			e.optionsErr = optionsErr.Error()
		}
		e.state = Editing
	}()
	return done
}

// Wait blocks until the current open settles, d elapses or ctx ends.
func (e *EditSurface) Wait(ctx context.Context, d time.Duration) bool {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// View returns a snapshot for rendering. The draft is a copy.
func (e *EditSurface) View() EditView {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := EditView{
		State:      e.state,
		Collection: e.coll,
		Existing:   e.existing,
		Options:    e.options,
		OptionsErr: e.optionsErr,
		Err:        e.err,
	}
	if e.draft != nil {
		v.Draft = e.draft.Clone()
	}
	return v
}

// Update replaces the draft with the posted values. A file chosen earlier in
// this edit is kept unless a new one replaces it.
func (e *EditSurface) Update(d *form.Draft) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case Editing:
	case Saving:
		return ErrSaveInProgress
	default:
		return ErrNotEditing
	}
	e.merge(d)
	return nil
}

func (e *EditSurface) merge(d *form.Draft) {
	d.ID = e.draft.ID
	for _, f := range e.coll.Fields {
		if _, ok := f.Kind.(schema.File); !ok {
			continue
		}
		if d.File(f.Key) == nil {
			d.SetFile(f.Key, e.draft.File(f.Key))
		}
		if d.String(f.Key) == "" {
			d.SetString(f.Key, e.draft.String(f.Key))
		}
	}
	e.draft = d
}

// Save merges the posted draft, encodes every field and creates or updates the
// record. On failure the surface returns to Editing with the draft intact; on
// success it closes.
func (e *EditSurface) Save(ctx context.Context, d *form.Draft) (record.Record, error) {
	e.mu.Lock()
	switch e.state {
	case Editing:
	case Saving:
		e.mu.Unlock()
		return record.Record{}, ErrSaveInProgress
	default:
		e.mu.Unlock()
		return record.Record{}, ErrNotEditing
	}
	if d != nil {
		e.merge(d)
	}
	e.state = Saving
	gen := e.gen
	c := e.coll
	draft := e.draft.Clone()
	e.mu.Unlock()

	rec, err := e.persist(ctx, c, draft)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return rec, err
	}
	if err != nil {
		e.state = Editing
		return record.Record{}, err
	}
	e.reset()
	return rec, nil
}

func (e *EditSurface) persist(ctx context.Context, c *schema.Collection, d *form.Draft) (record.Record, error) {
	sub, err := form.Encode(c, d, e.loc)
	if err != nil {
		return record.Record{}, err
	}
	if d.IsNew() {
		return e.store.Create(ctx, e.sess, c.Name, sub)
	}
	return e.store.Update(ctx, e.sess, c.Name, d.ID, sub)
}

// Close discards the form and any unsaved changes.
func (e *EditSurface) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.reset()
}

func (e *EditSurface) reset() {
	e.state = Closed
	e.coll = nil
	e.draft = nil
	e.existing = record.Record{}
	e.options = nil
	e.optionsErr = ""
	e.err = ""
}

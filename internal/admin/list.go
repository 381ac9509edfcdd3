package admin

import (
	"context"
	"slices"
	"sync"
	"time"

	"labdesk/internal/gateway"
	"labdesk/internal/record"
	"labdesk/internal/schema"
)

// ListState is a snapshot of the list surface.
type ListState struct {
	Collection string
	Query      string
	Rows       []record.Record
	Err        string
	Loading    bool
	Loaded     bool
}

// ListSurface holds the record table of one session. Each Load supersedes the
// previous one: the older request is cancelled and its result, if it still
// arrives, is dropped.
type ListSurface struct {
	store    Lister
	sess     gateway.Session
	pageSize int

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	state  ListState
}

func NewListSurface(store Lister, sess gateway.Session, pageSize int) *ListSurface {
	done := make(chan struct{})
	close(done)
	return &ListSurface{store: store, sess: sess, pageSize: pageSize, done: done}
}

// Load fetches the collection filtered by query. The returned channel closes
// when this load settles, whether applied or superseded.
func (l *ListSurface) Load(c *schema.Collection, query string) <-chan struct{} {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	l.cancel = cancel
	l.done = done
	rows := l.state.Rows
	if l.state.Collection != c.Name {
		rows = nil
	}
	l.state = ListState{Collection: c.Name, Query: query, Rows: rows, Loading: true}
	l.mu.Unlock()

	params := gateway.ListParams{
		Page:    1,
		PerPage: l.pageSize,
		Sort:    c.DefaultSort,
		Filter:  gateway.SearchFilter(c.SearchFields, query),
		Expand:  c.Expand,
	}
	go func() {
		defer close(done)
		defer cancel()
		res, err := l.store.List(ctx, l.sess, c.Name, params)

		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.gen {
			return
		}
		l.cancel = nil
		l.state.Loading = false
		l.state.Loaded = true
		if err != nil {
			l.state.Err = err.Error()
			l.state.Rows = nil
			return
		}
		l.state.Err = ""
		l.state.Rows = res.Items
	}()
	return done
}

// Wait blocks until the current load settles, d elapses or ctx ends.
// It reports whether the load settled.
func (l *ListSurface) Wait(ctx context.Context, d time.Duration) bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

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

// Snapshot returns a copy of the current state.
func (l *ListSurface) Snapshot() ListState {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	s.Rows = slices.Clone(l.state.Rows)
	return s
}

// NeedsLoad reports whether showing collection with query requires a fetch.
func (l *ListSurface) NeedsLoad(collection, query string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	if s.Collection != collection || s.Query != query {
		return true
	}
	return !s.Loading && !s.Loaded
}

// Stop cancels an in-flight load and drops its result.
func (l *ListSurface) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.gen++
	l.state.Loading = false
}

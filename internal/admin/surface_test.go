package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labdesk/internal/form"
	"labdesk/internal/gateway"
	"labdesk/internal/schema"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func mustCollection(t *testing.T, name string) *schema.Collection {
	t.Helper()
	c, ok := schema.Default().Lookup(name)
	require.True(t, ok)
	return c
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for load")
	}
}

func TestListSurface_LoadsRows(t *testing.T) {
	fb := newFakeBackend()
	fb.add(schema.Categories, map[string]any{"name": "Cardiac"})
	l := NewListSurface(fb, gateway.Session{}, 200)

	waitDone(t, l.Load(mustCollection(t, schema.Categories), ""))

	st := l.Snapshot()
	assert.False(t, st.Loading)
	assert.True(t, st.Loaded)
	assert.Len(t, st.Rows, 1)
	assert.False(t, l.NeedsLoad(schema.Categories, ""))
	assert.True(t, l.NeedsLoad(schema.Categories, "card"))
	assert.True(t, l.NeedsLoad(schema.Tests, ""))
}

func TestListSurface_StaleLoadIsDropped(t *testing.T) {
	fb := newFakeBackend()
	fb.add(schema.Tests, map[string]any{"name": "CBC"})
	fb.add(schema.Categories, map[string]any{"name": "Cardiac"})

	slowCancelled := make(chan struct{})
	fb.listHook = func(ctx context.Context, collection string) error {
		if collection != schema.Categories {
			return nil
		}
		<-ctx.Done()
		close(slowCancelled)
		return ctx.Err()
	}

	l := NewListSurface(fb, gateway.Session{}, 200)
	slow := l.Load(mustCollection(t, schema.Categories), "")
	fast := l.Load(mustCollection(t, schema.Tests), "")

	waitDone(t, fast)
	waitDone(t, slow)
	<-slowCancelled

	st := l.Snapshot()
	assert.Equal(t, schema.Tests, st.Collection)
	assert.Empty(t, st.Err, "cancelled load must not surface its error")
	require.Len(t, st.Rows, 1)
	assert.Equal(t, "CBC", st.Rows[0].String("name"))
}

func TestListSurface_ErrorIsKept(t *testing.T) {
	fb := newFakeBackend()
	fb.listHook = func(context.Context, string) error {
		return &gateway.APIError{Status: 500, Message: "store unavailable"}
	}
	l := NewListSurface(fb, gateway.Session{}, 200)
	waitDone(t, l.Load(mustCollection(t, schema.Team), ""))

	st := l.Snapshot()
	assert.Equal(t, "store unavailable", st.Err)
	assert.Empty(t, st.Rows)
}

func TestEditSurface_OpenSeedsExistingRecord(t *testing.T) {
	fb := newFakeBackend()
	u := fb.add(schema.Users, map[string]any{"email": "a@lab.test"})
	tst := fb.add(schema.Tests, map[string]any{"name": "CBC"})
	cart := fb.add(schema.Carts, map[string]any{
		"user": u.ID, "test": tst.ID, "quantity": 2.0,
		"status": "pending", "scheduled_at": "2024-03-09 21:00:00.000Z",
	})

	e := NewEditSurface(fb, gateway.Session{}, ist)
	waitDone(t, e.Open(mustCollection(t, schema.Carts), cart.ID))

	v := e.View()
	require.Equal(t, Editing, v.State)
	assert.Equal(t, cart.ID, v.Draft.ID)
	assert.Equal(t, u.ID, v.Draft.String("user"))
	assert.Equal(t, "2", v.Draft.String("quantity"))
	assert.Equal(t, "pending", v.Draft.String("status"))
	assert.Equal(t, "2024-03-10T02:30", v.Draft.String("scheduled_at"))
	assert.Equal(t, []gateway.Option{{ID: u.ID, Label: "a@lab.test"}}, v.Options["user"])
	assert.Equal(t, []gateway.Option{{ID: tst.ID, Label: "CBC"}}, v.Options["test"])
}

func TestEditSurface_OpenMissingRecordCloses(t *testing.T) {
	e := NewEditSurface(newFakeBackend(), gateway.Session{}, ist)
	waitDone(t, e.Open(mustCollection(t, schema.Team), "nope"))

	v := e.View()
	assert.Equal(t, Closed, v.State)
	assert.Contains(t, v.Err, "wasn't found")
}

func TestEditSurface_NewerOpenSupersedes(t *testing.T) {
	fb := newFakeBackend()
	fb.add(schema.Categories, map[string]any{"name": "Cardiac"})
	block := make(chan struct{})
	fb.listHook = func(ctx context.Context, collection string) error {
		if collection == schema.Categories {
			select {
			case <-block:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	e := NewEditSurface(fb, gateway.Session{}, ist)
	first := e.Open(mustCollection(t, schema.Tests), "")
	second := e.Open(mustCollection(t, schema.Team), "")

	waitDone(t, second)
	waitDone(t, first)
	close(block)

	v := e.View()
	assert.Equal(t, Editing, v.State)
	assert.Equal(t, schema.Team, v.Collection.Name)
	assert.Empty(t, v.OptionsErr)
}

func TestEditSurface_SaveLifecycle(t *testing.T) {
	fb := newFakeBackend()
	e := NewEditSurface(fb, gateway.Session{}, ist)
	team := mustCollection(t, schema.Team)

	_, err := e.Save(context.Background(), form.NewDraft(""))
	assert.ErrorIs(t, err, ErrNotEditing)

	waitDone(t, e.Open(team, ""))

	fb.saveHook = func(context.Context) error {
		return &gateway.APIError{Status: 400, Message: "Failed to create record."}
	}
	d := form.NewDraft("")
	d.SetString("name", "Dr Rao")
	_, err = e.Save(context.Background(), d)
	require.EqualError(t, err, "Failed to create record.")

	v := e.View()
	assert.Equal(t, Editing, v.State, "failure returns to editing")
	assert.Equal(t, "Dr Rao", v.Draft.String("name"), "draft is intact")

	fb.saveHook = nil
	rec, err := e.Save(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Dr Rao", rec.String("name"))
	assert.Equal(t, Closed, e.View().State)

	sub := fb.lastSaved()
	require.NotNil(t, sub)
	assert.Equal(t, []string{""}, sub.Values("specialties"), "every field is sent")
	assert.False(t, sub.Has("photo"))
}

func TestEditSurface_SecondSaveRejected(t *testing.T) {
	fb := newFakeBackend()
	e := NewEditSurface(fb, gateway.Session{}, ist)
	waitDone(t, e.Open(mustCollection(t, schema.Categories), ""))

	entered := make(chan struct{})
	release := make(chan struct{})
	fb.saveHook = func(context.Context) error {
		close(entered)
		<-release
		return nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := e.Save(context.Background(), nil)
		errc <- err
	}()
	<-entered

	assert.Equal(t, Saving, e.View().State)
	_, err := e.Save(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSaveInProgress)
	assert.ErrorIs(t, e.Update(form.NewDraft("")), ErrSaveInProgress)

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, Closed, e.View().State)
}

func TestEditSurface_KeepsChosenFileAcrossFailedSave(t *testing.T) {
	fb := newFakeBackend()
	e := NewEditSurface(fb, gateway.Session{}, ist)
	waitDone(t, e.Open(mustCollection(t, schema.Team), ""))

	fb.saveHook = func(context.Context) error { return errors.New("network down") }
	d := form.NewDraft("")
	d.SetString("name", "Dr Rao")
	d.SetFile("photo", &form.Upload{Filename: "rao.png", Data: []byte("x")})
	_, err := e.Save(context.Background(), d)
	require.Error(t, err)

	fb.saveHook = nil
	retry := form.NewDraft("")
	retry.SetString("name", "Dr Rao")
	_, err = e.Save(context.Background(), retry)
	require.NoError(t, err)

	files := fb.lastSaved().Files("photo")
	require.Len(t, files, 1)
	assert.Equal(t, "rao.png", files[0].Filename)
}

func TestEditSurface_CloseDiscards(t *testing.T) {
	e := NewEditSurface(newFakeBackend(), gateway.Session{}, ist)
	waitDone(t, e.Open(mustCollection(t, schema.Team), ""))
	require.NoError(t, e.Update(form.NewDraft("")))

	e.Close()
	v := e.View()
	assert.Equal(t, Closed, v.State)
	assert.Nil(t, v.Draft)
	assert.ErrorIs(t, e.Update(form.NewDraft("")), ErrNotEditing)
}

func TestSessionManager_ExpiryAndIdle(t *testing.T) {
	fb := newFakeBackend()
	m := NewSessionManager(time.Hour, time.Minute, SurfaceFactory(fb, 200, ist))

	s := m.Create(gateway.Session{Token: "t"}, gateway.Identity{ID: "u1", IsAdmin: true})
	require.NotNil(t, m.Get(s.ID))

	s.LastActiveAt = time.Now().Add(-2 * time.Minute)
	assert.Nil(t, m.Get(s.ID), "idle session is dropped")
	assert.Equal(t, 0, m.Len())

	s = m.Create(gateway.Session{Token: "t"}, gateway.Identity{ID: "u1", IsAdmin: true})
	s.CreatedAt = time.Now().Add(-2 * time.Hour)
	m.Cleanup()
	assert.Equal(t, 0, m.Len())
	assert.Nil(t, m.Get("unknown"))
}

// Package form converts between stored records, in-memory form drafts and the
// multipart submissions sent to the record store.
package form

import "slices"

// Upload is a file chosen in the form during this edit.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Draft is the transient edit state of one record. Values are held per kind:
// strings for text-like kinds, flags for checkboxes, lists for multi-valued
// kinds and uploads for newly chosen files. ID is empty for a new record.
type Draft struct {
	ID      string
	strings map[string]string
	flags   map[string]bool
	lists   map[string][]string
	files   map[string]*Upload
}

func NewDraft(id string) *Draft {
	return &Draft{
		ID:      id,
		strings: make(map[string]string),
		flags:   make(map[string]bool),
		lists:   make(map[string][]string),
		files:   make(map[string]*Upload),
	}
}

// IsNew reports whether saving the draft creates a record.
func (d *Draft) IsNew() bool { return d.ID == "" }

func (d *Draft) String(key string) string { return d.strings[key] }

func (d *Draft) SetString(key, v string) { d.strings[key] = v }

func (d *Draft) Flag(key string) bool { return d.flags[key] }

func (d *Draft) SetFlag(key string, v bool) { d.flags[key] = v }

func (d *Draft) List(key string) []string { return d.lists[key] }

func (d *Draft) SetList(key string, v []string) {
	if len(v) == 0 {
		delete(d.lists, key)
		return
	}
	d.lists[key] = slices.Clone(v)
}

// Has reports whether value is selected in a multi-valued field.
func (d *Draft) Has(key, value string) bool {
	return slices.Contains(d.lists[key], value)
}

// File returns the newly chosen upload for key, or nil when none was chosen.
func (d *Draft) File(key string) *Upload { return d.files[key] }

func (d *Draft) SetFile(key string, u *Upload) {
	if u == nil {
		delete(d.files, key)
		return
	}
	d.files[key] = u
}

// Clone returns a deep copy; the edit surface hands copies to renderers.
func (d *Draft) Clone() *Draft {
	out := NewDraft(d.ID)
	for k, v := range d.strings {
		out.strings[k] = v
	}
	for k, v := range d.flags {
		out.flags[k] = v
	}
	for k, v := range d.lists {
		out.lists[k] = slices.Clone(v)
	}
	for k, v := range d.files {
		cp := *v
		out.files[k] = &cp
	}
	return out
}

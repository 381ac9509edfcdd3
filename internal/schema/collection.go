package schema

import (
	"time"

	"labdesk/internal/record"
)

// Render formats one list cell. loc is the console's wall-clock zone.
type Render func(rec record.Record, loc *time.Location) string

// Column is one list-view column. A nil Render uses the field kind's display rule.
type Column struct {
	Key    string
	Header string
	Render Render
}

type Collection struct {
	Name         string
	Label        string
	Columns      []Column
	Fields       []Field
	SearchFields []string // text attributes matched by the free-text query
	DefaultSort  string
	Expand       []string // relation fields expanded on every list load
}

// Field returns the field with the given key.
func (c *Collection) Field(key string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// RelationFields returns the relation and multirelation fields in form order.
func (c *Collection) RelationFields() []Field {
	var out []Field
	for _, f := range c.Fields {
		if _, _, ok := f.Target(); ok {
			out = append(out, f)
		}
	}
	return out
}

// Searchable reports whether the collection filters on a free-text query.
func (c *Collection) Searchable() bool {
	return len(c.SearchFields) > 0
}

package schema

import (
	"fmt"
)

// systemKeys are attributes every record carries without a form field.
var systemKeys = map[string]bool{"id": true, "created": true, "updated": true}

// Registry is the static mapping from collection name to schema. It is built once
// and never mutated, so lookups need no locking.
type Registry struct {
	order       []string
	collections map[string]*Collection
}

// NewRegistry validates the collections and indexes them by name.
func NewRegistry(cols ...*Collection) (*Registry, error) {
	r := &Registry{collections: make(map[string]*Collection, len(cols))}
	for _, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("collection with empty name")
		}
		if _, dup := r.collections[c.Name]; dup {
			return nil, fmt.Errorf("duplicate collection %s", c.Name)
		}
		r.collections[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	for _, c := range cols {
		if err := r.validate(c); err != nil {
			return nil, fmt.Errorf("collection %s: %w", c.Name, err)
		}
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for static catalogs; a bad catalog is a programming error.
func MustNewRegistry(cols ...*Collection) *Registry {
	r, err := NewRegistry(cols...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) validate(c *Collection) error {
	keys := make(map[string]Field, len(c.Fields))
	for _, f := range c.Fields {
		if f.Key == "" || f.Kind == nil {
			return fmt.Errorf("field %q needs a key and a kind", f.Key)
		}
		if systemKeys[f.Key] {
			return fmt.Errorf("field %s shadows a system attribute", f.Key)
		}
		if _, dup := keys[f.Key]; dup {
			return fmt.Errorf("duplicate field %s", f.Key)
		}
		keys[f.Key] = f
	}

	for _, f := range c.Fields {
		target, _, ok := f.Target()
		if ok && r.collections[target] == nil {
			return fmt.Errorf("field %s references unknown collection %s", f.Key, target)
		}
		if mr, isMulti := f.Kind.(MultiRelation); isMulti && mr.ShowWhen != "" {
			gate, exists := keys[mr.ShowWhen]
			if !exists {
				return fmt.Errorf("field %s is gated by unknown field %s", f.Key, mr.ShowWhen)
			}
			if _, isBox := gate.Kind.(Checkbox); !isBox {
				return fmt.Errorf("field %s is gated by non-checkbox field %s", f.Key, mr.ShowWhen)
			}
		}
	}

	for _, col := range c.Columns {
		if _, ok := keys[col.Key]; !ok && !systemKeys[col.Key] && col.Render == nil {
			return fmt.Errorf("column %s has no field and no render rule", col.Key)
		}
	}
	for _, key := range c.SearchFields {
		if _, ok := keys[key]; !ok {
			return fmt.Errorf("search field %s is not a field", key)
		}
	}
	for _, key := range c.Expand {
		f, ok := keys[key]
		if !ok {
			return fmt.Errorf("expand %s is not a field", key)
		}
		if _, _, isRel := f.Target(); !isRel {
			return fmt.Errorf("expand %s is not a relation", key)
		}
	}
	return nil
}

// Lookup returns the schema for name. ok is false for unregistered collections.
func (r *Registry) Lookup(name string) (*Collection, bool) {
	c, ok := r.collections[name]
	return c, ok
}

// Names returns collection names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the collections in registration order.
func (r *Registry) All() []*Collection {
	out := make([]*Collection, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.collections[name])
	}
	return out
}

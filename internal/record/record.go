// Package record holds the wire representation of a stored record.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one stored entity: server-assigned id, attribute map and the optional
// expand side-channel carrying resolved relations.
type Record struct {
	ID         string
	Collection string
	Attrs      map[string]any
	Expand     map[string][]Record
}

// New returns a record with an initialized attribute map.
func New(collection, id string) Record {
	return Record{ID: id, Collection: collection, Attrs: map[string]any{}}
}

// Get returns the raw attribute value, or nil.
func (r Record) Get(key string) any {
	if key == "id" {
		return r.ID
	}
	return r.Attrs[key]
}

// String returns the attribute formatted as a string; nil becomes "".
func (r Record) String(key string) string {
	return Stringify(r.Get(key))
}

// Strings returns a multi-valued attribute. A scalar string counts as one value.
func (r Record) Strings(key string) []string {
	switch v := r.Get(key).(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := Stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{Stringify(v)}
	}
}

// Bool reports a boolean attribute; strings "true"/"1" count as true.
func (r Record) Bool(key string) bool {
	switch v := r.Get(key).(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case float64:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}

// One returns the first expanded record for a relation key.
func (r Record) One(key string) (Record, bool) {
	if list := r.Expand[key]; len(list) > 0 {
		return list[0], true
	}
	return Record{}, false
}

// Many returns every expanded record for a relation key.
func (r Record) Many(key string) []Record {
	return r.Expand[key]
}

// SetExpand attaches resolved relations under key.
func (r *Record) SetExpand(key string, recs ...Record) {
	if r.Expand == nil {
		r.Expand = make(map[string][]Record)
	}
	r.Expand[key] = recs
}

// Lookup follows a dot-separated path through attributes, nested maps and expanded
// relations. "expand.category.name" and "category.name" both reach an expanded
// category's name; the attribute wins when both exist and the path ends there.
func (r Record) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	return lookup(r, strings.Split(path, "."))
}

func lookup(cur any, segs []string) (any, bool) {
	for i, seg := range segs {
		switch v := cur.(type) {
		case Record:
			if seg == "expand" && i+1 < len(segs) {
				rest := segs[i+1:]
				if list, ok := v.Expand[rest[0]]; ok && len(list) > 0 {
					return lookup(list[0], rest[1:])
				}
				return nil, false
			}
			if val, ok := v.Attrs[seg]; ok && (i == len(segs)-1 || !hasExpand(v, seg)) {
				cur = val
				continue
			}
			if seg == "id" {
				cur = v.ID
				continue
			}
			if list, ok := v.Expand[seg]; ok && len(list) > 0 {
				cur = list[0]
				continue
			}
			return nil, false
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				return nil, false
			}
			cur = val
		default:
			return nil, false
		}
	}
	if rec, ok := cur.(Record); ok {
		return rec.ID, true
	}
	return cur, cur != nil
}

func hasExpand(r Record, key string) bool {
	_, ok := r.Expand[key]
	return ok
}

// Stringify renders an attribute value the way it appears on the wire.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

// UnmarshalJSON accepts the store's flat record object. An expanded single relation
// arrives as an object, a multirelation as an array.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Attrs = make(map[string]any, len(raw))
	r.Expand = nil
	for key, msg := range raw {
		switch key {
		case "id":
			if err := json.Unmarshal(msg, &r.ID); err != nil {
				return fmt.Errorf("decode id: %w", err)
			}
		case "collectionName":
			if err := json.Unmarshal(msg, &r.Collection); err != nil {
				return fmt.Errorf("decode collectionName: %w", err)
			}
		case "expand":
			if err := r.unmarshalExpand(msg); err != nil {
				return err
			}
		default:
			var v any
			if err := json.Unmarshal(msg, &v); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			r.Attrs[key] = v
		}
	}
	return nil
}

func (r *Record) unmarshalExpand(msg json.RawMessage) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		return fmt.Errorf("decode expand: %w", err)
	}
	for key, val := range raw {
		trimmed := bytes.TrimSpace(val)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		if trimmed[0] == '[' {
			var many []Record
			if err := json.Unmarshal(trimmed, &many); err != nil {
				return fmt.Errorf("decode expand.%s: %w", key, err)
			}
			r.SetExpand(key, many...)
			continue
		}
		var one Record
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return fmt.Errorf("decode expand.%s: %w", key, err)
		}
		r.SetExpand(key, one)
	}
	return nil
}

// MarshalJSON writes the flat object form. Expanded relations are always written
// as arrays; readers accept both shapes.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Attrs)+3)
	for k, v := range r.Attrs {
		out[k] = v
	}
	out["id"] = r.ID
	if r.Collection != "" {
		out["collectionName"] = r.Collection
	}
	if len(r.Expand) > 0 {
		out["expand"] = r.Expand
	}
	return json.Marshal(out)
}

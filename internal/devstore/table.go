package devstore

import (
	"encoding/json"
	"strings"

	"labdesk/internal/record"
	"labdesk/internal/schema"
	"labdesk/internal/store"
)

// table is the storage view of one collection.
type table struct {
	coll   *schema.Collection
	cols   []store.Column
	byName map[string]store.Column
	bools  []string
}

var systemColumns = []store.Column{
	{Name: "id", Type: store.TypeText},
	{Name: "created", Type: store.TypeText},
	{Name: "updated", Type: store.TypeText},
}

func newTable(c *schema.Collection) *table {
	t := &table{coll: c, cols: store.Columns(c), byName: map[string]store.Column{}}
	for _, col := range systemColumns {
		t.byName[col.Name] = col
	}
	for _, col := range t.cols {
		t.byName[col.Name] = col
		if col.Type == store.TypeBool {
			t.bools = append(t.bools, col.Name)
		}
	}
	return t
}

func (t *table) column(name string) (store.Column, bool) {
	col, ok := t.byName[name]
	return col, ok
}

// selectList names every wire column; the password hash is never selected.
func (t *table) selectList() string {
	names := make([]string, 0, len(systemColumns)+len(t.cols))
	for _, col := range systemColumns {
		names = append(names, store.QuoteIdent(col.Name))
	}
	for _, col := range t.cols {
		names = append(names, store.QuoteIdent(col.Name))
	}
	return strings.Join(names, ", ")
}

// fileColumns returns the names of the file-kind columns.
func (t *table) fileColumns() []string {
	var out []string
	for _, col := range t.cols {
		if col.File {
			out = append(out, col.Name)
		}
	}
	return out
}

// toRecords converts rows into records, filling zero values for NULLs so
// every attribute is present on the wire.
func (t *table) toRecords(rows []store.Row) []record.Record {
	out := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, t.toRecord(row))
	}
	return out
}

func (t *table) toRecord(row store.Row) record.Record {
	rec := record.New(t.coll.Name, record.Stringify(row["id"]))
	rec.Attrs["created"] = record.Stringify(row["created"])
	rec.Attrs["updated"] = record.Stringify(row["updated"])
	for _, col := range t.cols {
		rec.Attrs[col.Name] = decodeValue(col, row[col.Name])
	}
	return rec
}

func decodeValue(col store.Column, v any) any {
	switch {
	case col.List:
		list := []string{}
		if s := record.Stringify(v); s != "" {
			_ = json.Unmarshal([]byte(s), &list)
		}
		return list
	case col.Type == store.TypeReal:
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		default:
			return float64(0)
		}
	case col.Type == store.TypeBool:
		b, _ := v.(bool)
		return b
	default:
		return record.Stringify(v)
	}
}

// wireRecord renders rec in the store's JSON shape. An expanded single
// relation is an object, a multirelation an array.
func (s *Server) wireRecord(rec record.Record) map[string]any {
	out := make(map[string]any, len(rec.Attrs)+3)
	for k, v := range rec.Attrs {
		out[k] = v
	}
	out["id"] = rec.ID
	out["collectionName"] = rec.Collection

	t := s.tables[rec.Collection]
	if len(rec.Expand) == 0 || t == nil {
		return out
	}
	expand := make(map[string]any, len(rec.Expand))
	for key, recs := range rec.Expand {
		col, _ := t.column(key)
		if col.List {
			items := make([]map[string]any, 0, len(recs))
			for _, r := range recs {
				items = append(items, s.wireRecord(r))
			}
			expand[key] = items
		} else if len(recs) > 0 {
			expand[key] = s.wireRecord(recs[0])
		}
	}
	out["expand"] = expand
	return out
}

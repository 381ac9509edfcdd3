package devstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"labdesk/internal/auth"
	"labdesk/internal/record"
	"labdesk/internal/store"
)

// listRecords returns one page of records and the total match count.
func (s *Server) listRecords(ctx context.Context, t *table, q *listQuery) ([]record.Record, int, error) {
	countSQL, countArgs, err := buildCountSQL(t, q, s.store.Dialect)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, countSQL, countArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", t.coll.Name, err)
	}

	selectSQL, args, err := buildSelectSQL(t, q, s.store.Dialect)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.store.Select(ctx, t.bools, selectSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", t.coll.Name, err)
	}
	return t.toRecords(rows), total, nil
}

// getRecord loads one record; store.ErrNotFound when absent.
func (s *Server) getRecord(ctx context.Context, t *table, id string) (record.Record, error) {
	pb := s.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		t.selectList(), store.QuoteIdent(t.coll.Name), store.QuoteIdent("id"), pb.Add(id))
	row, err := s.store.SelectOne(ctx, t.bools, sql, pb.Params()...)
	if err != nil {
		return record.Record{}, err
	}
	return t.toRecord(row), nil
}

// findByIDs loads the records of t with the given ids, keyed by id.
func (s *Server) findByIDs(ctx context.Context, t *table, ids []string) (map[string]record.Record, error) {
	if len(ids) == 0 {
		return map[string]record.Record{}, nil
	}
	pb := s.store.Dialect.NewParamBuilder()
	phs := make([]string, len(ids))
	for i, id := range ids {
		phs[i] = pb.Add(id)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		t.selectList(), store.QuoteIdent(t.coll.Name), store.QuoteIdent("id"), strings.Join(phs, ", "))
	rows, err := s.store.Select(ctx, t.bools, sql, pb.Params()...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]record.Record, len(rows))
	for _, rec := range t.toRecords(rows) {
		out[rec.ID] = rec
	}
	return out, nil
}

// insertRecord writes a new row from column values.
func (s *Server) insertRecord(ctx context.Context, t *table, values map[string]any) error {
	pb := s.store.Dialect.NewParamBuilder()
	var cols, phs []string
	for _, name := range sortedKeys(values) {
		cols = append(cols, store.QuoteIdent(name))
		phs = append(phs, pb.Add(values[name]))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		store.QuoteIdent(t.coll.Name), strings.Join(cols, ", "), strings.Join(phs, ", "))
	_, err := s.store.Exec(ctx, sql, pb.Params()...)
	return err
}

// updateRecord sets the given columns of one row.
func (s *Server) updateRecord(ctx context.Context, t *table, id string, values map[string]any) error {
	pb := s.store.Dialect.NewParamBuilder()
	var sets []string
	for _, name := range sortedKeys(values) {
		sets = append(sets, fmt.Sprintf("%s = %s", store.QuoteIdent(name), pb.Add(values[name])))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		store.QuoteIdent(t.coll.Name), strings.Join(sets, ", "), store.QuoteIdent("id"), pb.Add(id))
	n, err := s.store.Exec(ctx, sql, pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Server) deleteRecord(ctx context.Context, t *table, id string) error {
	pb := s.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		store.QuoteIdent(t.coll.Name), store.QuoteIdent("id"), pb.Add(id))
	n, err := s.store.Exec(ctx, sql, pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// missingRelations returns, per field, the referenced ids that do not exist.
func (s *Server) missingRelations(ctx context.Context, refs []relationRef) (map[string]string, error) {
	errs := map[string]string{}
	for _, ref := range refs {
		target := s.tables[ref.Target]
		if target == nil {
			return nil, fmt.Errorf("relation %s targets unknown collection %s", ref.Field, ref.Target)
		}
		found, err := s.findByIDs(ctx, target, ref.IDs)
		if err != nil {
			return nil, fmt.Errorf("check %s relation: %w", ref.Field, err)
		}
		if len(found) != len(ref.IDs) {
			errs[ref.Field] = "Failed to find all relation records with the provided ids."
		}
	}
	return errs, nil
}

// loadExpand attaches the records referenced by each expand field. Related
// records the caller may not view are left out; ids that no longer resolve
// are skipped.
func (s *Server) loadExpand(ctx context.Context, t *table, recs []record.Record, fields []string, user *auth.User) error {
	if len(recs) == 0 || len(fields) == 0 {
		return nil
	}
	for _, name := range fields {
		col, _ := t.column(name)
		target := s.tables[col.Target]
		if target == nil {
			continue
		}
		if ok, err := s.rules.Allow(target.coll.Name, ActionList, user, ""); err != nil || !ok {
			continue
		}

		var ids []string
		for _, rec := range recs {
			for _, id := range rec.Strings(name) {
				if !slices.Contains(ids, id) {
					ids = append(ids, id)
				}
			}
		}
		found, err := s.findByIDs(ctx, target, ids)
		if err != nil {
			return fmt.Errorf("expand %s: %w", name, err)
		}

		for i := range recs {
			var related []record.Record
			for _, id := range recs[i].Strings(name) {
				if rel, ok := found[id]; ok {
					related = append(related, rel)
				}
			}
			if len(related) > 0 {
				recs[i].SetExpand(name, related...)
			}
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

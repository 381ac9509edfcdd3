package devstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"labdesk/internal/store"
)

const (
	DefaultPerPage = 30
	MaxPerPage     = 500
)

// listQuery is a parsed list request against one collection.
type listQuery struct {
	Page    int
	PerPage int
	Sorts   []orderClause
	Filter  Expr
	Expand  []string
}

type orderClause struct {
	Field string
	Desc  bool
}

// parseListQuery reads page, perPage, sort, filter and expand. perPage is
// capped at MaxPerPage; unknown sort or expand fields are rejected.
func parseListQuery(c *fiber.Ctx, t *table) (*listQuery, error) {
	q := &listQuery{Page: 1, PerPage: DefaultPerPage}

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			q.Page = v
		}
	}
	if pp := c.Query("perPage"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			q.PerPage = min(v, MaxPerPage)
		}
	}

	// sort=-updated,name
	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			oc := orderClause{Field: part}
			if strings.HasPrefix(part, "-") {
				oc = orderClause{Field: part[1:], Desc: true}
			} else if strings.HasPrefix(part, "+") {
				oc.Field = part[1:]
			}
			if _, ok := t.column(oc.Field); !ok {
				return nil, NewAppError(fiber.StatusBadRequest, fmt.Sprintf("Invalid sort field %q.", oc.Field))
			}
			q.Sorts = append(q.Sorts, oc)
		}
	}

	filter, err := ParseFilter(c.Query("filter"))
	if err != nil {
		return nil, NewAppError(fiber.StatusBadRequest, fmt.Sprintf("Invalid filter: %v.", err))
	}
	q.Filter = filter

	expand, err := parseExpand(c.Query("expand"), t)
	if err != nil {
		return nil, err
	}
	q.Expand = expand
	return q, nil
}

// parseExpand accepts a comma-separated list of relation fields of t.
func parseExpand(param string, t *table) ([]string, error) {
	var out []string
	for _, name := range strings.Split(param, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		col, ok := t.column(name)
		if !ok || col.Target == "" {
			return nil, NewAppError(fiber.StatusBadRequest, fmt.Sprintf("Invalid expand field %q.", name))
		}
		out = append(out, name)
	}
	return out, nil
}

// whereSQL compiles the filter into a WHERE clause, or "" without a filter.
func (q *listQuery) whereSQL(t *table, d store.Dialect, pb store.ParamBuilder) (string, error) {
	if q.Filter == nil {
		return "", nil
	}
	fc := &filterCompiler{dialect: d, pb: pb, columns: t.byName}
	where, err := fc.compile(q.Filter)
	if err != nil {
		return "", NewAppError(fiber.StatusBadRequest, fmt.Sprintf("Invalid filter: %v.", err))
	}
	return " WHERE " + where, nil
}

// buildSelectSQL builds a parameterized SELECT for one page of q.
func buildSelectSQL(t *table, q *listQuery, d store.Dialect) (string, []any, error) {
	pb := d.NewParamBuilder()
	where, err := q.whereSQL(t, d, pb)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s", t.selectList(), store.QuoteIdent(t.coll.Name), where)

	var orderParts []string
	for _, s := range q.Sorts {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		orderParts = append(orderParts, fmt.Sprintf("%s %s", store.QuoteIdent(s.Field), dir))
	}
	// id keeps paging stable among equal sort keys
	orderParts = append(orderParts, store.QuoteIdent("id")+" ASC")
	sql += " ORDER BY " + strings.Join(orderParts, ", ")

	limit := pb.Add(q.PerPage)
	offset := pb.Add((q.Page - 1) * q.PerPage)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	return sql, pb.Params(), nil
}

// buildCountSQL builds a COUNT query with the same filter as the select.
func buildCountSQL(t *table, q *listQuery, d store.Dialect) (string, []any, error) {
	pb := d.NewParamBuilder()
	where, err := q.whereSQL(t, d, pb)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) AS total FROM %s%s", store.QuoteIdent(t.coll.Name), where), pb.Params(), nil
}

func totalPages(total, perPage int) int {
	if total == 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

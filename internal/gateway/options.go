package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"labdesk/internal/record"
	"labdesk/internal/schema"
)

// MaxRelationOptions caps how many records are fetched per related collection.
const MaxRelationOptions = 500

// Option is one choice of a relation picker.
type Option struct {
	ID    string
	Label string
}

// SearchFilter builds a case-insensitive contains filter over fields. No fields
// or a blank query yields no filter.
func SearchFilter(fields []string, query string) string {
	query = strings.TrimSpace(query)
	if len(fields) == 0 || query == "" {
		return ""
	}
	quoted := quote(query)
	terms := make([]string, len(fields))
	for i, f := range fields {
		terms[i] = f + " ~ " + quoted
	}
	return "(" + strings.Join(terms, " || ") + ")"
}

var filterEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(s string) string {
	return `"` + filterEscaper.Replace(s) + `"`
}

// OptionLabel resolves labelPath on rec, falling back to the id.
func OptionLabel(rec record.Record, labelPath string) string {
	if v, ok := rec.Lookup(labelPath); ok {
		if s := record.Stringify(v); s != "" {
			return s
		}
	}
	return rec.ID
}

// RelationOptions fetches the picker options of every relation field, keyed by
// field key. Fetches run concurrently and all must finish before it returns;
// the first failure cancels the rest.
func (c *Client) RelationOptions(ctx context.Context, sess Session, fields []schema.Field) (map[string][]Option, error) {
	out := make(map[string][]Option, len(fields))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range fields {
		target, labelPath, ok := f.Target()
		if !ok {
			continue
		}
		g.Go(func() error {
			res, err := c.List(gctx, sess, target, ListParams{Page: 1, PerPage: MaxRelationOptions})
			if err != nil {
				return fmt.Errorf("load %s options: %w", f.Label, err)
			}
			opts := make([]Option, 0, len(res.Items))
			for _, rec := range res.Items {
				opts = append(opts, Option{ID: rec.ID, Label: OptionLabel(rec, labelPath)})
			}
			mu.Lock()
			out[f.Key] = opts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

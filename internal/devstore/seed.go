package devstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"labdesk/internal/record"
	"labdesk/internal/schema"
	"labdesk/internal/store"
)

// SeedData is the seed file layout: records per collection name. A users
// entry may carry a plain "password", stored as a bcrypt hash.
//
//	records:
//	  users:
//	    - email: admin@example.com
//	      password: secret
//	      is_admin: true
//	  categories:
//	    - id: cardiac
//	      name: Cardiac health
type SeedData struct {
	Records map[string][]map[string]any `yaml:"records"`
}

// SeedFile loads a YAML seed file. See Seed.
func (s *Server) SeedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return s.Seed(ctx, f)
}

// Seed inserts the records of every collection whose table is still empty and
// returns how many rows it wrote. Relation ids are not checked, so records may
// reference each other in any order.
func (s *Server) Seed(ctx context.Context, r io.Reader) (int, error) {
	var data SeedData
	if err := yaml.NewDecoder(r).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	for name := range data.Records {
		if _, ok := s.tables[name]; !ok {
			return 0, fmt.Errorf("seed: unknown collection %q", name)
		}
	}

	inserted := 0
	for _, name := range s.order {
		rows := data.Records[name]
		if len(rows) == 0 {
			continue
		}
		t := s.tables[name]
		empty, err := s.isEmpty(ctx, t)
		if err != nil {
			return inserted, err
		}
		if !empty {
			s.logger.Info("seed skipped, collection not empty", zap.String("collection", name))
			continue
		}

		for i, row := range rows {
			if err := s.seedRecord(ctx, t, row); err != nil {
				return inserted, fmt.Errorf("seed %s[%d]: %w", name, i, err)
			}
			inserted++
		}
		s.logger.Info("seeded collection", zap.String("collection", name), zap.Int("records", len(rows)))
	}
	return inserted, nil
}

func (s *Server) seedRecord(ctx context.Context, t *table, row map[string]any) error {
	in := seedInput(row)
	co := coerce(t.coll, in, true, 0)
	if len(co.errs) > 0 {
		return ValidationError("Invalid seed record.", co.errs)
	}

	values := co.values
	values["id"] = in.first("id")
	if values["id"] == "" {
		values["id"] = newID()
	}
	values["created"] = now()
	values["updated"] = values["created"]
	// file fields seed as plain stored names
	for _, key := range t.fileColumns() {
		if name := in.first(key); name != "" {
			values[key] = name
		}
	}
	if err := s.setPassword(t, in, values); err != nil {
		return err
	}
	return s.insertRecord(ctx, t, values)
}

func (s *Server) isEmpty(ctx context.Context, t *table) (bool, error) {
	n, err := s.store.Count(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", store.QuoteIdent(t.coll.Name)))
	if err != nil {
		return false, fmt.Errorf("count %s: %w", t.coll.Name, err)
	}
	return n == 0, nil
}

// seedInput turns decoded YAML values into posted form values.
func seedInput(row map[string]any) formInput {
	in := formInput{values: map[string][]string{}}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := row[k].(type) {
		case []any:
			for _, item := range v {
				in.values[k] = append(in.values[k], seedString(item))
			}
		default:
			in.values[k] = []string{seedString(v)}
		}
	}
	return in
}

func seedString(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(schema.TimestampLayout)
	case int:
		return fmt.Sprintf("%d", val)
	case string:
		return strings.TrimSpace(val)
	default:
		return record.Stringify(val)
	}
}

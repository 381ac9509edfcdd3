package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "modernc.org/sqlite"             // Register sqlite as database/sql driver

	"labdesk/internal/config"
	"labdesk/internal/schema"
)

var ErrNotFound = errors.New("not found")
var ErrUniqueViolation = errors.New("unique constraint violation")

// Row is one result row keyed by column name. Values are string, int64,
// float64, bool or nil.
type Row = map[string]any

// Store holds the collection tables of the dev backend.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// New opens the database named by cfg. SQLite files live under cfg.Path.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	dialect := NewDialect(driver)

	if driver == "sqlite" && cfg.Path != "" && cfg.Path != ":memory:" {
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open(dialect.DriverName(), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := configure(ctx, db, driver, cfg.PoolSize); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db, Dialect: dialect}, nil
}

func configure(ctx context.Context, db *sql.DB, driver string, poolSize int) error {
	if driver != "sqlite" {
		if poolSize > 0 {
			db.SetMaxOpenConns(poolSize)
		}
		return db.PingContext(ctx)
	}
	// one connection keeps an in-memory database alive across requests
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() {
	s.DB.Close()
}

// Select runs a query and returns every row. Boolean columns listed in bools
// are reported as bool on dialects that store them as integers.
func (s *Store) Select(ctx context.Context, bools []string, query string, args ...any) ([]Row, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	fix := map[string]bool{}
	if s.Dialect.NeedsBoolFix() {
		for _, name := range bools {
			fix[name] = true
		}
	}

	var out []Row
	for rows.Next() {
		row, err := scanRow(rows, columns, fix)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// SelectOne returns the first row of the query, or ErrNotFound.
func (s *Store) SelectOne(ctx context.Context, bools []string, query string, args ...any) (Row, error) {
	rows, err := s.Select(ctx, bools, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Count runs a single-column aggregate such as SELECT COUNT(*).
func (s *Store) Count(ctx context.Context, query string, args ...any) (int, error) {
	var n int64
	if err := s.DB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return int(n), nil
}

// Exec runs a write and returns the number of rows affected. Constraint
// failures come back as ErrUniqueViolation.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		if mapped := s.Dialect.MapError(err); errors.Is(mapped, ErrUniqueViolation) {
			return 0, mapped
		}
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanRow(rows *sql.Rows, columns []string, bools map[string]bool) (Row, error) {
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	row := make(Row, len(columns))
	for i, col := range columns {
		v := normalizeValue(values[i])
		if bools[col] {
			if n, ok := v.(int64); ok {
				v = n != 0
			}
		}
		row[col] = v
	}
	return row, nil
}

// normalizeValue narrows driver values to the types a record attribute holds.
// Timestamps become the wire layout in UTC.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC().Format(schema.TimestampLayout)
	default:
		return val
	}
}

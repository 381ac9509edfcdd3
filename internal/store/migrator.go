package store

import (
	"context"
	"fmt"
	"strings"

	"labdesk/internal/schema"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// MigrateAll migrates every collection of the registry.
func (m *Migrator) MigrateAll(ctx context.Context, reg *schema.Registry) error {
	for _, c := range reg.All() {
		if err := m.Migrate(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Migrate ensures the table matches the collection's fields.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, c *schema.Collection) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, c.Name)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, c)
	}

	return m.alterTable(ctx, c)
}

func (m *Migrator) createTable(ctx context.Context, c *schema.Collection) error {
	cols := []string{
		QuoteIdent("id") + " TEXT PRIMARY KEY",
		QuoteIdent("created") + " TEXT NOT NULL DEFAULT ''",
		QuoteIdent("updated") + " TEXT NOT NULL DEFAULT ''",
	}
	for _, col := range Columns(c) {
		cols = append(cols, QuoteIdent(col.Name)+" "+m.store.Dialect.ColumnType(col.Type))
	}
	if c.Name == schema.Users {
		cols = append(cols, QuoteIdent(PasswordColumn)+" TEXT NOT NULL DEFAULT ''")
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", QuoteIdent(c.Name), strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", c.Name, err)
	}

	if err := m.createIndexes(ctx, c); err != nil {
		return fmt.Errorf("create indexes for %s: %w", c.Name, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, c *schema.Collection) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, c.Name)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", c.Name, err)
	}

	add := func(name, def string) error {
		if _, ok := existing[name]; ok {
			return nil
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", QuoteIdent(c.Name), QuoteIdent(name), def)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", c.Name, name, err)
		}
		return nil
	}

	for _, col := range Columns(c) {
		if err := add(col.Name, m.store.Dialect.ColumnType(col.Type)); err != nil {
			return err
		}
	}
	if c.Name == schema.Users {
		if err := add(PasswordColumn, "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}

	if err := m.createIndexes(ctx, c); err != nil {
		return fmt.Errorf("create indexes for %s: %w", c.Name, err)
	}
	return nil
}

func (m *Migrator) createIndexes(ctx context.Context, c *schema.Collection) error {
	if c.Name != schema.Users {
		return nil
	}
	sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		QuoteIdent("idx_users_email"), QuoteIdent(c.Name), QuoteIdent("email"))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create unique index on users.email: %w", err)
	}
	return nil
}

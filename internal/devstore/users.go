package devstore

import (
	"context"
	"fmt"
	"strings"

	"labdesk/internal/auth"
	"labdesk/internal/record"
	"labdesk/internal/schema"
	"labdesk/internal/store"
)

var _ auth.UserStore = (*Server)(nil)

// FindUserByEmail looks a user up by email, case-insensitively.
func (s *Server) FindUserByEmail(ctx context.Context, email string) (record.Record, string, error) {
	t := s.tables[schema.Users]
	if t == nil {
		return record.Record{}, "", auth.ErrUserNotFound
	}

	pb := s.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s, %s FROM %s WHERE LOWER(%s) = %s",
		t.selectList(), store.QuoteIdent(store.PasswordColumn),
		store.QuoteIdent(schema.Users), store.QuoteIdent("email"), pb.Add(strings.ToLower(email)))
	row, err := s.store.SelectOne(ctx, t.bools, sql, pb.Params()...)
	if isNotFound(err) {
		return record.Record{}, "", auth.ErrUserNotFound
	}
	if err != nil {
		return record.Record{}, "", fmt.Errorf("find user: %w", err)
	}

	hash := record.Stringify(row[store.PasswordColumn])
	delete(row, store.PasswordColumn)
	return t.toRecord(row), hash, nil
}

// FindUser loads a user by id.
func (s *Server) FindUser(ctx context.Context, id string) (record.Record, error) {
	t := s.tables[schema.Users]
	if t == nil {
		return record.Record{}, auth.ErrUserNotFound
	}
	rec, err := s.getRecord(ctx, t, id)
	if isNotFound(err) {
		return record.Record{}, auth.ErrUserNotFound
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("find user: %w", err)
	}
	return rec, nil
}

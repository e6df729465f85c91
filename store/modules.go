package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Module is an installed addon.
type Module struct {
	Name     string
	Version  string
	Sequence int
}

// Language is a language known to the database.
type Language struct {
	Code   string
	Name   string
	Active bool
}

// InstallModule records name as installed, updating its version.
func (s *Store) InstallModule(ctx context.Context, m Module) error {
	b := s.sq.Insert("ir_module").
		Columns("name", "version", "sequence").
		Values(m.Name, m.Version, m.Sequence).
		Suffix("ON CONFLICT(name) DO UPDATE SET version = excluded.version, sequence = excluded.sequence")
	if err := s.exec(ctx, s.db, b); err != nil {
		return fmt.Errorf("install module %s: %w", m.Name, err)
	}
	return nil
}

// Modules lists installed modules in installation order.
func (s *Store) Modules(ctx context.Context) ([]Module, error) {
	query, args, err := s.sq.Select("name", "version", "sequence").
		From("ir_module").
		OrderBy("sequence", "name").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()
	var out []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.Name, &m.Version, &m.Sequence); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ModuleInstalled reports whether name is installed.
func (s *Store) ModuleInstalled(ctx context.Context, name string) (bool, error) {
	query, args, err := s.sq.Select("name").From("ir_module").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return false, err
	}
	var got string
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&got); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("module %s: %w", name, err)
	}
	return true, nil
}

// ActivateLanguage creates code if needed and marks it active.
func (s *Store) ActivateLanguage(ctx context.Context, code, name string) error {
	if name == "" {
		name = code
	}
	b := s.sq.Insert("res_lang").
		Columns("code", "name", "active").
		Values(code, name, true).
		Suffix("ON CONFLICT(code) DO UPDATE SET active = excluded.active")
	if err := s.exec(ctx, s.db, b); err != nil {
		return fmt.Errorf("activate language %s: %w", code, err)
	}
	return nil
}

// Languages lists languages ordered by code.
func (s *Store) Languages(ctx context.Context, activeOnly bool) ([]Language, error) {
	b := s.sq.Select("code", "name", "active").From("res_lang").OrderBy("code")
	if activeOnly {
		b = b.Where(sq.Eq{"active": true})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	defer rows.Close()
	var out []Language
	for rows.Next() {
		var l Language
		if err := rows.Scan(&l.Code, &l.Name, &l.Active); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// LanguageActive reports whether code is installed and active.
func (s *Store) LanguageActive(ctx context.Context, code string) (bool, error) {
	query, args, err := s.sq.Select("active").From("res_lang").Where(sq.Eq{"code": code}).ToSql()
	if err != nil {
		return false, err
	}
	var active bool
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&active); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("language %s: %w", code, err)
	}
	return active, nil
}

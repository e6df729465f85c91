package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// CodeTerm is a translation that is not bound to a record field: code,
// selection, constraint, sql_constraint and report terms.
type CodeTerm struct {
	Lang     string
	Type     string
	Name     string
	ResID    int64
	Source   string
	Value    string
	Module   string
	Comments []string
}

type sourceKey struct {
	name, types, lang, source string
}

// UpsertCodeTerm stores t. Without overwrite an existing non-empty value is
// kept.
func (s *Store) UpsertCodeTerm(ctx context.Context, t CodeTerm, overwrite bool) error {
	update := "value = excluded.value"
	if !overwrite {
		update = "value = CASE WHEN ir_code_translation.value = '' THEN excluded.value ELSE ir_code_translation.value END"
	}
	b := s.sq.Insert("ir_code_translation").
		Columns("lang", "type", "name", "res_id", "src", "value", "module", "comments").
		Values(t.Lang, t.Type, t.Name, t.ResID, t.Source, t.Value, t.Module, strings.Join(t.Comments, "\n")).
		Suffix("ON CONFLICT(lang, type, name, src) DO UPDATE SET " + update +
			", res_id = excluded.res_id, module = excluded.module, comments = excluded.comments")
	if err := s.exec(ctx, s.db, b); err != nil {
		return fmt.Errorf("store %s term %q: %w", t.Type, t.Source, err)
	}
	s.sources.Purge()
	return nil
}

// GetSource returns the translation of source into lang among terms of the
// given types, restricted to name when it is not empty. The source is
// returned when no translation exists. Results are memoised until the next
// write.
func (s *Store) GetSource(ctx context.Context, name string, types []string, lang, source string) (string, error) {
	if lang == "" || source == "" {
		return source, nil
	}
	key := sourceKey{name: name, types: strings.Join(types, ","), lang: lang, source: source}
	if v, ok := s.sources.Get(key); ok {
		return v, nil
	}
	where := sq.And{
		sq.Eq{"lang": lang, "src": source},
		sq.NotEq{"value": ""},
	}
	if len(types) > 0 {
		where = append(where, sq.Eq{"type": types})
	}
	if name != "" {
		where = append(where, sq.Eq{"name": name})
	}
	query, args, err := s.sq.Select("value").
		From("ir_code_translation").
		Where(where).
		OrderBy("name", "type").
		Limit(1).
		ToSql()
	if err != nil {
		return source, err
	}
	value := source
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		value = source
	case err != nil:
		return source, fmt.Errorf("translation of %q: %w", source, err)
	}
	s.sources.Add(key, value)
	return value, nil
}

// CodeTerms lists the stored terms of lang owned by modules, all modules
// when modules is empty.
func (s *Store) CodeTerms(ctx context.Context, lang string, modules []string) ([]CodeTerm, error) {
	b := s.sq.Select("lang", "type", "name", "res_id", "src", "value", "module", "comments").
		From("ir_code_translation").
		Where(sq.Eq{"lang": lang}).
		OrderBy("module", "src", "name", "type")
	if len(modules) > 0 {
		b = b.Where(sq.Eq{"module": modules})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s terms: %w", lang, err)
	}
	defer rows.Close()
	var out []CodeTerm
	for rows.Next() {
		var t CodeTerm
		var comments string
		if err := rows.Scan(&t.Lang, &t.Type, &t.Name, &t.ResID, &t.Source, &t.Value, &t.Module, &comments); err != nil {
			return nil, err
		}
		if comments != "" {
			t.Comments = strings.Split(comments, "\n")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TermCount is the number of code terms stored for a language.
type TermCount struct {
	Lang       string
	Total      int
	Translated int
}

// CountCodeTerms summarises the code-term table per language.
func (s *Store) CountCodeTerms(ctx context.Context) ([]TermCount, error) {
	query, args, err := s.sq.Select("lang", "COUNT(*)", "SUM(CASE WHEN value <> '' THEN 1 ELSE 0 END)").
		From("ir_code_translation").
		GroupBy("lang").
		OrderBy("lang").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count terms: %w", err)
	}
	defer rows.Close()
	var out []TermCount
	for rows.Next() {
		var c TermCount
		if err := rows.Scan(&c.Lang, &c.Total, &c.Translated); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/minios-linux/transkit/orm"
)

// SetExternalID binds module.name to a record.
func (s *Store) SetExternalID(ctx context.Context, x orm.ExternalID) error {
	b := s.sq.Insert("ir_model_data").
		Columns("module", "name", "model", "res_id").
		Values(x.Module, x.Name, x.Model, x.ResID).
		Suffix("ON CONFLICT(module, name) DO UPDATE SET model = excluded.model, res_id = excluded.res_id")
	if err := s.exec(ctx, s.db, b); err != nil {
		return fmt.Errorf("external id %s: %w", x, err)
	}
	return nil
}

// Resolve looks up the record behind module.name. It returns ErrNotFound
// when the identifier is unknown.
func (s *Store) Resolve(ctx context.Context, module, name string) (orm.ExternalID, error) {
	x := orm.ExternalID{Module: module, Name: name}
	query, args, err := s.sq.Select("model", "res_id").
		From("ir_model_data").
		Where(sq.Eq{"module": module, "name": name}).
		ToSql()
	if err != nil {
		return x, err
	}
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&x.Model, &x.ResID); {
	case errors.Is(err, sql.ErrNoRows):
		return x, fmt.Errorf("external id %s: %w", x, ErrNotFound)
	case err != nil:
		return x, fmt.Errorf("external id %s: %w", x, err)
	}
	return x, nil
}

// ExternalIDs lists the identifiers owned by modules, all of them when
// modules is empty, ordered by module, model and name.
func (s *Store) ExternalIDs(ctx context.Context, modules []string) ([]orm.ExternalID, error) {
	b := s.sq.Select("module", "name", "model", "res_id").
		From("ir_model_data").
		OrderBy("module", "model", "name")
	if len(modules) > 0 {
		b = b.Where(sq.Eq{"module": modules})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list external ids: %w", err)
	}
	defer rows.Close()
	var out []orm.ExternalID
	for rows.Next() {
		var x orm.ExternalID
		if err := rows.Scan(&x.Module, &x.Name, &x.Model, &x.ResID); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

// NextID returns an unused record id for model.
func (s *Store) NextID(ctx context.Context, model string) (orm.ID, error) {
	query, args, err := s.sq.Select("COALESCE(MAX(res_id), 0)").
		From("ir_model_data").
		Where(sq.Eq{"model": model}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var max int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, fmt.Errorf("next id of %s: %w", model, err)
	}
	return orm.ID(max + 1), nil
}

// ReadField returns the stored value of f for record id: orm.Translations
// for translatable fields, the decoded JSON value otherwise. A missing value
// is nil.
func (s *Store) ReadField(ctx context.Context, f *orm.Field, id orm.ID) (any, error) {
	return s.readField(ctx, s.db, f, id)
}

func (s *Store) readField(ctx context.Context, q DBTX, f *orm.Field, id orm.ID) (any, error) {
	query, args, err := s.sq.Select("value").
		From("ir_record").
		Where(sq.Eq{"model": f.Model, "res_id": int64(id), "field": f.Name}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var raw sql.NullString
	switch err := q.QueryRowContext(ctx, query, args...).Scan(&raw); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read %s of %d: %w", f, id, err)
	}
	if !raw.Valid {
		return nil, nil
	}
	v, err := decodeValue(f, raw.String)
	if err != nil {
		return nil, fmt.Errorf("read %s of %d: %w", f, id, err)
	}
	return v, nil
}

// WriteField replaces the stored value of f for record id.
func (s *Store) WriteField(ctx context.Context, f *orm.Field, id orm.ID, value any) error {
	return s.writeField(ctx, s.db, f, id, value)
}

func (s *Store) writeField(ctx context.Context, q DBTX, f *orm.Field, id orm.ID, value any) error {
	var raw any
	if value != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s of %d: %w", f, id, err)
		}
		raw = string(data)
	}
	b := s.sq.Insert("ir_record").
		Columns("model", "res_id", "field", "value").
		Values(f.Model, int64(id), f.Name, raw).
		Suffix("ON CONFLICT(model, res_id, field) DO UPDATE SET value = excluded.value")
	if err := s.exec(ctx, q, b); err != nil {
		return fmt.Errorf("write %s of %d: %w", f, id, err)
	}
	return nil
}

// FlushValues persists dirty cache values in one transaction. Translations
// are merged into the stored language map, other values replace it.
func (s *Store) FlushValues(ctx context.Context, values []orm.DirtyValue) error {
	return WithTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		for _, dv := range values {
			value := dv.Value
			if tr, ok := value.(orm.Translations); ok && dv.Field.Translatable() {
				old, err := s.readField(ctx, tx, dv.Field, dv.ID)
				if err != nil {
					return err
				}
				merged := orm.Translations{}
				if prev, ok := old.(orm.Translations); ok {
					for lang, v := range prev {
						merged[lang] = v
					}
				}
				for lang, v := range tr {
					merged[lang] = v
				}
				value = merged
			}
			if err := s.writeField(ctx, tx, dv.Field, dv.ID, value); err != nil {
				return err
			}
		}
		s.log.WithField("values", len(values)).Debug("flushed cache values")
		return nil
	})
}

func decodeValue(f *orm.Field, raw string) (any, error) {
	if f.Translatable() {
		var tr orm.Translations
		if err := json.Unmarshal([]byte(raw), &tr); err != nil {
			return nil, err
		}
		return tr, nil
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

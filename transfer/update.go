package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/minios-linux/transkit/markup"
	"github.com/minios-linux/transkit/orm"
)

// FieldReader reads stored field values.
type FieldReader interface {
	ReadField(ctx context.Context, f *orm.Field, id orm.ID) (any, error)
}

// Updater writes field translations through the record cache of Env. Values
// are marked dirty; Flush hands them to the store.
type Updater struct {
	Env   *orm.Environment
	Store FieldReader
}

// current returns every language of the field value, loading it into the
// cache on first access.
func (u *Updater) current(ctx context.Context, f *orm.Field, id orm.ID) (orm.Translations, error) {
	tr, err := u.Env.Cache.GetTranslations(u.Env, f, id)
	if err == nil {
		return tr, nil
	}
	if !errors.Is(err, orm.ErrCacheMiss) {
		return nil, err
	}
	v, err := u.Store.ReadField(ctx, f, id)
	if err != nil {
		return nil, err
	}
	stored, _ := v.(orm.Translations)
	u.Env.Cache.InsertMissing(u.Env, f, []orm.ID{id}, []any{stored})
	return stored, nil
}

// UpdateFieldTranslations sets the translations of field f of record id,
// translations mapping a language to its value. Without overwrite only
// languages lacking a value are written. Empty values are ignored.
func (u *Updater) UpdateFieldTranslations(ctx context.Context, f *orm.Field, id orm.ID, translations map[string]string, overwrite bool) (int, error) {
	if !f.Translatable() {
		return 0, fmt.Errorf("field %s is not translatable", f)
	}
	tr, err := u.current(ctx, f, id)
	if err != nil {
		return 0, err
	}
	if tr == nil {
		tr = orm.Translations{}
	}
	written := 0
	for lang, value := range translations {
		if value == "" || !overwrite && tr[lang] != "" {
			continue
		}
		tr[lang] = value
		written++
	}
	if written > 0 {
		u.Env.Cache.Set(u.Env, f, id, tr, true)
	}
	return written, nil
}

// UpdateTermTranslations translates the terms of a markup field. terms maps
// a language to pairs of source term and translated term; each language
// value is rebuilt from the en_US source with the existing term
// translations, updated with terms. Without overwrite existing term
// translations are kept.
func (u *Updater) UpdateTermTranslations(ctx context.Context, f *orm.Field, id orm.ID, terms map[string]map[string]string, overwrite bool) (int, error) {
	ma, ok := f.Translate.(orm.MarkupAware)
	if !ok {
		return 0, fmt.Errorf("field %s does not translate terms", f)
	}
	tr, err := u.current(ctx, f, id)
	if err != nil {
		return 0, err
	}
	source := tr[orm.BaseLang]
	if source == "" {
		return 0, fmt.Errorf("field %s of record %d has no source value", f, id)
	}
	srcTerms := map[string]bool{}
	for _, t := range ma.Terms(source) {
		srcTerms[t] = true
	}

	written := 0
	for lang, pairs := range terms {
		existing := map[string]string{}
		if tr[lang] != "" {
			existing[lang] = tr[lang]
		}
		dict := markup.BuildDictionary(ma.Func, source, existing)
		changed := false
		for term, value := range pairs {
			if !srcTerms[term] || value == "" {
				continue
			}
			if !overwrite && dict[term][lang] != "" && dict[term][lang] != term {
				continue
			}
			if dict[term] == nil {
				dict[term] = map[string]string{}
			}
			dict[term][lang] = value
			changed = true
			written++
		}
		if !changed {
			continue
		}
		value, err := ma.Apply(dict.Lookup(lang), source)
		if err != nil {
			return written, fmt.Errorf("translating %s of record %d: %w", f, id, err)
		}
		tr[lang] = value
	}
	if written > 0 {
		u.Env.Cache.Set(u.Env, f, id, tr, true)
	}
	return written, nil
}

// Flush writes pending values.
func (u *Updater) Flush(ctx context.Context, fl orm.Flusher) error {
	return u.Env.Cache.Flush(ctx, fl)
}

package addons

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/minios-linux/transkit/markup"
	"github.com/minios-linux/transkit/orm"
	"github.com/minios-linux/transkit/store"
)

// BuildRegistry declares the models of addons, in order, into reg.
func BuildRegistry(reg *orm.Registry, addons []*Addon) error {
	for _, a := range addons {
		for _, ms := range a.Models {
			fields := make([]*orm.Field, 0, len(ms.Fields))
			for _, fs := range ms.Fields {
				tr, err := orm.TranslateByName(fs.Translate)
				if err != nil {
					return fmt.Errorf("%s: %s.%s: %w", a.Name, ms.Name, fs.Name, err)
				}
				f := &orm.Field{
					Name:           fs.Name,
					Type:           fs.Type,
					Translate:      tr,
					DependsContext: fs.DependsContext,
					Store:          fs.Store == nil || *fs.Store,
				}
				if f.Type == "" {
					f.Type = "char"
					if len(fs.Selection) > 0 {
						f.Type = "selection"
					}
				}
				for _, o := range fs.Selection {
					f.Selection = append(f.Selection, orm.SelectionOption{Value: o.Value, Label: o.Label})
				}
				fields = append(fields, f)
			}
			reg.Define(a.Name, ms.Name, fields, constraints(ms.Constraints), constraints(ms.SQLConstraints))
		}
	}
	return nil
}

func constraints(specs []ConstraintSpec) []orm.Constraint {
	out := make([]orm.Constraint, 0, len(specs))
	for _, c := range specs {
		out = append(out, orm.Constraint{Name: c.Name, Message: c.Message, Definition: c.Definition})
	}
	return out
}

// RecordStore is the storage an Installer writes to.
type RecordStore interface {
	orm.Flusher
	Resolve(ctx context.Context, module, name string) (orm.ExternalID, error)
	SetExternalID(ctx context.Context, x orm.ExternalID) error
	NextID(ctx context.Context, model string) (orm.ID, error)
	ReadField(ctx context.Context, f *orm.Field, id orm.ID) (any, error)
	InstallModule(ctx context.Context, m store.Module) error
}

// Installer writes addon data records through the record cache.
type Installer struct {
	Store RecordStore
	Env   *orm.Environment
	Log   logrus.FieldLogger
}

// NewInstaller returns an installer working in a fresh en_US environment.
func NewInstaller(st RecordStore, reg *orm.Registry, log logrus.FieldLogger) *Installer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Installer{
		Store: st,
		Env:   orm.NewEnvironment(reg, orm.NewCache(log), orm.Context{"lang": orm.BaseLang}),
		Log:   log,
	}
}

// Install installs addons in the given order. Records are flushed to the
// store after each addon.
func (in *Installer) Install(ctx context.Context, addons []*Addon) error {
	for seq, a := range addons {
		records, err := a.LoadData()
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := in.installRecord(ctx, a.Name, r); err != nil {
				return fmt.Errorf("%s: record %s: %w", a.Name, r.ID, err)
			}
		}
		if err := in.Env.Cache.Flush(ctx, in.Store); err != nil {
			return fmt.Errorf("%s: %w", a.Name, err)
		}
		if err := in.Store.InstallModule(ctx, store.Module{Name: a.Name, Version: a.Version, Sequence: seq + 1}); err != nil {
			return err
		}
		in.Log.WithFields(logrus.Fields{"module": a.Name, "records": len(records)}).Info("module installed")
	}
	return nil
}

func (in *Installer) installRecord(ctx context.Context, module string, r RecordSpec) error {
	if _, ok := in.Env.Registry.Model(r.Model); !ok {
		return fmt.Errorf("unknown model %s", r.Model)
	}
	xmod, xname := module, r.ID
	if m, n, ok := strings.Cut(r.ID, "."); ok {
		xmod, xname = m, n
	}
	x, err := in.Store.Resolve(ctx, xmod, xname)
	switch {
	case errors.Is(err, store.ErrNotFound):
		id, err := in.Store.NextID(ctx, r.Model)
		if err != nil {
			return err
		}
		x = orm.ExternalID{Module: xmod, Name: xname, Model: r.Model, ResID: int64(id)}
		if err := in.Store.SetExternalID(ctx, x); err != nil {
			return err
		}
	case err != nil:
		return err
	case x.Model != r.Model:
		return fmt.Errorf("external id %s belongs to %s", x, x.Model)
	}

	names := make([]string, 0, len(r.Values))
	for name := range r.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := in.Env.Registry.Field(r.Model, name)
		if !ok {
			return fmt.Errorf("unknown field %s.%s", r.Model, name)
		}
		value, err := in.fieldValue(ctx, f, orm.ID(x.ResID), r.Values[name])
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		in.Env.Cache.Set(in.Env, f, orm.ID(x.ResID), value, true)
	}
	return nil
}

// fieldValue computes the value to store for f. Translated values keep the
// languages already stored; when the en_US source of a markup field changes
// the other languages are carried over term by term.
func (in *Installer) fieldValue(ctx context.Context, f *orm.Field, id orm.ID, raw any) (any, error) {
	if !f.Translatable() {
		return raw, nil
	}
	incoming := orm.Translations{}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		incoming[orm.BaseLang] = v
	case map[string]any:
		for lang, s := range v {
			str, ok := s.(string)
			if !ok {
				return nil, fmt.Errorf("language %s: expected a string, got %T", lang, s)
			}
			incoming[lang] = str
		}
	default:
		return nil, fmt.Errorf("expected a string or a language map, got %T", raw)
	}

	stored, err := in.Store.ReadField(ctx, f, id)
	if err != nil {
		return nil, err
	}
	old, _ := stored.(orm.Translations)
	merged := orm.Translations{}
	for lang, v := range old {
		merged[lang] = v
	}
	newSrc, changed := incoming[orm.BaseLang]
	oldSrc := old[orm.BaseLang]
	if ma, ok := f.Translate.(orm.MarkupAware); ok && changed && old != nil && newSrc != oldSrc {
		others := map[string]string{}
		for lang, v := range old {
			if lang != orm.BaseLang {
				others[lang] = v
			}
		}
		for lang, v := range markup.SyncTranslations(ma.Func, oldSrc, newSrc, others) {
			merged[lang] = v
		}
		in.Log.WithFields(logrus.Fields{"field": f.String(), "id": id, "languages": len(others)}).
			Debug("source changed, translations resynchronised")
	}
	for lang, v := range incoming {
		merged[lang] = v
	}
	return merged, nil
}

package extract

import (
	"context"
	"fmt"

	"github.com/minios-linux/transkit/markup"
	"github.com/minios-linux/transkit/orm"
)

type recordTermKey struct {
	typ, name, resID, source string
}

// recordTerms pushes the terms of the translated fields of records owned by
// modules and returns their translations into lang.
func (g *Generator) recordTerms(ctx context.Context, modules []string, lang string, push func(module, typ, name, resID, source string, comments []string)) (map[recordTermKey]string, error) {
	translated := map[recordTermKey]string{}
	if g.Records == nil || len(modules) == 0 {
		return translated, nil
	}
	xids, err := g.Records.ExternalIDs(ctx, modules)
	if err != nil {
		return nil, err
	}
	for _, x := range xids {
		model, ok := g.Registry.Model(x.Model)
		if !ok {
			g.log().WithField("xmlid", x.String()).Debug("record of unknown model skipped")
			continue
		}
		for _, f := range model.FieldList() {
			if !f.Translatable() {
				continue
			}
			v, err := g.Records.ReadField(ctx, f, orm.ID(x.ResID))
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", x, err)
			}
			tr, _ := v.(orm.Translations)
			src := tr[orm.BaseLang]
			if src == "" {
				continue
			}
			name := x.Model + "," + f.Name
			resID := x.String()
			ma, isMarkup := f.Translate.(orm.MarkupAware)
			if !isMarkup {
				push(x.Module, "model", name, resID, src, nil)
				if lang != "" && tr[lang] != "" {
					translated[recordTermKey{"model", name, resID, src}] = tr[lang]
				}
				continue
			}
			var dict markup.TranslationDictionary
			if lang != "" && tr[lang] != "" {
				dict = markup.BuildDictionary(ma.Func, src, map[string]string{lang: tr[lang]})
			}
			for _, term := range f.Translate.Terms(src) {
				push(x.Module, "model_terms", name, resID, term, nil)
				if v := dict[term][lang]; v != "" {
					translated[recordTermKey{"model_terms", name, resID, term}] = v
				}
			}
		}
	}
	return translated, nil
}

// schemaTerms pushes selection labels and constraint messages declared by
// the selected modules.
func (g *Generator) schemaTerms(selected map[string]bool, push func(module, typ, name, resID, source string, comments []string)) {
	if g.Registry == nil {
		return
	}
	for _, m := range g.Registry.Models() {
		for _, f := range m.FieldList() {
			if !selected[f.Module] {
				continue
			}
			for _, opt := range f.Selection {
				push(f.Module, "selection", m.Name+","+f.Name, "0", opt.Label, nil)
			}
		}
		for _, c := range m.Constraints {
			if selected[c.Module] {
				push(c.Module, "constraint", m.Name, "0", c.Message, nil)
			}
		}
		for _, c := range m.SQLConstraints {
			if selected[c.Module] {
				push(c.Module, "sql_constraint", m.Name, "0", c.Message, nil)
			}
		}
	}
}

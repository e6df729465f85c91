package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/minios-linux/transkit/csvfile"
	"github.com/minios-linux/transkit/langs"
	"github.com/minios-linux/transkit/orm"
	"github.com/minios-linux/transkit/pofile"
	"github.com/minios-linux/transkit/store"
)

// ImportStore is the storage an Importer writes to.
type ImportStore interface {
	FieldReader
	orm.Flusher
	LanguageActive(ctx context.Context, code string) (bool, error)
	ActivateLanguage(ctx context.Context, code, name string) error
	Resolve(ctx context.Context, module, name string) (orm.ExternalID, error)
	UpsertCodeTerm(ctx context.Context, t store.CodeTerm, overwrite bool) error
}

// ImportReport summarises an import. Err aggregates the per-entry
// failures; the import carries on past them.
type ImportReport struct {
	Imported int
	Skipped  int
	Failed   int
	Err      error
}

func (r *ImportReport) fail(err error) {
	r.Failed++
	r.Err = multierr.Append(r.Err, err)
}

// Importer loads translation files into the database.
type Importer struct {
	Store    ImportStore
	Registry *orm.Registry
	Log      logrus.FieldLogger
	// Overwrite replaces existing translations instead of filling gaps.
	Overwrite bool
	// CreateEmpty stores code-table entries without a translation. Field
	// translations (model and model_terms) are never set to an empty value.
	CreateEmpty bool
	// Module overrides the module of every entry and of unqualified ids.
	Module string
}

func (im *Importer) log() logrus.FieldLogger {
	if im.Log == nil {
		return logrus.StandardLogger()
	}
	return im.Log
}

type termReader interface {
	Next() (pofile.Term, error)
}

// ImportFile imports a .po or .csv file into lang. For a PO file the
// module template <module>.pot next to it, when present, restricts and
// completes the imported targets.
func (im *Importer) ImportFile(ctx context.Context, path, lang string) (*ImportReport, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if format != FormatPO && format != FormatCSV {
		return nil, fmt.Errorf("%s: only .po and .csv files can be imported", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pot []pofile.Term
	if format == FormatPO {
		if potPath := im.templatePath(path); potPath != "" {
			pot, err = readTemplate(potPath, im.log())
			if err != nil {
				return nil, err
			}
		}
	}
	report, err := im.Import(ctx, f, format, lang, pot)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return report, nil
}

// templatePath returns the module template matching a PO file, or "".
func (im *Importer) templatePath(poPath string) string {
	dir := filepath.Dir(poPath)
	module := im.Module
	if module == "" && filepath.Base(dir) == "i18n" {
		module = filepath.Base(filepath.Dir(dir))
	}
	if module == "" {
		return ""
	}
	p := filepath.Join(dir, module+".pot")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func readTemplate(path string, log logrus.FieldLogger) ([]pofile.Term, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	terms, err := pofile.NewReader(f, log).All()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return terms, nil
}

// Import reads terms in format from r and stores their translations into
// lang. pot, when not nil, holds the targets of the module template: terms
// whose target is absent from it are skipped, and template targets missing
// from r receive the translation of their source when r has one.
func (im *Importer) Import(ctx context.Context, r io.Reader, format Format, lang string, pot []pofile.Term) (*ImportReport, error) {
	if lang == "" || lang == orm.BaseLang {
		return nil, fmt.Errorf("cannot import into language %q", lang)
	}
	if err := im.ensureLanguage(ctx, lang); err != nil {
		return nil, err
	}

	var reader termReader
	switch format {
	case FormatPO:
		reader = pofile.NewReader(r, im.log())
	case FormatCSV:
		cr, err := csvfile.NewReader(r)
		if err != nil {
			return nil, err
		}
		reader = cr
	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}

	report := &ImportReport{}
	b := newBatch(im, lang, report)

	var potTargets map[string]map[pofile.Target]pofile.Term
	if pot != nil {
		potTargets = map[string]map[pofile.Target]pofile.Term{}
		for _, t := range pot {
			if potTargets[t.Source] == nil {
				potTargets[t.Source] = map[pofile.Target]pofile.Term{}
			}
			potTargets[t.Source][t.Target()] = t
		}
	}
	values := map[string]string{}

	for {
		t, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if potTargets != nil {
			targets := potTargets[t.Source]
			if _, ok := targets[t.Target()]; !ok {
				report.Skipped++
				im.log().WithFields(logrus.Fields{"target": t.Target().String(), "msgid": t.Source}).
					Debug("target not in template, skipped")
				continue
			}
			delete(targets, t.Target())
			if t.Value != "" {
				if _, seen := values[t.Source]; !seen {
					values[t.Source] = t.Value
				}
			}
		}
		b.add(ctx, t)
	}
	for src, targets := range potTargets {
		value, ok := values[src]
		if !ok {
			continue
		}
		for _, t := range targets {
			t.Value = value
			b.add(ctx, t)
		}
	}

	if err := b.apply(ctx); err != nil {
		return report, err
	}
	im.log().WithFields(logrus.Fields{
		"lang": lang, "imported": report.Imported, "skipped": report.Skipped, "failed": report.Failed,
	}).Info("translations imported")
	return report, nil
}

func (im *Importer) ensureLanguage(ctx context.Context, lang string) error {
	active, err := im.Store.LanguageActive(ctx, lang)
	if err != nil {
		return err
	}
	if active {
		return nil
	}
	im.log().WithField("lang", lang).Info("activating language")
	return im.Store.ActivateLanguage(ctx, lang, langs.DisplayName(lang))
}

type fieldRecord struct {
	field *orm.Field
	id    orm.ID
}

// batch collects the field translations of one import so each record is
// rebuilt once.
type batch struct {
	im     *Importer
	lang   string
	report *ImportReport
	plain  map[fieldRecord]string
	terms  map[fieldRecord]map[string]string
	order  []fieldRecord
}

func newBatch(im *Importer, lang string, report *ImportReport) *batch {
	return &batch{
		im: im, lang: lang, report: report,
		plain: map[fieldRecord]string{},
		terms: map[fieldRecord]map[string]string{},
	}
}

func (b *batch) add(ctx context.Context, t pofile.Term) {
	if t.Value == "" && !b.im.CreateEmpty {
		b.report.Skipped++
		return
	}
	if b.im.Module != "" {
		t.Module = b.im.Module
	}
	switch t.Type {
	case "model", "model_terms":
		fr, err := b.resolve(ctx, t)
		if err != nil {
			b.report.fail(err)
			return
		}
		// an empty value would blank the field in this language
		if t.Value == "" {
			b.report.Skipped++
			return
		}
		if _, seen := b.plain[fr]; !seen && b.terms[fr] == nil {
			b.order = append(b.order, fr)
		}
		if t.Type == "model" {
			b.plain[fr] = t.Value
			return
		}
		if b.terms[fr] == nil {
			b.terms[fr] = map[string]string{}
		}
		b.terms[fr][t.Source] = t.Value
	default:
		resID, _ := strconv.ParseInt(t.ResID, 10, 64)
		err := b.im.Store.UpsertCodeTerm(ctx, store.CodeTerm{
			Lang: b.lang, Type: t.Type, Name: t.Name, ResID: resID,
			Source: t.Source, Value: t.Value, Module: t.Module, Comments: t.Comments,
		}, b.im.Overwrite)
		if err != nil {
			b.report.fail(err)
			return
		}
		b.report.Imported++
	}
}

// resolve finds the field and record a model or model_terms term targets.
func (b *batch) resolve(ctx context.Context, t pofile.Term) (fieldRecord, error) {
	model, fname, ok := strings.Cut(t.Name, ",")
	if !ok {
		return fieldRecord{}, fmt.Errorf("%s: malformed field name %q", t.Target(), t.Name)
	}
	f, ok := b.im.Registry.Field(model, fname)
	if !ok {
		return fieldRecord{}, fmt.Errorf("%s: unknown field %s.%s", t.Target(), model, fname)
	}
	if !f.Translatable() {
		return fieldRecord{}, fmt.Errorf("%s: field %s is not translatable", t.Target(), f)
	}
	if t.Type == "model_terms" && !orm.IsMarkup(f.Translate) {
		return fieldRecord{}, fmt.Errorf("%s: field %s does not translate terms", t.Target(), f)
	}
	if id, err := strconv.ParseInt(t.ResID, 10, 64); err == nil {
		return fieldRecord{field: f, id: orm.ID(id)}, nil
	}
	module, name, ok := strings.Cut(t.ResID, ".")
	if !ok {
		module, name = t.Module, t.ResID
	}
	x, err := b.im.Store.Resolve(ctx, module, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fieldRecord{}, fmt.Errorf("%s: %w", t.Target(), err)
		}
		return fieldRecord{}, err
	}
	if x.Model != model {
		return fieldRecord{}, fmt.Errorf("%s: %s is a %s record", t.Target(), x, x.Model)
	}
	return fieldRecord{field: f, id: orm.ID(x.ResID)}, nil
}

// apply writes the collected field translations and flushes them.
func (b *batch) apply(ctx context.Context) error {
	env := orm.NewEnvironment(b.im.Registry, orm.NewCache(b.im.log()), orm.Context{"lang": b.lang})
	u := &Updater{Env: env, Store: b.im.Store}
	for _, fr := range b.order {
		if v, ok := b.plain[fr]; ok {
			n, err := u.UpdateFieldTranslations(ctx, fr.field, fr.id, map[string]string{b.lang: v}, b.im.Overwrite)
			if err != nil {
				b.report.fail(err)
			} else {
				b.report.Imported += n
				b.report.Skipped += 1 - n
			}
		}
		if pairs := b.terms[fr]; pairs != nil {
			n, err := u.UpdateTermTranslations(ctx, fr.field, fr.id, map[string]map[string]string{b.lang: pairs}, b.im.Overwrite)
			if err != nil {
				b.report.fail(err)
			} else {
				b.report.Imported += n
				b.report.Skipped += len(pairs) - n
			}
		}
	}
	return u.Flush(ctx, b.im.Store)
}

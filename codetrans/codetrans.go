// Package codetrans translates strings used in module code at runtime.
//
// A lookup names its language and module explicitly:
//
//	tr := codetrans.New(st, addons, log)
//	msg := tr.T(ctx, codetrans.Context{Lang: "fr_FR", Module: "sale"},
//	    "Order %s confirmed", order.Name)
//
// Translations come from the database first, then from the module's
// i18n/<lang>.po files (base language before the full code, so fr_BE falls
// back to fr.po), and finally the source string itself.
package codetrans

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/leonelquinteros/gotext"
	"github.com/sirupsen/logrus"

	"github.com/minios-linux/transkit/addons"
	"github.com/minios-linux/transkit/extract"
	"github.com/minios-linux/transkit/langs"
	"github.com/minios-linux/transkit/orm"
	"github.com/minios-linux/transkit/pofile"
)

// SourceLookup returns stored code translations.
type SourceLookup interface {
	GetSource(ctx context.Context, name string, types []string, lang, source string) (string, error)
}

// Context identifies where a string is translated.
type Context struct {
	Lang   string
	Module string
}

type catalogKey struct {
	module, lang string
}

// Translator resolves code terms. It is safe for concurrent use.
type Translator struct {
	store  SourceLookup
	addons map[string]*addons.Addon
	log    logrus.FieldLogger

	mu       sync.Mutex
	catalogs map[catalogKey][]*gotext.Po
}

// New returns a Translator. store may be nil to use module files only.
func New(store SourceLookup, all map[string]*addons.Addon, log logrus.FieldLogger) *Translator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Translator{store: store, addons: all, log: log, catalogs: map[catalogKey][]*gotext.Po{}}
}

// T translates source and formats it with args. A translation whose
// placeholders do not fit args falls back to the formatted source.
func (t *Translator) T(ctx context.Context, c Context, source string, args ...any) string {
	translated := t.lookup(ctx, c, source)
	if len(args) == 0 {
		return translated
	}
	out := fmt.Sprintf(translated, args...)
	if translated != source && strings.Contains(out, "%!") {
		t.log.WithFields(logrus.Fields{"lang": c.Lang, "msgid": source}).
			Warn("translation does not match its arguments, using source")
		return fmt.Sprintf(source, args...)
	}
	return out
}

func (t *Translator) lookup(ctx context.Context, c Context, source string) string {
	lang := canonical(c.Lang)
	if lang == "" || lang == orm.BaseLang || source == "" {
		return source
	}
	if t.store != nil {
		v, err := t.store.GetSource(ctx, "", []string{"code"}, lang, source)
		if err != nil {
			t.log.WithError(err).WithField("msgid", source).Warn("code translation lookup failed")
		} else if v != source {
			return v
		}
	}
	catalogs := t.catalogsFor(c.Module, lang)
	for i := len(catalogs) - 1; i >= 0; i-- {
		if v := catalogs[i].Get(source); v != "" && v != source {
			return v
		}
	}
	return source
}

// catalogsFor loads the PO files of module for lang once, least specific
// first.
func (t *Translator) catalogsFor(module, lang string) []*gotext.Po {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := catalogKey{module, lang}
	if pos, ok := t.catalogs[key]; ok {
		return pos
	}
	var pos []*gotext.Po
	if a, ok := t.addons[module]; ok {
		for _, path := range a.POPaths(lang) {
			po := gotext.NewPo()
			po.ParseFile(path)
			pos = append(pos, po)
		}
	}
	t.catalogs[key] = pos
	return pos
}

// Reset forgets loaded catalogs, after module files changed on disk.
func (t *Translator) Reset() {
	t.mu.Lock()
	t.catalogs = map[catalogKey][]*gotext.Po{}
	t.mu.Unlock()
}

// Lazy is a string translated when it is rendered rather than when it is
// declared, for labels defined before any language is known.
type Lazy struct {
	Module string
	Source string
	Args   []any
}

// Lt declares a lazily translated string.
func Lt(module, source string, args ...any) Lazy {
	return Lazy{Module: module, Source: source, Args: args}
}

// In renders l in lang.
func (l Lazy) In(ctx context.Context, t *Translator, lang string) string {
	return t.T(ctx, Context{Lang: lang, Module: l.Module}, l.Source, l.Args...)
}

func (l Lazy) String() string {
	if len(l.Args) == 0 {
		return l.Source
	}
	return fmt.Sprintf(l.Source, l.Args...)
}

// WebTerms returns the translations of the terms the web client uses,
// those marked with the openerp-web comment in the PO files of modules.
// Later files override earlier ones.
func (t *Translator) WebTerms(modules []string, lang string) (map[string]string, error) {
	lang = canonical(lang)
	out := map[string]string{}
	for _, m := range modules {
		a, ok := t.addons[m]
		if !ok {
			continue
		}
		for _, path := range a.POPaths(lang) {
			f, err := pofile.ParseFile(path)
			if err != nil {
				return nil, err
			}
			for _, e := range f.Entries {
				if !e.IsTranslated() || !isWeb(e) {
					continue
				}
				out[e.MsgID] = e.MsgStr
			}
		}
	}
	return out, nil
}

func isWeb(e *pofile.Entry) bool {
	for _, c := range e.Comments() {
		if strings.TrimSpace(c) == extract.WebComment {
			return true
		}
	}
	return false
}

// EnvLanguage returns the user's language from LANGUAGE, LC_ALL,
// LC_MESSAGES or LANG, in gettext order, or "" when none is set.
func EnvLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		// LANGUAGE is a colon separated list.
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		if idx := strings.IndexByte(val, '.'); idx >= 0 {
			val = val[:idx]
		}
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return canonical(val)
	}
	return ""
}

// canonical normalises a language code, keeping unparsable codes as they
// are so lookups still fall through to the source.
func canonical(code string) string {
	if c, err := langs.Canonical(code); err == nil {
		return c
	}
	return code
}

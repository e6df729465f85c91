// Package extract collects the translatable terms of installed modules:
// translated fields of data records, selection labels, constraint messages
// and literals marked for translation in module sources.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/minios-linux/transkit/markup"
	"github.com/minios-linux/transkit/orm"
	"github.com/minios-linux/transkit/pofile"
)

// RecordSource lists records by external identifier and reads their values.
type RecordSource interface {
	ExternalIDs(ctx context.Context, modules []string) ([]orm.ExternalID, error)
	ReadField(ctx context.Context, f *orm.Field, id orm.ID) (any, error)
}

// SourceLookup translates terms that are not bound to a record field.
type SourceLookup interface {
	GetSource(ctx context.Context, name string, types []string, lang, source string) (string, error)
}

// Generator produces the term list of a set of modules.
type Generator struct {
	Registry *orm.Registry
	Records  RecordSource
	// Sources fills translations of non-record terms. Optional.
	Sources SourceLookup
	// Roots maps a module to its source directory. Modules without a root
	// contribute no code terms.
	Roots map[string]string
	// GoKeywords overrides DefaultGoKeywords.
	GoKeywords []string
	Log        logrus.FieldLogger
}

func (g *Generator) goKeywords() []GoKeyword {
	specs := g.GoKeywords
	if len(specs) == 0 {
		specs = DefaultGoKeywords
	}
	out := make([]GoKeyword, len(specs))
	for i, s := range specs {
		out[i] = ParseGoKeyword(s)
	}
	return out
}

func (g *Generator) log() logrus.FieldLogger {
	if g.Log == nil {
		return logrus.StandardLogger()
	}
	return g.Log
}

// nonWord matches everything but letters, digits and underscores.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// meaningful reports whether a term is worth translating: once markup and
// punctuation are gone at least two characters must remain.
func meaningful(source string) bool {
	text := nonWord.ReplaceAllString(markup.TextContent(strings.TrimSpace(source)), "")
	return utf8.RuneCountInString(text) > 1
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

type termKey struct {
	module, typ, name, resID, source, comments string
}

// Generate returns the terms of modules, sorted and deduplicated. When lang
// is not empty each term carries its current translation into lang.
func (g *Generator) Generate(ctx context.Context, modules []string, lang string) ([]pofile.Term, error) {
	selected := map[string]bool{}
	for _, m := range modules {
		selected[m] = true
	}
	seen := map[termKey]bool{}
	var terms []pofile.Term
	push := func(module, typ, name, resID, source string, comments []string) {
		if !meaningful(source) {
			return
		}
		k := termKey{module, typ, name, resID, source, strings.Join(comments, "\n")}
		if seen[k] {
			return
		}
		seen[k] = true
		terms = append(terms, pofile.Term{
			Module: module, Type: typ, Name: name, ResID: resID,
			Source: source, Comments: append([]string(nil), comments...),
		})
	}

	translated, err := g.recordTerms(ctx, modules, lang, push)
	if err != nil {
		return nil, err
	}
	g.schemaTerms(selected, push)

	roots := make([]string, 0, len(g.Roots))
	for m := range g.Roots {
		if selected[m] {
			roots = append(roots, m)
		}
	}
	sort.Strings(roots)
	for _, m := range roots {
		err := g.sourceTerms(m, g.Roots[m], push, func(path string, err error) {
			g.log().WithError(err).WithField("path", path).Warn("skipping source file")
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", m, err)
		}
	}

	sort.SliceStable(terms, func(i, j int) bool {
		a, b := terms[i], terms[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		if a.ResID != b.ResID {
			return resIDLess(a.ResID, b.ResID)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return strings.Join(a.Comments, "\n") < strings.Join(b.Comments, "\n")
	})

	if lang == "" {
		return terms, nil
	}
	for i := range terms {
		t := &terms[i]
		if v, ok := translated[recordTermKey{t.Type, t.Name, t.ResID, t.Source}]; ok {
			t.Value = v
			continue
		}
		if g.Sources == nil || t.Type == "model" || t.Type == "model_terms" {
			continue
		}
		v, err := g.Sources.GetSource(ctx, t.Name, []string{t.Type}, lang, t.Source)
		if err != nil {
			return nil, err
		}
		if v != t.Source {
			t.Value = v
		}
	}
	return terms, nil
}

// resIDLess orders record references: numeric ids (lines, 0) first by
// value, then external ids by name.
func resIDLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

package markup

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// TranslationDictionary maps each term of a source value to its translation
// per language.
type TranslationDictionary map[string]map[string]string

// BuildDictionary pairs the terms of source with the terms of each translated
// value. Values whose term count differs from the source are ignored.
func BuildDictionary(translate TranslateFunc, source string, translations map[string]string) TranslationDictionary {
	dict := TranslationDictionary{}
	srcTerms := Terms(translate, source)
	if len(srcTerms) == 0 {
		return dict
	}
	for _, term := range srcTerms {
		if dict[term] == nil {
			dict[term] = map[string]string{}
		}
	}
	for lang, value := range translations {
		langTerms := Terms(translate, value)
		if len(langTerms) != len(srcTerms) {
			continue
		}
		for i, term := range srcTerms {
			if _, seen := dict[term][lang]; !seen {
				dict[term][lang] = langTerms[i]
			}
		}
	}
	return dict
}

// Lookup returns a Lookup translating terms into lang.
func (d TranslationDictionary) Lookup(lang string) Lookup {
	return func(term string) (string, bool) {
		v, ok := d[term][lang]
		return v, ok && v != ""
	}
}

// SyncTranslations carries the translations of oldSource over to newSource.
//
// Terms that did not change keep their translation. Remaining terms are
// aligned by their text content, first with a sequence matcher over the
// unmatched terms of both versions, then by identical text in document order,
// which catches reordered terms. A translation containing markup is never
// attached to a plain-text term. New terms without a counterpart stay
// untranslated.
//
// translations maps a language to the translated value of oldSource; the
// result maps the same languages to translated values of newSource.
func SyncTranslations(translate TranslateFunc, oldSource, newSource string, translations map[string]string) map[string]string {
	out := make(map[string]string, len(translations))
	if oldSource == newSource {
		for lang, v := range translations {
			out[lang] = v
		}
		return out
	}

	dict := BuildDictionary(translate, oldSource, translations)
	newTerms := Terms(translate, newSource)
	mapping := alignTerms(Terms(translate, oldSource), newTerms)

	for lang := range translations {
		lookup := func(term string) (string, bool) {
			old, ok := mapping[term]
			if !ok {
				return "", false
			}
			v, ok := dict[old][lang]
			return v, ok && v != ""
		}
		value, err := translate(lookup, newSource)
		if err != nil {
			continue
		}
		out[lang] = value
	}
	return out
}

// alignTerms maps each new term to the old term whose translation it inherits.
func alignTerms(oldTerms, newTerms []string) map[string]string {
	mapping := map[string]string{}
	oldSet := map[string]bool{}
	for _, t := range oldTerms {
		oldSet[t] = true
	}

	var newLeft []string
	seenNew := map[string]bool{}
	for _, t := range newTerms {
		if oldSet[t] {
			mapping[t] = t
			continue
		}
		if !seenNew[t] {
			seenNew[t] = true
			newLeft = append(newLeft, t)
		}
	}
	used := map[string]bool{}
	for _, t := range newTerms {
		used[t] = true
	}
	var oldLeft []string
	seenOld := map[string]bool{}
	for _, t := range oldTerms {
		if !used[t] && !seenOld[t] {
			seenOld[t] = true
			oldLeft = append(oldLeft, t)
		}
	}
	if len(newLeft) == 0 || len(oldLeft) == 0 {
		return mapping
	}

	oldText := make([]string, len(oldLeft))
	for i, t := range oldLeft {
		oldText[i] = normalizeText(t)
	}
	newText := make([]string, len(newLeft))
	for i, t := range newLeft {
		newText[i] = normalizeText(t)
	}

	taken := map[int]bool{}
	pair := func(oi, ni int) bool {
		if taken[oi] || !compatible(oldLeft[oi], newLeft[ni]) {
			return false
		}
		if _, done := mapping[newLeft[ni]]; done {
			return false
		}
		taken[oi] = true
		mapping[newLeft[ni]] = oldLeft[oi]
		return true
	}

	m := difflib.NewMatcher(oldText, newText)
	for _, op := range m.GetOpCodes() {
		if op.Tag != 'e' {
			continue
		}
		for k := 0; k < op.I2-op.I1; k++ {
			pair(op.I1+k, op.J1+k)
		}
	}
	for ni := range newLeft {
		if _, done := mapping[newLeft[ni]]; done {
			continue
		}
		for oi := range oldLeft {
			if oldText[oi] == newText[ni] && pair(oi, ni) {
				break
			}
		}
	}
	return mapping
}

// compatible reports whether the translation of an old term may move onto
// a new term: markup may only land on markup.
func compatible(oldTerm, newTerm string) bool {
	return !isMarkup(oldTerm) || isMarkup(newTerm)
}

func isMarkup(term string) bool {
	return strings.Contains(term, "<")
}

func normalizeText(term string) string {
	return strings.Join(strings.Fields(TextContent(term)), " ")
}

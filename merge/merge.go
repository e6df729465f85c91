// Package merge updates module translation catalogs against their template,
// the way msgmerge does.
package merge

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sirupsen/logrus"

	"github.com/minios-linux/transkit/addons"
	"github.com/minios-linux/transkit/lockfile"
	"github.com/minios-linux/transkit/pofile"
)

// FuzzyThreshold is the similarity ratio above which a vanished msgid
// lends its translation to a new one, flagged fuzzy.
const FuzzyThreshold = 0.8

// Stats counts what a merge did.
type Stats struct {
	Kept     int
	Fuzzy    int
	Added    int
	Obsolete int
}

// Merge updates a PO file with the entries of a POT template.
//   - Entries still in the template keep their translation and take the
//     template's comments, references and format flags.
//   - New entries reuse the translation of a close vanished msgid, marked
//     fuzzy, or start untranslated.
//   - Obsolete entries of the PO file come back when the template has them
//     again.
//   - Entries gone from the template become obsolete.
func Merge(poFile, potFile *pofile.File) (*pofile.File, Stats) {
	var st Stats
	result := pofile.NewFile()

	result.Header = poFile.Header
	if potFile.Header != nil {
		if d := potFile.HeaderField("POT-Creation-Date"); d != "" {
			result.SetHeaderField("POT-Creation-Date", d)
		}
	}

	live := map[string]*pofile.Entry{}
	obsolete := map[string]*pofile.Entry{}
	for _, e := range poFile.Entries {
		if e.MsgID == "" {
			continue
		}
		if e.Obsolete {
			obsolete[e.MsgID] = e
		} else {
			live[e.MsgID] = e
		}
	}
	inTemplate := map[string]bool{}
	for _, e := range potFile.Entries {
		inTemplate[e.MsgID] = true
	}

	// Translated entries that vanished from the template, candidates for
	// fuzzy matching.
	var vanished []*pofile.Entry
	for _, e := range poFile.Entries {
		if !e.Obsolete && e.MsgID != "" && !inTemplate[e.MsgID] && e.MsgStr != "" {
			vanished = append(vanished, e)
		}
	}

	matched := map[string]bool{}
	for _, potEntry := range potFile.Entries {
		if potEntry.MsgID == "" || potEntry.Obsolete {
			continue
		}
		existing, ok := live[potEntry.MsgID]
		if !ok {
			existing, ok = obsolete[potEntry.MsgID]
		}
		if ok {
			result.Entries = append(result.Entries, &pofile.Entry{
				TranslatorComments: existing.TranslatorComments,
				ExtractedComments:  potEntry.ExtractedComments,
				References:         potEntry.References,
				Flags:              mergeFlags(existing.Flags, potEntry.Flags),
				MsgID:              potEntry.MsgID,
				MsgStr:             existing.MsgStr,
			})
			matched[potEntry.MsgID] = true
			st.Kept++
			continue
		}

		entry := &pofile.Entry{
			ExtractedComments: potEntry.ExtractedComments,
			References:        potEntry.References,
			Flags:             mergeFlags(nil, potEntry.Flags),
			MsgID:             potEntry.MsgID,
		}
		if near := closest(potEntry.MsgID, vanished); near != nil {
			entry.MsgStr = near.MsgStr
			entry.PreviousMsgID = near.MsgID
			entry.SetFuzzy(true)
			st.Fuzzy++
		} else {
			st.Added++
		}
		result.Entries = append(result.Entries, entry)
	}

	for _, e := range poFile.Entries {
		if e.MsgID == "" || matched[e.MsgID] {
			continue
		}
		if !e.Obsolete {
			st.Obsolete++
		}
		old := *e
		old.Obsolete = true
		old.References = nil
		old.PreviousMsgID = ""
		result.Entries = append(result.Entries, &old)
	}
	return result, st
}

// closest returns the candidate whose msgid is most similar to msgid, or
// nil when none reaches FuzzyThreshold.
func closest(msgid string, candidates []*pofile.Entry) *pofile.Entry {
	var best *pofile.Entry
	bestRatio := FuzzyThreshold
	a := strings.Split(msgid, "")
	for _, c := range candidates {
		m := difflib.NewMatcher(a, strings.Split(c.MsgID, ""))
		if m.QuickRatio() < bestRatio {
			continue
		}
		if r := m.Ratio(); r >= bestRatio {
			best, bestRatio = c, r
		}
	}
	return best
}

// mergeFlags combines flags from PO and POT: fuzzy from the PO file first,
// then the template's format flags, sorted.
func mergeFlags(poFlags, potFlags []string) []string {
	var result []string
	for _, f := range poFlags {
		if f == "fuzzy" {
			result = append(result, "fuzzy")
			break
		}
	}
	rest := map[string]bool{}
	for _, f := range potFlags {
		if f != "fuzzy" {
			rest[f] = true
		}
	}
	others := make([]string, 0, len(rest))
	for f := range rest {
		others = append(others, f)
	}
	sort.Strings(others)
	return append(result, others...)
}

// Result reports the merge of one catalog. Unchanged is set when neither
// the catalog nor the template changed since the last merge.
type Result struct {
	Path      string
	Unchanged bool
	Stats
}

// Addon merges the PO files of a for langs, or every shipped language when
// langs is empty, against its template and rewrites them in place. The
// checksums of each merge are kept in the i18n directory lock file.
func Addon(a *addons.Addon, langs []string, log logrus.FieldLogger) ([]Result, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	pot, err := pofile.ParseFile(a.POTPath())
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", a.Name, err)
	}
	potSum, err := lockfile.HashFile(a.POTPath())
	if err != nil {
		return nil, err
	}
	lock, err := lockfile.Load(a.I18nDir())
	if err != nil {
		return nil, err
	}
	if len(langs) == 0 {
		langs = a.Languages()
	}
	var results []Result
	for _, lang := range langs {
		path := filepath.Join(a.I18nDir(), lang+".po")
		poSum, err := lockfile.HashFile(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("catalog skipped")
			continue
		}
		if lock.Unchanged(lang, map[string]string{lockfile.TemplateKey: potSum, lockfile.CatalogKey: poSum}) {
			log.WithFields(logrus.Fields{"module": a.Name, "lang": lang}).Debug("catalog up to date")
			results = append(results, Result{Path: path, Unchanged: true})
			continue
		}
		po, err := pofile.ParseFile(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("catalog skipped")
			continue
		}
		merged, st := Merge(po, pot)
		if err := merged.WriteFile(path); err != nil {
			return results, err
		}
		if poSum, err = lockfile.HashFile(path); err != nil {
			return results, err
		}
		lock.Update(lang, map[string]string{lockfile.TemplateKey: potSum, lockfile.CatalogKey: poSum})
		log.WithFields(logrus.Fields{
			"module": a.Name, "lang": lang, "kept": st.Kept, "fuzzy": st.Fuzzy,
			"added": st.Added, "obsolete": st.Obsolete,
		}).Info("catalog merged")
		results = append(results, Result{Path: path, Stats: st})
	}
	lock.Clean(a.Languages())
	if err := lock.Save(); err != nil {
		return results, err
	}
	return results, nil
}

// Package transfer exports module terms to PO, POT, CSV and tar.gz
// catalogs and imports translation files back into the database.
package transfer

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/minios-linux/transkit/csvfile"
	"github.com/minios-linux/transkit/pofile"
)

// Format is a catalog file format.
type Format string

const (
	FormatPO  Format = "po"
	FormatPOT Format = "pot"
	FormatCSV Format = "csv"
	FormatTGZ Format = "tgz"
)

// FormatFromPath derives the format from a file extension.
func FormatFromPath(p string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".po":
		return FormatPO, nil
	case ".pot":
		return FormatPOT, nil
	case ".csv":
		return FormatCSV, nil
	case ".tgz":
		return FormatTGZ, nil
	case ".gz":
		if strings.HasSuffix(strings.ToLower(p), ".tar.gz") {
			return FormatTGZ, nil
		}
	}
	return "", fmt.Errorf("unsupported file format %q", filepath.Ext(p))
}

// TermSource produces the terms of modules, translated into lang when lang
// is not empty.
type TermSource interface {
	Generate(ctx context.Context, modules []string, lang string) ([]pofile.Term, error)
}

// Exporter writes catalogs.
type Exporter struct {
	Terms   TermSource
	Project string
	Version string
	// Now stamps PO headers and archive entries; defaults to time.Now.
	Now func() time.Time
}

func (e *Exporter) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Export writes the terms of modules to w. lang is ignored for POT output;
// an empty lang exports templates.
func (e *Exporter) Export(ctx context.Context, w io.Writer, format Format, lang string, modules []string) error {
	if len(modules) == 0 {
		return fmt.Errorf("no module to export")
	}
	switch format {
	case FormatPOT:
		lang = ""
		fallthrough
	case FormatPO:
		terms, err := e.Terms.Generate(ctx, modules, lang)
		if err != nil {
			return err
		}
		return e.writePO(w, modules, terms, lang)
	case FormatCSV:
		terms, err := e.Terms.Generate(ctx, modules, lang)
		if err != nil {
			return err
		}
		cw := csvfile.NewWriter(w)
		for _, t := range terms {
			if lang == "" {
				t.Value = ""
			}
			if err := cw.Write(t); err != nil {
				return err
			}
		}
		return cw.Flush()
	case FormatTGZ:
		return e.ExportArchive(ctx, w, []string{lang}, modules)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func (e *Exporter) writePO(w io.Writer, modules []string, terms []pofile.Term, lang string) error {
	pw := pofile.NewWriter(w, e.Project, e.Version)
	pw.Now = e.now
	sorted := append([]string(nil), modules...)
	sort.Strings(sorted)
	if err := pw.WriteHeader(sorted); err != nil {
		return err
	}
	for _, g := range GroupTerms(terms, lang != "") {
		if err := pw.Write(g); err != nil {
			return fmt.Errorf("writing %q: %w", g.Source, err)
		}
	}
	return pw.Flush()
}

// ExportArchive writes a gzipped tarball holding, for every module and
// language, <module>/i18n/<lang>.po, or <module>/i18n/<module>.pot for the
// empty language.
func (e *Exporter) ExportArchive(ctx context.Context, w io.Writer, langs []string, modules []string) error {
	if len(modules) == 0 {
		return fmt.Errorf("no module to export")
	}
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	sorted := append([]string(nil), modules...)
	sort.Strings(sorted)
	for _, lang := range langs {
		for _, m := range sorted {
			terms, err := e.Terms.Generate(ctx, []string{m}, lang)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := e.writePO(&buf, []string{m}, terms, lang); err != nil {
				return err
			}
			name := m + ".pot"
			if lang != "" {
				name = lang + ".po"
			}
			hdr := &tar.Header{
				Name:    path.Join(m, "i18n", name),
				Mode:    0o644,
				Size:    int64(buf.Len()),
				ModTime: e.now(),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if _, err := tw.Write(buf.Bytes()); err != nil {
				return err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// GroupTerms merges terms sharing a source into PO entries, sorted by
// source. Modules, targets and comments are unioned and sorted; code targets
// lose their line number. The translation is the first non-empty value that
// differs from the source, or empty when translated is false.
func GroupTerms(terms []pofile.Term, translated bool) []pofile.Group {
	type acc struct {
		modules  map[string]bool
		targets  map[pofile.Target]bool
		comments map[string]bool
		value    string
	}
	groups := map[string]*acc{}
	for _, t := range terms {
		g := groups[t.Source]
		if g == nil {
			g = &acc{modules: map[string]bool{}, targets: map[pofile.Target]bool{}, comments: map[string]bool{}}
			groups[t.Source] = g
		}
		if t.Module != "" {
			g.modules[t.Module] = true
		}
		target := t.Target()
		if target.Type == "code" {
			target.ResID = "0"
		}
		g.targets[target] = true
		for _, c := range t.Comments {
			g.comments[c] = true
		}
		if g.value == "" && t.Value != t.Source {
			g.value = t.Value
		}
	}

	sources := make([]string, 0, len(groups))
	for s := range groups {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	out := make([]pofile.Group, 0, len(sources))
	for _, s := range sources {
		g := groups[s]
		pg := pofile.Group{Source: s, Modules: sortedKeys(g.modules), Comments: sortedKeys(g.comments)}
		for t := range g.targets {
			pg.Targets = append(pg.Targets, t)
		}
		sort.Slice(pg.Targets, func(i, j int) bool { return pg.Targets[i].String() < pg.Targets[j].String() })
		if translated {
			pg.Value = g.value
		}
		out = append(out, pg)
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

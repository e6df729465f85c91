package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minios-linux/transkit/addons"
	"github.com/minios-linux/transkit/codetrans"
	"github.com/minios-linux/transkit/langs"
	"github.com/minios-linux/transkit/merge"
	"github.com/minios-linux/transkit/orm"
	"github.com/minios-linux/transkit/transfer"
)

// templateLang is the --languages value selecting the template.
const templateLang = "pot"

// ---------------------------------------------------------------------------
// install
// ---------------------------------------------------------------------------

func newInstallCmd(g *globalOptions) *cobra.Command {
	var noTranslations bool
	cmd := &cobra.Command{
		Use:   "install MODULE...",
		Short: "Install addons and their data records",
		Long: `Install addons from the addons path together with their dependencies.

Models and data records are written to the database. Reinstalling a module
updates its records and carries existing translations over to changed
values. The PO files of every active language are then loaded for the
installed modules unless --no-translations is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), g, args, !noTranslations)
		},
	}
	cmd.Flags().BoolVar(&noTranslations, "no-translations", false, "Do not load module PO files")
	return cmd
}

func runInstall(ctx context.Context, g *globalOptions, names []string, loadTranslations bool) error {
	a, err := openApp(ctx, g, names...)
	if err != nil {
		return err
	}
	defer a.Close()

	var known []string
	for _, n := range names {
		if _, ok := a.addons[n]; ok {
			known = append(known, n)
		}
	}
	if len(known) == 0 {
		return usageErrorf("no module to install")
	}
	order, err := addons.Order(a.addons, known)
	if err != nil {
		return err
	}
	in := addons.NewInstaller(a.store, a.registry, a.log)
	if err := in.Install(ctx, order); err != nil {
		return err
	}
	for _, ad := range order {
		logSuccess("Installed %s %s", ad.Name, ad.Version)
	}
	if !loadTranslations {
		return nil
	}

	active, err := a.store.Languages(ctx, true)
	if err != nil {
		return err
	}
	for _, l := range active {
		if l.Code == orm.BaseLang {
			continue
		}
		if err := a.loadModuleTerms(ctx, order, l.Code, false); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// import
// ---------------------------------------------------------------------------

func newImportCmd(g *globalOptions) *cobra.Command {
	var (
		language    string
		overwrite   bool
		createEmpty bool
		module      string
	)
	cmd := &cobra.Command{
		Use:   "import --language LANG FILE...",
		Short: "Import .po or .csv translation files",
		Long: `Import translation files into the database.

Files must have a .po or .csv extension; other files are skipped with a
warning. A .po file inside a module i18n directory is checked against the
module template <module>.pot when it exists. Entries that cannot be
resolved are reported and the import carries on.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := importableFiles(args)
			if len(files) == 0 {
				return usageErrorf("no .po or .csv file to import")
			}
			lang, err := langs.Canonical(language)
			if err != nil {
				return usageErrorf("--language: %v", err)
			}
			if lang == orm.BaseLang {
				return usageErrorf("cannot import into the source language %s", orm.BaseLang)
			}

			a, err := openApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			im := a.importer(overwrite)
			im.CreateEmpty = createEmpty
			im.Module = module
			failed := 0
			for _, f := range files {
				report, err := im.ImportFile(cmd.Context(), f, lang)
				if err != nil {
					logError("%v", err)
					failed++
					continue
				}
				reportImport(f, report)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be imported", failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language of the imported files (e.g. fr_FR)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing translations")
	cmd.Flags().BoolVar(&createEmpty, "create-empty", false, "Store untranslated code terms (field translations are never emptied)")
	cmd.Flags().StringVar(&module, "module", "", "Module owning every imported entry")
	cmd.MarkFlagRequired("language")
	return cmd
}

// importableFiles keeps the .po and .csv paths and warns about the rest.
func importableFiles(paths []string) []string {
	var out []string
	for _, p := range paths {
		switch strings.ToLower(filepath.Ext(p)) {
		case ".po", ".csv":
			out = append(out, p)
		default:
			logWarning("Skipping %s: only .po and .csv files can be imported", p)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// export
// ---------------------------------------------------------------------------

func newExportCmd(g *globalOptions) *cobra.Command {
	var (
		languages []string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "export [--languages pot|LANG,...] [--output PATH] MODULE...",
		Short: "Export module catalogs",
		Long: `Export the terms of installed modules.

--languages defaults to pot, the template. The output format follows the
--output extension: .po, .pot, .csv or .tgz. A .tgz archive holds one
catalog per module and language. "-" (the default) streams a single
catalog to standard output. Unknown modules and languages are skipped with
a warning.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), g, cmd.OutOrStdout(), splitList(languages), output, args)
		},
	}
	cmd.Flags().StringSliceVar(&languages, "languages", []string{templateLang}, "Languages to export, or pot for the template")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file (.po, .pot, .csv, .tgz) or - for stdout")
	return cmd
}

func runExport(ctx context.Context, g *globalOptions, stdout io.Writer, languages []string, output string, modules []string) error {
	format := transfer.FormatPO
	if output != "-" {
		var err error
		if format, err = transfer.FormatFromPath(output); err != nil {
			return usageErrorf("--output: %v", err)
		}
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	installed := a.installedNames()
	var selected []string
	for _, m := range modules {
		if !installed[m] {
			logWarning("Module %s is not installed, skipped", m)
			continue
		}
		selected = append(selected, m)
	}
	if len(selected) == 0 {
		return usageErrorf("no installed module to export")
	}

	active, err := a.store.Languages(ctx, true)
	if err != nil {
		return err
	}
	var codes []string
	for _, l := range active {
		codes = append(codes, l.Code)
	}
	selectedLangs, unknown := selectLanguages(languages, codes)
	for _, l := range unknown {
		logWarning("Language %s is not active, skipped", l)
	}
	if len(selectedLangs) == 0 {
		return usageErrorf("no language to export")
	}

	if format == transfer.FormatPOT {
		selectedLangs = []string{""}
	}
	if format == transfer.FormatPO && selectedLangs[0] == "" {
		format = transfer.FormatPOT
	}
	if format != transfer.FormatTGZ && len(selectedLangs) > 1 {
		return usageErrorf("several languages can only be exported to a .tgz archive")
	}

	var w io.Writer = stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	ex := a.exporter()
	if format == transfer.FormatTGZ {
		err = ex.ExportArchive(ctx, w, selectedLangs, selected)
	} else {
		err = ex.Export(ctx, w, format, selectedLangs[0], selected)
	}
	if err != nil {
		return err
	}
	if output != "-" {
		logSuccess("Exported %s to %s", strings.Join(selected, ", "), output)
	}
	return nil
}

// selectLanguages canonicalises the requested languages and keeps those in
// available; "pot" selects the template, returned as "". Duplicates are
// dropped and request order is kept.
func selectLanguages(requested, available []string) (selected, unknown []string) {
	avail := map[string]bool{}
	for _, l := range available {
		avail[l] = true
	}
	seen := map[string]bool{}
	for _, r := range requested {
		r = strings.TrimSpace(r)
		code := ""
		if r != templateLang {
			c, err := langs.Canonical(r)
			if err != nil || !avail[c] || c == orm.BaseLang {
				unknown = append(unknown, r)
				continue
			}
			code = c
		}
		if !seen[code] {
			seen[code] = true
			selected = append(selected, code)
		}
	}
	return selected, unknown
}

// ---------------------------------------------------------------------------
// loadlang
// ---------------------------------------------------------------------------

func newLoadLangCmd(g *globalOptions) *cobra.Command {
	var (
		languages []string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "loadlang [--languages LANG,...]",
		Short: "Activate languages and load module translations",
		Long: `Activate languages and import the i18n/<lang>.po files of every installed
module. A regional language also loads the file of its base language first,
so fr_BE reads fr.po then fr_BE.po. Without --languages the languages of the
configuration file are loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			requested := splitList(languages)
			if len(requested) == 0 {
				requested = a.cfg.Languages
			}
			var codes []string
			for _, r := range requested {
				c, err := langs.Canonical(r)
				if err != nil {
					logWarning("Skipping language %s: %v", r, err)
					continue
				}
				codes = append(codes, c)
			}
			if len(codes) == 0 {
				return usageErrorf("no language to load")
			}

			for _, code := range codes {
				if err := a.store.ActivateLanguage(ctx, code, langs.DisplayName(code)); err != nil {
					return err
				}
				logInfo("Language %s (%s) active", code, langs.DisplayName(code))
				if code == orm.BaseLang {
					continue
				}
				if err := a.loadModuleTerms(ctx, a.installed, code, overwrite); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "Languages to load (e.g. fr_FR,de_DE)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing translations")
	return cmd
}

// loadModuleTerms imports the PO files of modules for lang. The regional
// file overrides its base language file.
func (a *app) loadModuleTerms(ctx context.Context, modules []*addons.Addon, lang string, overwrite bool) error {
	for _, ad := range modules {
		paths := ad.POPaths(lang)
		if len(paths) == 0 {
			a.log.WithFields(logrus.Fields{"module": ad.Name, "lang": lang}).Debug("no translation file")
			continue
		}
		for i, p := range paths {
			im := a.importer(overwrite || i > 0)
			im.Module = ad.Name
			report, err := im.ImportFile(ctx, p, lang)
			if err != nil {
				return err
			}
			reportImport(p, report)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// lookup
// ---------------------------------------------------------------------------

func newLookupCmd(g *globalOptions) *cobra.Command {
	var (
		language string
		module   string
	)
	cmd := &cobra.Command{
		Use:   "lookup [--language LANG] [--module MODULE] TEXT...",
		Short: "Translate code strings the way modules do at runtime",
		Long: `Print the translation of each TEXT, one per line.

Stored code translations are tried first, then the i18n/<lang>.po files of
--module, regional file before its base language. Untranslated text is
printed unchanged. --language defaults to the language of the environment
(LANGUAGE, LC_ALL, LC_MESSAGES, LANG).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if language == "" {
				language = codetrans.EnvLanguage()
			}
			if language == "" {
				return usageErrorf("no language given and none set in the environment")
			}
			lang, err := langs.Canonical(language)
			if err != nil {
				return usageErrorf("--language: %v", err)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()
			if module != "" {
				if _, ok := a.addons[module]; !ok {
					logWarning("Module %s is not on the addons path, only stored terms are used", module)
				}
			}

			tr := codetrans.New(a.store, a.addons, a.log)
			c := codetrans.Context{Lang: lang, Module: module}
			out := cmd.OutOrStdout()
			for _, text := range args {
				fmt.Fprintln(out, tr.T(ctx, c, text))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Target language (default from the environment)")
	cmd.Flags().StringVar(&module, "module", "", "Module whose PO files are searched")
	return cmd
}

// ---------------------------------------------------------------------------
// merge
// ---------------------------------------------------------------------------

func newMergeCmd(g *globalOptions) *cobra.Command {
	var (
		languages  []string
		regenerate bool
	)
	cmd := &cobra.Command{
		Use:   "merge MODULE...",
		Short: "Update module PO files against their template",
		Long: `Merge the i18n/<lang>.po files of modules with i18n/<module>.pot.

Translations of entries still in the template are kept, entries close to a
vanished one are pre-filled and marked fuzzy, and vanished entries become
obsolete. Catalogs unchanged since their last merge, against an unchanged
template, are left alone. --regenerate exports a fresh template from the
database first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()

			var selected []*addons.Addon
			installed := a.installedNames()
			for _, name := range args {
				ad, ok := a.addons[name]
				if !ok {
					logWarning("Module %s is not on the addons path, skipped", name)
					continue
				}
				if regenerate && !installed[name] {
					logWarning("Module %s is not installed, cannot regenerate its template", name)
					continue
				}
				selected = append(selected, ad)
			}
			if len(selected) == 0 {
				return usageErrorf("no module to merge")
			}

			for _, ad := range selected {
				if regenerate {
					if err := a.writeTemplate(ctx, ad); err != nil {
						return err
					}
				}
				results, err := merge.Addon(ad, splitList(languages), a.log)
				if err != nil {
					return err
				}
				for _, r := range results {
					if r.Unchanged {
						logInfo("%s: up to date", r.Path)
						continue
					}
					logSuccess("%s: %d kept, %d fuzzy, %d new, %d obsolete",
						r.Path, r.Kept, r.Fuzzy, r.Added, r.Obsolete)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "Languages to merge (default: every PO file)")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "Export the module template before merging")
	return cmd
}

func (a *app) writeTemplate(ctx context.Context, ad *addons.Addon) error {
	if err := os.MkdirAll(ad.I18nDir(), 0o755); err != nil {
		return err
	}
	f, err := os.Create(ad.POTPath())
	if err != nil {
		return err
	}
	defer f.Close()
	if err := a.exporter().Export(ctx, f, transfer.FormatPOT, "", []string{ad.Name}); err != nil {
		return fmt.Errorf("%s: %w", ad.POTPath(), err)
	}
	logInfo("Template %s written", ad.POTPath())
	return nil
}

// sortedNames returns the keys of m in order.
func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

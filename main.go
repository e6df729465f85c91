// transkit: translation catalogs for ERP addon modules.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/minios-linux/transkit/addons"
	"github.com/minios-linux/transkit/config"
	"github.com/minios-linux/transkit/extract"
	"github.com/minios-linux/transkit/orm"
	"github.com/minios-linux/transkit/store"
	"github.com/minios-linux/transkit/transfer"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// errUsage marks errors caused by an empty effective selection.
var errUsage = errors.New("usage")

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

type globalOptions struct {
	config     string
	database   string
	addonsPath []string
	logLevel   string
}

func (g *globalOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&g.config, "config", "c", "", "Configuration file (default "+config.FileName+" or $TRANSKIT_CONFIG)")
	fs.StringVarP(&g.database, "database", "d", "", "Database: SQLite file or postgres:// URL")
	fs.StringSliceVar(&g.addonsPath, "addons-path", nil, "Directories holding addons (comma separated)")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "transkit",
		Short: "Translation catalogs for ERP addon modules",
		Long: `transkit: translation catalogs for ERP addon modules.

Extracts translatable terms from addon records, schemas and sources, exports
them as PO, POT, CSV or tar.gz catalogs, and imports translated catalogs back
into the database.

Commands:
  install     Install addons and their data records
  import      Import .po or .csv translation files
  export      Export module catalogs
  loadlang    Activate languages and load module translations
  merge       Update module PO files against their template
  lookup      Translate code strings as modules do at runtime
  status      Show modules, languages and translation coverage`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	g.bind(root.PersistentFlags())

	root.AddCommand(
		newInstallCmd(g),
		newImportCmd(g),
		newExportCmd(g),
		newLoadLangCmd(g),
		newMergeCmd(g),
		newLookupCmd(g),
		newStatusCmd(g),
		newVersionCmd(),
	)

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logError("%v", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "transkit version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Environment shared by the commands
// ---------------------------------------------------------------------------

// app is the opened configuration, database and addon registry.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	store    *store.Store
	addons   map[string]*addons.Addon
	registry *orm.Registry
	// installed lists the installed modules found on the addons path, in
	// dependency order.
	installed []*addons.Addon
}

// openApp loads the configuration, applies flag overrides, opens the
// database and builds the model registry of the installed modules plus
// extra.
func openApp(ctx context.Context, g *globalOptions, extra ...string) (*app, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, err
	}
	if g.database != "" {
		cfg.Database.DSN = g.database
	}
	if len(g.addonsPath) > 0 {
		cfg.AddonsPath = nil
		for _, p := range g.addonsPath {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, err
			}
			cfg.AddonsPath = append(cfg.AddonsPath, abs)
		}
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Database.DSN, store.Options{SourceCacheSize: cfg.Database.SourceCacheSize, Log: log})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: st}
	if err := a.loadAddons(ctx, extra); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) loadAddons(ctx context.Context, extra []string) error {
	all, err := addons.Discover(a.cfg.AddonsPath)
	if err != nil {
		return err
	}
	a.addons = all

	mods, err := a.store.Modules(ctx)
	if err != nil {
		return err
	}
	var names []string
	for _, m := range mods {
		if _, ok := all[m.Name]; !ok {
			logWarning("Installed module %s is not on the addons path, skipped", m.Name)
			continue
		}
		names = append(names, m.Name)
	}
	for _, name := range extra {
		if _, ok := all[name]; !ok {
			logWarning("Module %s is not on the addons path, skipped", name)
			continue
		}
		names = append(names, name)
	}
	order, err := addons.Order(all, names)
	if err != nil {
		return err
	}
	a.installed = order
	a.registry = orm.NewRegistry()
	return addons.BuildRegistry(a.registry, order)
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) generator() *extract.Generator {
	roots := make(map[string]string, len(a.addons))
	for name, ad := range a.addons {
		roots[name] = ad.Dir
	}
	return &extract.Generator{
		Registry: a.registry,
		Records:  a.store,
		Sources:  a.store,
		Roots:    roots,
		Log:      a.log,
	}
}

func (a *app) exporter() *transfer.Exporter {
	return &transfer.Exporter{
		Terms:   a.generator(),
		Project: a.cfg.Export.Project,
		Version: a.cfg.Export.Version,
	}
}

func (a *app) importer(overwrite bool) *transfer.Importer {
	return &transfer.Importer{
		Store:     a.store,
		Registry:  a.registry,
		Log:       a.log,
		Overwrite: overwrite,
	}
}

// installedNames returns the names of the installed modules.
func (a *app) installedNames() map[string]bool {
	out := make(map[string]bool, len(a.installed))
	for _, ad := range a.installed {
		out[ad.Name] = true
	}
	return out
}

// reportImport prints the outcome of one imported file.
func reportImport(path string, r *transfer.ImportReport) {
	for _, err := range multierr.Errors(r.Err) {
		logWarning("%s: %v", path, err)
	}
	msg := fmt.Sprintf("%s: %d imported, %d skipped", path, r.Imported, r.Skipped)
	if r.Failed > 0 {
		logWarning("%s, %d failed", msg, r.Failed)
		return
	}
	logSuccess("%s", msg)
}

// splitList flattens comma separated flag values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/transkit/langs"
)

// ---------------------------------------------------------------------------
// status (read-only: modules, languages, coverage)
// ---------------------------------------------------------------------------

func newStatusCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show modules, languages and translation coverage",
		Long: `Show the configuration in use, the installed modules, the available
addons, the active languages and how many stored code terms each language
translates. Does not modify anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), g, cmd.ErrOrStderr())
		},
	}
	return cmd
}

func runStatus(ctx context.Context, g *globalOptions, w io.Writer) error {
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(w, "\n%sConfiguration%s\n", colorBlue, colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	cfgPath := a.cfg.Path()
	if cfgPath == "" {
		cfgPath = "(none, defaults and environment)"
	}
	fmt.Fprintf(w, "  Config:     %s\n", cfgPath)
	fmt.Fprintf(w, "  Database:   %s\n", a.cfg.Database.DSN)
	fmt.Fprintf(w, "  Addons:     %s\n", strings.Join(a.cfg.AddonsPath, ", "))
	fmt.Fprintln(w)

	mods, err := a.store.Modules(ctx)
	if err != nil {
		return err
	}
	installed := map[string]bool{}
	fmt.Fprintf(w, "%sModules%s\n", colorBlue, colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	if len(mods) == 0 {
		fmt.Fprintln(w, "  none installed")
	}
	for _, m := range mods {
		installed[m.Name] = true
		fmt.Fprintf(w, "  %-24s %s\n", m.Name, m.Version)
	}
	var available []string
	for _, name := range sortedNames(a.addons) {
		if !installed[name] {
			available = append(available, name)
		}
	}
	if len(available) > 0 {
		fmt.Fprintf(w, "  Available:  %s\n", strings.Join(available, ", "))
	}
	fmt.Fprintln(w)

	languages, err := a.store.Languages(ctx, true)
	if err != nil {
		return err
	}
	counts, err := a.store.CountCodeTerms(ctx)
	if err != nil {
		return err
	}
	type coverage struct{ total, translated int }
	byLang := map[string]coverage{}
	for _, c := range counts {
		byLang[c.Lang] = coverage{c.Total, c.Translated}
	}

	fmt.Fprintf(w, "%sLanguages%s\n", colorBlue, colorReset)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	if len(languages) == 0 {
		fmt.Fprintln(w, "  none active, run 'transkit loadlang --languages LANG'")
		fmt.Fprintln(w)
		return nil
	}
	for _, l := range languages {
		c := byLang[l.Code]
		percent := 0
		if c.total > 0 {
			percent = c.translated * 100 / c.total
		}
		name := l.Name
		if name == "" || name == l.Code {
			name = langs.DisplayName(l.Code)
		}
		fmt.Fprintf(w, "  %-8s %-32s %s  %d/%d code terms\n",
			l.Code, name, progressBar(percent, 20), c.translated, c.total)
	}
	fmt.Fprintln(w)
	return nil
}

// progressBar renders percent as a colored bar of width cells followed by
// the percentage.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	color := colorRed
	switch {
	case percent >= 90:
		color = colorGreen
	case percent >= 50:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset +
		fmt.Sprintf(" %3d%%", percent)
}

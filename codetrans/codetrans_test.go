package codetrans

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/minios-linux/transkit/addons"
)

type fakeSources map[string]string

func (f fakeSources) GetSource(_ context.Context, _ string, _ []string, lang, source string) (string, error) {
	if v, ok := f[lang+"|"+source]; ok {
		return v, nil
	}
	return source, nil
}

func loadAddons(t *testing.T) map[string]*addons.Addon {
	t.Helper()
	all, err := addons.Discover([]string{"../addons/testdata/addons"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return all
}

func writeAddon(t *testing.T, name, po string) map[string]*addons.Addon {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, "i18n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, addons.ManifestName), []byte("name: "+name+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "i18n", "fr.po"), []byte(po), 0o644); err != nil {
		t.Fatal(err)
	}
	all, err := addons.Discover([]string{root})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return all
}

func TestLookupOrder(t *testing.T) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	all := loadAddons(t)
	const msg = "Only draft orders can be confirmed."
	const fr = "Seules les commandes brouillon peuvent être confirmées."

	tests := []struct {
		name  string
		store SourceLookup
		c     Context
		want  string
	}{
		{"module file", nil, Context{Lang: "fr_FR", Module: "sale"}, fr},
		{"regional falls back to base file", nil, Context{Lang: "fr-be", Module: "sale"}, fr},
		{"database wins", fakeSources{"fr_FR|" + msg: "Brouillons seulement."}, Context{Lang: "fr_FR", Module: "sale"}, "Brouillons seulement."},
		{"database miss uses file", fakeSources{}, Context{Lang: "fr_FR", Module: "sale"}, fr},
		{"source language", nil, Context{Lang: "en_US", Module: "sale"}, msg},
		{"no language", nil, Context{Module: "sale"}, msg},
		{"other module", nil, Context{Lang: "fr_FR", Module: "base"}, msg},
		{"missing catalog", nil, Context{Lang: "de_DE", Module: "sale"}, msg},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(tt.store, all, log)
			if got := tr.T(ctx, tt.c, msg); got != tt.want {
				t.Fatalf("T = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatting(t *testing.T) {
	ctx := context.Background()
	log, hook := test.NewNullLogger()
	all := writeAddon(t, "stock", `msgid ""
msgstr ""
"Language: fr\n"

#. module: stock
#: code:addons/stock/models/stock.py:0
#, python-format
msgid "Moved %d units of %s"
msgstr "%d unités de %s déplacées"

#. module: stock
#: code:addons/stock/models/stock.py:0
#, python-format
msgid "Picking %s is late"
msgstr "Le transfert est en retard"
`)
	tr := New(nil, all, log)
	c := Context{Lang: "fr_FR", Module: "stock"}

	if got := tr.T(ctx, c, "Moved %d units of %s", 3, "Desk"); got != "3 unités de Desk déplacées" {
		t.Fatalf("T = %q", got)
	}
	if got := tr.T(ctx, c, "Picking %s is late", "WH/OUT/1"); got != "Picking WH/OUT/1 is late" {
		t.Fatalf("mismatched translation should fall back to the source, got %q", got)
	}
	if len(hook.Entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(hook.Entries))
	}

	lazy := Lt("stock", "Moved %d units of %s", 1, "Chair")
	if got := lazy.String(); got != "Moved 1 units of Chair" {
		t.Fatalf("Lazy.String = %q", got)
	}
	if got := lazy.In(ctx, tr, "fr_FR"); got != "1 unités de Chair déplacées" {
		t.Fatalf("Lazy.In = %q", got)
	}
}

func TestCatalogsAreCached(t *testing.T) {
	ctx := context.Background()
	all := writeAddon(t, "stock", "msgid \"\"\nmsgstr \"\"\n\n#: code:x.py:0\nmsgid \"Done\"\nmsgstr \"Fait\"\n")
	tr := New(nil, all, nil)
	c := Context{Lang: "fr_FR", Module: "stock"}
	if got := tr.T(ctx, c, "Done"); got != "Fait" {
		t.Fatalf("T = %q", got)
	}
	po := filepath.Join(all["stock"].I18nDir(), "fr.po")
	if err := os.WriteFile(po, []byte("msgid \"\"\nmsgstr \"\"\n\n#: code:x.py:0\nmsgid \"Done\"\nmsgstr \"Terminé\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := tr.T(ctx, c, "Done"); got != "Fait" {
		t.Fatalf("catalog reloaded without Reset: %q", got)
	}
	tr.Reset()
	if got := tr.T(ctx, c, "Done"); got != "Terminé" {
		t.Fatalf("after Reset = %q", got)
	}
}

func TestWebTerms(t *testing.T) {
	all := writeAddon(t, "web", `msgid ""
msgstr ""

#. module: web
#. openerp-web
#: code:addons/web/static/src/js/app.js:0
msgid "Discard"
msgstr "Abandonner"

#. module: web
#: code:addons/web/models/web.py:0
msgid "Server side"
msgstr "Côté serveur"

#. module: web
#. openerp-web
#: code:addons/web/static/src/js/app.js:0
msgid "Untranslated"
msgstr ""
`)
	got, err := New(nil, all, nil).WebTerms([]string{"web", "missing"}, "fr_FR")
	if err != nil {
		t.Fatalf("WebTerms: %v", err)
	}
	if len(got) != 1 || got["Discard"] != "Abandonner" {
		t.Fatalf("WebTerms = %v", got)
	}
}

func clearLocaleEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LANGUAGE", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "")
}

func TestEnvLanguage(t *testing.T) {
	t.Run("LANGUAGE has highest priority", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "ru_RU.UTF-8:en_US")
		t.Setenv("LC_ALL", "de_DE.UTF-8")
		if got := EnvLanguage(); got != "ru_RU" {
			t.Fatalf("EnvLanguage() = %q, want ru_RU", got)
		}
	})

	t.Run("C and POSIX are skipped", func(t *testing.T) {
		clearLocaleEnv(t)
		t.Setenv("LANGUAGE", "C")
		t.Setenv("LC_ALL", "POSIX")
		t.Setenv("LC_MESSAGES", "fr_FR.UTF-8")
		if got := EnvLanguage(); got != "fr_FR" {
			t.Fatalf("EnvLanguage() = %q, want fr_FR", got)
		}
	})

	t.Run("nothing set", func(t *testing.T) {
		clearLocaleEnv(t)
		if got := EnvLanguage(); got != "" {
			t.Fatalf("EnvLanguage() = %q, want empty", got)
		}
	})
}

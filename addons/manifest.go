// Package addons discovers addon directories, loads their manifest.yaml and
// installs their schema and data records.
//
// An addon is a directory holding a manifest.yaml. Translations live in its
// i18n/ subdirectory: one <lang>.po per language and a <module>.pot template.
package addons

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/transkit/orm"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// Manifest is the top-level manifest.yaml structure.
type Manifest struct {
	// Name defaults to the directory name.
	Name    string   `yaml:"name,omitempty"`
	Version string   `yaml:"version,omitempty"`
	Depends []string `yaml:"depends,omitempty"`
	// Models declares or extends models.
	Models []ModelSpec `yaml:"models,omitempty"`
	// Data lists record files relative to the addon directory.
	Data []string `yaml:"data,omitempty"`
}

// ModelSpec declares the fields and constraints a module adds to a model.
type ModelSpec struct {
	Name           string           `yaml:"name"`
	Fields         []FieldSpec      `yaml:"fields,omitempty"`
	Constraints    []ConstraintSpec `yaml:"constraints,omitempty"`
	SQLConstraints []ConstraintSpec `yaml:"sql_constraints,omitempty"`
}

// FieldSpec declares one field.
type FieldSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
	// Translate is one of plain, xml or html; empty for untranslated fields.
	Translate      string          `yaml:"translate,omitempty"`
	Selection      []SelectionSpec `yaml:"selection,omitempty"`
	DependsContext []string        `yaml:"depends_context,omitempty"`
	// Store defaults to true.
	Store *bool `yaml:"store,omitempty"`
}

// SelectionSpec is one option of a selection field.
type SelectionSpec struct {
	Value string `yaml:"value"`
	Label string `yaml:"label"`
}

// ConstraintSpec is a Python or SQL constraint with its user-facing message.
type ConstraintSpec struct {
	Name       string `yaml:"name"`
	Message    string `yaml:"message"`
	Definition string `yaml:"definition,omitempty"`
}

// DataFile is a record file listed in Manifest.Data.
type DataFile struct {
	Records []RecordSpec `yaml:"records"`
}

// RecordSpec is one data record. Values of translated fields are either a
// string, the en_US source, or a map from language to value.
type RecordSpec struct {
	ID     string         `yaml:"id"`
	Model  string         `yaml:"model"`
	Values map[string]any `yaml:"values"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// ManifestName is the manifest file name.
const ManifestName = "manifest.yaml"

// Addon is a loaded addon directory.
type Addon struct {
	Manifest
	// Dir is the absolute addon directory.
	Dir string
}

// LoadManifest loads and validates the manifest of the addon in dir.
func LoadManifest(dir string) (*Addon, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(abs, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(abs)
	}
	if m.Name != "base" && len(m.Depends) == 0 {
		m.Depends = []string{"base"}
	}

	for i, ms := range m.Models {
		if ms.Name == "" {
			return nil, fmt.Errorf("%s: model #%d has no name", path, i+1)
		}
		for j, fs := range ms.Fields {
			if fs.Name == "" {
				return nil, fmt.Errorf("%s: field #%d of %s has no name", path, j+1, ms.Name)
			}
			if _, err := orm.TranslateByName(fs.Translate); err != nil {
				return nil, fmt.Errorf("%s: field %s.%s: %w", path, ms.Name, fs.Name, err)
			}
		}
	}
	return &Addon{Manifest: m, Dir: abs}, nil
}

// Discover finds the addons below each of paths. When the same addon name
// appears in several paths the first one wins.
func Discover(paths []string) (map[string]*Addon, error) {
	found := map[string]*Addon{}
	for _, root := range paths {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("addons path %s: %w", root, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
				continue
			}
			a, err := LoadManifest(dir)
			if err != nil {
				return nil, err
			}
			if _, dup := found[a.Name]; !dup {
				found[a.Name] = a
			}
		}
	}
	return found, nil
}

// Order returns names and their dependencies, dependencies first. Ties are
// broken by name.
func Order(all map[string]*Addon, names []string) ([]*Addon, error) {
	var out []*Addon
	state := map[string]int{} // 1 visiting, 2 done
	var visit func(name string, from string) error
	visit = func(name, from string) error {
		switch state[name] {
		case 1:
			return fmt.Errorf("dependency cycle through %s", name)
		case 2:
			return nil
		}
		a, ok := all[name]
		if !ok {
			if from != "" {
				return fmt.Errorf("module %s depends on unknown module %s", from, name)
			}
			return fmt.Errorf("unknown module %s", name)
		}
		state[name] = 1
		deps := append([]string(nil), a.Depends...)
		sort.Strings(deps)
		for _, d := range deps {
			if err := visit(d, name); err != nil {
				return err
			}
		}
		state[name] = 2
		out = append(out, a)
		return nil
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for _, n := range sorted {
		if err := visit(n, ""); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

// I18nDir returns the translation directory of the addon.
func (a *Addon) I18nDir() string {
	return filepath.Join(a.Dir, "i18n")
}

// POTPath returns the translation template of the addon.
func (a *Addon) POTPath() string {
	return filepath.Join(a.I18nDir(), a.Name+".pot")
}

// POPaths returns the existing PO files for lang, the base language file
// first: fr.po then fr_BE.po for fr_BE.
func (a *Addon) POPaths(lang string) []string {
	var candidates []string
	if base, _, ok := strings.Cut(lang, "_"); ok {
		candidates = append(candidates, filepath.Join(a.I18nDir(), base+".po"))
	}
	candidates = append(candidates, filepath.Join(a.I18nDir(), lang+".po"))
	var out []string
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Languages lists the languages the addon ships a PO file for.
func (a *Addon) Languages() []string {
	entries, err := os.ReadDir(a.I18nDir())
	if err != nil {
		return nil
	}
	var langs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".po") {
			continue
		}
		langs = append(langs, strings.TrimSuffix(name, ".po"))
	}
	sort.Strings(langs)
	return langs
}

// LoadData reads the record files listed in the manifest.
func (a *Addon) LoadData() ([]RecordSpec, error) {
	var out []RecordSpec
	for _, rel := range a.Data {
		path := filepath.Join(a.Dir, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var df DataFile
		if err := yaml.Unmarshal(data, &df); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		for i, r := range df.Records {
			if r.ID == "" || r.Model == "" {
				return nil, fmt.Errorf("%s: record #%d needs an id and a model", path, i+1)
			}
		}
		out = append(out, df.Records...)
	}
	return out, nil
}

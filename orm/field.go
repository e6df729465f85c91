// Package orm holds the model schema, environments and the record cache the
// translation engine works against.
package orm

import (
	"fmt"
	"sort"

	"github.com/minios-linux/transkit/markup"
)

// BaseLang is the language every translated value falls back to.
const BaseLang = "en_US"

// Translate is the translation behaviour of a field: nil for untranslated
// fields, PlainText or MarkupAware otherwise.
type Translate interface {
	// Terms returns the translatable terms of a source value.
	Terms(value string) []string
	// Apply translates value term by term.
	Apply(lookup markup.Lookup, value string) (string, error)
}

// PlainText translates the whole value as a single term.
type PlainText struct{}

func (PlainText) Terms(value string) []string {
	if value == "" {
		return nil
	}
	return []string{value}
}

func (PlainText) Apply(lookup markup.Lookup, value string) (string, error) {
	if v, ok := lookup(value); ok && v != "" {
		return v, nil
	}
	return value, nil
}

// MarkupAware translates a markup value term by term with Func.
type MarkupAware struct {
	Func markup.TranslateFunc
}

func (m MarkupAware) Terms(value string) []string {
	return markup.Terms(m.Func, value)
}

func (m MarkupAware) Apply(lookup markup.Lookup, value string) (string, error) {
	return m.Func(lookup, value)
}

// IsMarkup reports whether t translates markup terms.
func IsMarkup(t Translate) bool {
	_, ok := t.(MarkupAware)
	return ok
}

// TranslateByName maps the manifest spelling of a translate mode.
func TranslateByName(name string) (Translate, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "plain", "true":
		return PlainText{}, nil
	case "xml":
		return MarkupAware{Func: markup.XMLTranslate}, nil
	case "html":
		return MarkupAware{Func: markup.HTMLTranslate}, nil
	}
	return nil, fmt.Errorf("unknown translate mode %q", name)
}

// SelectionOption is one value of a selection field.
type SelectionOption struct {
	Value string
	Label string
}

// Field describes a model field.
type Field struct {
	Model string
	Name  string
	Type  string
	// Module is the module that declared the field.
	Module    string
	Translate Translate
	// DependsContext lists the context keys the cached value depends on,
	// in cache key order.
	DependsContext []string
	Store          bool
	Selection      []SelectionOption
}

func (f *Field) String() string {
	return f.Model + "." + f.Name
}

// Translatable reports whether the field has a translate behaviour.
func (f *Field) Translatable() bool {
	return f.Translate != nil
}

// Constraint is a model constraint with a user-facing message.
type Constraint struct {
	Name    string
	Module  string
	Message string
	// Definition is the SQL definition of an sql constraint.
	Definition string
}

// Model is the schema of a model as assembled from every module extending it.
type Model struct {
	Name           string
	Module         string
	Fields         map[string]*Field
	order          []string
	Constraints    []Constraint
	SQLConstraints []Constraint
}

// FieldList returns the fields in declaration order.
func (m *Model) FieldList() []*Field {
	out := make([]*Field, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.Fields[name])
	}
	return out
}

// Registry is the set of models known to an environment.
type Registry struct {
	models map[string]*Model
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: map[string]*Model{}}
}

// Define adds a model declaration from module. Declarations of an existing
// model extend it: new fields are appended, redefined fields replace the
// previous definition, constraints accumulate.
func (r *Registry) Define(module, name string, fields []*Field, constraints, sqlConstraints []Constraint) *Model {
	m, ok := r.models[name]
	if !ok {
		m = &Model{Name: name, Module: module, Fields: map[string]*Field{}}
		r.models[name] = m
	}
	for _, f := range fields {
		f.Model = name
		if f.Module == "" {
			f.Module = module
		}
		if _, exists := m.Fields[f.Name]; !exists {
			m.order = append(m.order, f.Name)
		}
		m.Fields[f.Name] = f
	}
	for _, c := range constraints {
		if c.Module == "" {
			c.Module = module
		}
		m.Constraints = append(m.Constraints, c)
	}
	for _, c := range sqlConstraints {
		if c.Module == "" {
			c.Module = module
		}
		m.SQLConstraints = append(m.SQLConstraints, c)
	}
	return m
}

// Model returns a model by name.
func (r *Registry) Model(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Field returns a field by model and name.
func (r *Registry) Field(model, name string) (*Field, bool) {
	m, ok := r.models[model]
	if !ok {
		return nil, false
	}
	f, ok := m.Fields[name]
	return f, ok
}

// Models returns all models sorted by name.
func (r *Registry) Models() []*Model {
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ExternalID binds a module-scoped name to a record.
type ExternalID struct {
	Module string
	Name   string
	Model  string
	ResID  int64
}

func (x ExternalID) String() string {
	return x.Module + "." + x.Name
}

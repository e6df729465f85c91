package pofile

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestQuoteUnquoteRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "hello", want: `"hello"`},
		{in: `say "hi"`, want: `"say \"hi\""`},
		{in: `back\slash`, want: `"back\\slash"`},
		{in: "two\nlines", want: "\"two\\n\"\n\"lines\""},
		{in: "tab\there", want: "\"tab\there\""},
		{in: "", want: `""`},
	}
	for _, tt := range tests {
		got, err := Quote(tt.in)
		if err != nil {
			t.Fatalf("Quote(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("Quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
		back := unquoteLines(strings.Split(got, "\n"))
		if back != tt.in {
			t.Fatalf("unquote(Quote(%q)) = %q", tt.in, back)
		}
	}
}

func TestQuoteRejectsEscapedNewline(t *testing.T) {
	_, err := Quote(`already \n escaped`)
	if !errors.Is(err, ErrEscapedNewline) {
		t.Fatalf("Quote error = %v, want ErrEscapedNewline", err)
	}
}

func TestUnquoteEscapes(t *testing.T) {
	tests := map[string]string{
		`"a\nb"`:    "a\nb",
		`"a\tb"`:    "a\tb",
		`"a\"b"`:    `a"b`,
		`"a\\b"`:    `a\b`,
		`"a\xb"`:    "axb",
		`"trail\"`:  `trail\`,
		`  "pad"  `: "pad",
	}
	for in, want := range tests {
		if got := Unquote(in); got != want {
			t.Fatalf("Unquote(%s) = %q, want %q", in, got, want)
		}
	}
}

const sample = "\ufeff# Translation of transkit.\n" + `# This file contains the translation of the following modules:
#	* base
#
msgid ""
msgstr ""
"Project-Id-Version: transkit 1.0\n"
"Language: fr\n"

#. module: base
#. some comment
#: model:res.partner,name:base.main_partner
#: model_terms:ir.ui.view,arch_db:base.view_form
msgid "Partner"
msgstr "Partenaire"

#. module: base
#: code:addons/base/models/a.py:10
#: code:addons/base/models/b.py:20
#: selection:res.partner,type:0
#, python-format
msgid "Contact"
msgstr "Contact"

#. module: base
#: model:res.partner,name:base.other
#, fuzzy
msgid "Fuzzy"
msgstr "Flou"

#. module: base
msgid "Orphan"
msgstr "Orphelin"

#~ msgid "Gone"
#~ msgstr "Parti"

#. module: base
#: addons/base/models/c.py:5
msgid "Multi\n"
"line"
msgstr "Multi\n"
"ligne"
`

func TestReaderFanOut(t *testing.T) {
	r := NewReader(strings.NewReader(sample), nil)
	terms, err := r.All()
	if err != nil {
		t.Fatalf("All error: %v", err)
	}

	want := []Term{
		{Module: "base", Type: "model", Name: "res.partner,name", ResID: "base.main_partner", Source: "Partner", Value: "Partenaire", Comments: []string{"some comment"}},
		{Module: "base", Type: "model_terms", Name: "ir.ui.view,arch_db", ResID: "base.view_form", Source: "Partner", Value: "Partenaire", Comments: []string{"some comment"}},
		{Module: "base", Type: "code", Name: "addons/base/models/a.py", ResID: "10", Source: "Contact", Value: "Contact"},
		{Module: "base", Type: "selection", Name: "res.partner,type", ResID: "0", Source: "Contact", Value: "Contact"},
		{Module: "base", Type: "code", Name: "addons/base/models/c.py", ResID: "5", Source: "Multi\nline", Value: "Multi\nligne"},
	}
	if !reflect.DeepEqual(terms, want) {
		t.Fatalf("terms mismatch\n got: %#v\nwant: %#v", terms, want)
	}
	if r.Skipped() != 1 {
		t.Fatalf("Skipped() = %d, want 1", r.Skipped())
	}
}

func TestReaderMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{name: "stray line", input: "msgid \"a\"\nmsgstr \"b\"\n\ngarbage\n", line: 4},
		{name: "msgid without msgstr at eof", input: "#: code:x.py:1\nmsgid \"a\"\n", line: 2},
		{name: "msgid followed by blank", input: "msgid \"a\"\n\nmsgstr \"b\"\n", line: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.input), nil).All()
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ParseError", err)
			}
			if pe.Line != tt.line {
				t.Fatalf("ParseError.Line = %d, want %d", pe.Line, tt.line)
			}
		})
	}
}

func TestReaderEOF(t *testing.T) {
	r := NewReader(strings.NewReader(""), nil)
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next on empty input = %v, want io.EOF", err)
	}
}

func TestParseWriteRoundTripAndHeaderFields(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := f.HeaderField("language"); got != "fr" {
		t.Fatalf("HeaderField(language) = %q, want fr", got)
	}
	f.SetHeaderField("Language", "de")
	f.SetHeaderField("Plural-Forms", "nplurals=2; plural=(n != 1);")
	if got := f.HeaderField("Language"); got != "de" {
		t.Fatalf("Language after SetHeaderField = %q, want de", got)
	}

	total, translated, fuzzy, untranslated := f.Stats()
	if total != 5 || translated != 4 || fuzzy != 1 || untranslated != 0 {
		t.Fatalf("Stats = %d/%d/%d/%d", total, translated, fuzzy, untranslated)
	}
	if len(f.Entries) != 6 {
		t.Fatalf("entries len = %d, want 6", len(f.Entries))
	}
	if !f.Entries[4].Obsolete || f.Entries[4].MsgID != "Gone" || f.Entries[4].MsgStr != "Parti" {
		t.Fatalf("obsolete entry = %+v", f.Entries[4])
	}
	partner := f.EntryByMsgID("Partner")
	if partner == nil {
		t.Fatal("Partner entry not found")
	}
	if got := partner.Modules(); !reflect.DeepEqual(got, []string{"base"}) {
		t.Fatalf("Modules() = %v", got)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	round, err := Parse(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Parse roundtrip error: %v\n%s", err, buf.String())
	}
	if round.HeaderField("Language") != "de" {
		t.Fatalf("roundtrip Language = %q", round.HeaderField("Language"))
	}
	for _, e := range append(round.Entries, f.Entries...) {
		e.Line = 0
	}
	if !reflect.DeepEqual(round.Entries, f.Entries) {
		for i := range f.Entries {
			if i < len(round.Entries) && !reflect.DeepEqual(round.Entries[i], f.Entries[i]) {
				t.Fatalf("entry %d differs:\n got %+v\nwant %+v", i, round.Entries[i], f.Entries[i])
			}
		}
		t.Fatalf("roundtrip entries differ: %d vs %d", len(round.Entries), len(f.Entries))
	}
	if !strings.Contains(buf.String(), "#\t* base\n") {
		t.Fatalf("translator comments not preserved:\n%s", buf.String())
	}
}

func TestSetFuzzy(t *testing.T) {
	e := &Entry{MsgID: "a", MsgStr: "b", Flags: []string{"python-format"}}
	e.SetFuzzy(true)
	if !e.IsFuzzy() || e.IsTranslated() {
		t.Fatalf("after SetFuzzy(true): %+v", e)
	}
	e.SetFuzzy(false)
	if e.IsFuzzy() || !e.HasFlag("python-format") || !e.IsTranslated() {
		t.Fatalf("after SetFuzzy(false): %+v", e)
	}
}

func TestWriterGroupsReadBack(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "transkit", "1.0")
	w.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC) }

	if err := w.WriteHeader([]string{"base", "sale"}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	groups := []Group{
		{
			Modules: []string{"base", "sale"},
			Targets: []Target{
				{Type: "model", Name: "res.partner,name", ResID: "base.p1"},
				{Type: "model", Name: "res.partner,name", ResID: "sale.p2"},
			},
			Source: "Customer",
			Value:  "Client",
		},
		{
			Modules:  []string{"sale"},
			Targets:  []Target{{Type: "code", Name: "addons/sale/x.py", ResID: "3"}},
			Source:   "Line one\nLine \"two\"",
			Comments: []string{"openerp-web"},
		},
	}
	for _, g := range groups {
		if err := w.Write(g); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"#\t* base\n#\t* sale\n",
		"\"POT-Creation-Date: 2024-01-02 03:04+0000\\n\"\n",
		"#. modules: base, sale\n#: model:res.partner,name:base.p1\n#: model:res.partner,name:sale.p2\nmsgid \"Customer\"\n",
		"#. module: sale\n#. openerp-web\n#: code:addons/sale/x.py:3\n#, python-format\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	terms, err := NewReader(strings.NewReader(out), nil).All()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(terms) != 3 {
		t.Fatalf("read back %d terms, want 3: %+v", len(terms), terms)
	}
	if terms[0].Module != "base" || terms[1].ResID != "sale.p2" || terms[1].Value != "Client" {
		t.Fatalf("unexpected terms: %+v", terms)
	}
	if terms[2].Source != "Line one\nLine \"two\"" || terms[2].Value != "" {
		t.Fatalf("multiline term = %+v", terms[2])
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want Target
		ok   bool
	}{
		{in: "model:res.partner,name:base.p", want: Target{"model", "res.partner,name", "base.p"}, ok: true},
		{in: "addons/x.py:12", want: Target{"code", "addons/x.py", "12"}, ok: true},
		{in: "code:addons/x.py:12", want: Target{"code", "addons/x.py", "12"}, ok: true},
		{in: "nocolon", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseTarget(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseTarget(%q) = %+v, %v", tt.in, got, ok)
		}
	}
}

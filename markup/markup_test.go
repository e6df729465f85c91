package markup

import (
	"reflect"
	"testing"
)

func dictLookup(d map[string]string) Lookup {
	return func(term string) (string, bool) {
		v, ok := d[term]
		return v, ok
	}
}

func noop(string) (string, bool) { return "", false }

func TestXMLTranslateFormScenario(t *testing.T) {
	src := `<form string="Form stuff"><h1>Blah blah blah</h1></form>`
	got, err := XMLTranslate(dictLookup(map[string]string{
		"Form stuff":     "Trucs",
		"Blah blah blah": "Bla bla bla",
	}), src)
	if err != nil {
		t.Fatalf("XMLTranslate error: %v", err)
	}
	want := `<form string="Trucs"><h1>Bla bla bla</h1></form>`
	if got != want {
		t.Fatalf("XMLTranslate = %q, want %q", got, want)
	}
}

func TestTermsGranularity(t *testing.T) {
	tests := []struct {
		name  string
		fn    TranslateFunc
		value string
		want  []string
	}{
		{
			name:  "inline markup stays in one term",
			fn:    XMLTranslate,
			value: `<h1>Blah <i>blah</i> blah</h1>`,
			want:  []string{"Blah <i>blah</i> blah"},
		},
		{
			name:  "block elements split terms",
			fn:    XMLTranslate,
			value: `<div>First<div>Second</div>Third</div>`,
			want:  []string{"First", "Second", "Third"},
		},
		{
			name:  "attributes before content",
			fn:    XMLTranslate,
			value: `<form string="Form stuff"><h1>Blah blah blah</h1></form>`,
			want:  []string{"Form stuff", "Blah blah blah"},
		},
		{
			name:  "leading icon kept out of the term",
			fn:    XMLTranslate,
			value: `<button><i class="fa fa-check"/> Confirm order</button>`,
			want:  []string{"Confirm order"},
		},
		{
			name:  "skipped elements and disabled translation",
			fn:    XMLTranslate,
			value: `<div><script>var x = "no";</script><p t-translation="off">Keep me</p><p>Take me</p></div>`,
			want:  []string{"Take me"},
		},
		{
			name:  "qweb directive makes inline element a block",
			fn:    XMLTranslate,
			value: `<p>Hello <span t-esc="name"/> again</p>`,
			want:  []string{"Hello", "again"},
		},
		{
			name:  "html void elements",
			fn:    HTMLTranslate,
			value: `<p>Line one<br>Line two</p><p>Other</p>`,
			want:  []string{"Line one<br>Line two", "Other"},
		},
		{
			name:  "text input value",
			fn:    XMLTranslate,
			value: `<div><input type="text" value="Search" placeholder="Type here"/><input type="hidden" value="secret"/></div>`,
			want:  []string{"Search", "Type here"},
		},
		{
			name:  "doctype documents are left alone",
			fn:    XMLTranslate,
			value: `<!DOCTYPE html><html><body>Hello there</body></html>`,
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Terms(tt.fn, tt.value)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Terms = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNoopLookupIsByteIdentical(t *testing.T) {
	values := []string{
		`<?xml version="1.0"?>
<form string='Quoted' ><sheet>
    <h1 class="x">Blah <i>blah</i>  blah</h1>
    <!-- a comment -->
    <field name="name" placeholder="e.g. &quot;Lumber Inc&quot;"/>
</sheet></form>`,
		`<p>Caf&eacute; &amp; <b>croissant</b></p>`,
		`plain text only`,
	}
	for _, v := range values {
		for _, fn := range []TranslateFunc{XMLTranslate, HTMLTranslate} {
			got, err := fn(noop, v)
			if err != nil {
				t.Fatalf("translate error: %v", err)
			}
			if got != v {
				t.Fatalf("no-op translation changed value:\n got %q\nwant %q", got, v)
			}
		}
	}
}

func TestTextlessTranslationRejected(t *testing.T) {
	src := `<div><span>Hello world</span></div>`
	got, err := XMLTranslate(dictLookup(map[string]string{
		"<span>Hello world</span>": `<span><i class="fa fa-globe"/></span>`,
	}), src)
	if err != nil {
		t.Fatalf("XMLTranslate error: %v", err)
	}
	if got != src {
		t.Fatalf("textless translation accepted: %q", got)
	}
}

func TestBlockMarkupTranslationRejected(t *testing.T) {
	src := `<div>Hello world</div>`
	got, _ := XMLTranslate(dictLookup(map[string]string{"Hello world": "<div>Bonjour</div>"}), src)
	if got != src {
		t.Fatalf("block translation accepted: %q", got)
	}
}

func TestUnparsableTranslationBecomesText(t *testing.T) {
	got, err := XMLTranslate(dictLookup(map[string]string{"Sales": "Ventes & marges"}), `<p>Sales</p>`)
	if err != nil {
		t.Fatalf("XMLTranslate error: %v", err)
	}
	if want := `<p>Ventes &amp; marges</p>`; got != want {
		t.Fatalf("XMLTranslate = %q, want %q", got, want)
	}
}

func TestWhitespaceOutsideTermPreserved(t *testing.T) {
	got, _ := XMLTranslate(dictLookup(map[string]string{"Hello": "Bonjour"}), "<p>\n   Hello  \n</p>")
	if want := "<p>\n   Bonjour  \n</p>"; got != want {
		t.Fatalf("XMLTranslate = %q, want %q", got, want)
	}
}

func TestIconStaysOutsideTranslatedTerm(t *testing.T) {
	got, _ := XMLTranslate(dictLookup(map[string]string{"Confirm order": "Confirmer"}),
		`<button><i class="fa fa-check"/> Confirm order</button>`)
	if want := `<button><i class="fa fa-check"/> Confirmer</button>`; got != want {
		t.Fatalf("XMLTranslate = %q, want %q", got, want)
	}
}

func TestXMLFallsBackToHTML(t *testing.T) {
	src := `<p>Hello&nbsp;world<br></p>`
	if _, ok := ParseXML(src).(Malformed); !ok {
		t.Fatal("expected XML parse failure")
	}
	terms := Terms(XMLTranslate, src)
	if len(terms) != 1 || terms[0] != "Hello\u00a0world" {
		t.Fatalf("Terms = %q", terms)
	}
}

func TestHTMLTranslateAttributes(t *testing.T) {
	got, err := HTMLTranslate(dictLookup(map[string]string{
		"Picture": "Image",
		"Caption": "Légende",
	}), `<div><img alt="Picture" src="a.png"><p>Caption</p></div>`)
	if err != nil {
		t.Fatalf("HTMLTranslate error: %v", err)
	}
	if want := `<div><img alt="Image" src="a.png"><p>Légende</p></div>`; got != want {
		t.Fatalf("HTMLTranslate = %q, want %q", got, want)
	}
}

func TestTextContent(t *testing.T) {
	tests := map[string]string{
		"plain":                    "plain",
		"Blah <i>blah</i> blah":    "Blah blah blah",
		"Fish &amp; <b>chips</b>":  "Fish & chips",
		`<span title="x">y</span>`: "y",
	}
	for in, want := range tests {
		if got := TextContent(in); got != want {
			t.Fatalf("TextContent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseXMLMalformed(t *testing.T) {
	for _, in := range []string{"<a><b></a></b>", "<a>", "</a>", "<a x=1/>"} {
		if _, ok := ParseXML(in).(Malformed); !ok {
			t.Fatalf("ParseXML(%q) should be Malformed", in)
		}
	}
}

func TestSyncTranslations(t *testing.T) {
	oldSrc := `<div><p>Hello <b>world</b></p><p>Second</p></div>`
	fr := `<div><p>Bonjour <b>monde</b></p><p>Deuxième</p></div>`

	t.Run("unchanged source keeps translations", func(t *testing.T) {
		got := SyncTranslations(XMLTranslate, oldSrc, oldSrc, map[string]string{"fr_FR": fr})
		if got["fr_FR"] != fr {
			t.Fatalf("got %q", got["fr_FR"])
		}
	})

	t.Run("cosmetic change and new paragraph", func(t *testing.T) {
		newSrc := `<div><p>Hello <i>world</i></p><p>Second</p><p>Third</p></div>`
		got := SyncTranslations(XMLTranslate, oldSrc, newSrc, map[string]string{"fr_FR": fr})
		want := `<div><p>Bonjour <b>monde</b></p><p>Deuxième</p><p>Third</p></div>`
		if got["fr_FR"] != want {
			t.Fatalf("got %q, want %q", got["fr_FR"], want)
		}
	})

	t.Run("reordered terms", func(t *testing.T) {
		src := `<div><p>Alpha <b>one</b></p><p>Beta <b>two</b></p></div>`
		tr := `<div><p>Alfa <b>uno</b></p><p>Beta <b>due</b></p></div>`
		newSrc := `<div><p>Beta <i>two</i></p><p>Alpha <i>one</i></p></div>`
		got := SyncTranslations(XMLTranslate, src, newSrc, map[string]string{"it_IT": tr})
		want := `<div><p>Beta <b>due</b></p><p>Alfa <b>uno</b></p></div>`
		if got["it_IT"] != want {
			t.Fatalf("got %q, want %q", got["it_IT"], want)
		}
	})

	t.Run("markup translation never lands on plain text", func(t *testing.T) {
		newSrc := `<div><p>Hello world</p><p>Second</p></div>`
		got := SyncTranslations(XMLTranslate, oldSrc, newSrc, map[string]string{"fr_FR": fr})
		want := `<div><p>Hello world</p><p>Deuxième</p></div>`
		if got["fr_FR"] != want {
			t.Fatalf("got %q, want %q", got["fr_FR"], want)
		}
	})

	t.Run("term count mismatch drops language terms", func(t *testing.T) {
		newSrc := `<div><p>Hello <b>world</b></p><p>Second!</p></div>`
		got := SyncTranslations(XMLTranslate, oldSrc, newSrc, map[string]string{"fr_FR": `<div><p>Tout</p></div>`})
		if got["fr_FR"] != newSrc {
			t.Fatalf("got %q, want source", got["fr_FR"])
		}
	})
}

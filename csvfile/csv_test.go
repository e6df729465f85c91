package csvfile

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/minios-linux/transkit/pofile"
)

func TestWriteReadRoundTrip(t *testing.T) {
	terms := []pofile.Term{
		{Module: "base", Type: "model", Name: "res.partner,name", ResID: "base.p1", Source: "Customer", Value: "Client"},
		{Module: "web", Type: "code", Name: "addons/web/static/src/js/a.js", ResID: "12", Source: "Say \"hi\",\nplease", Comments: []string{"openerp-web", "second"}},
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, term := range terms {
		if err := w.Write(term); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "module,type,name,res_id,src,value,comments\n") {
		t.Fatalf("unexpected header: %q", buf.String())
	}
	if strings.Contains(buf.String(), "\r\n") {
		t.Fatal("rows must use LF terminators")
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var got []pofile.Term
	for {
		term, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, term)
	}
	if !reflect.DeepEqual(got, terms) {
		t.Fatalf("round trip mismatch\n got %+v\nwant %+v", got, terms)
	}
}

func TestReaderColumnsByName(t *testing.T) {
	in := "\xef\xbb\xbfvalue,src,type\nBonjour,Hello,code\n"
	r, err := NewReader(strings.NewReader(in))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	term, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if term.Source != "Hello" || term.Value != "Bonjour" || term.Type != "code" || term.Module != "" {
		t.Fatalf("term = %+v", term)
	}
}

func TestReaderMissingColumns(t *testing.T) {
	if _, err := NewReader(strings.NewReader("module,name\nx,y\n")); err == nil {
		t.Fatal("expected error for missing src/value columns")
	}
	if _, err := NewReader(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

// Package csvfile reads and writes translation terms as CSV with the columns
// module, type, name, res_id, src, value and comments.
package csvfile

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/minios-linux/transkit/pofile"
)

// Columns is the header written by Writer, in order.
var Columns = []string{"module", "type", "name", "res_id", "src", "value", "comments"}

// Reader yields terms from a CSV stream. Columns are located by header name;
// src and value are mandatory.
type Reader struct {
	r   *csv.Reader
	idx map[string]int
}

// NewReader reads and validates the header row.
func NewReader(in io.Reader) (*Reader, error) {
	br := bufio.NewReader(in)
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		br.Discard(3)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"src", "value"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv missing %q column", col)
		}
	}
	return &Reader{r: r, idx: idx}, nil
}

func (r *Reader) col(rec []string, name string) string {
	i, ok := r.idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

// Next returns the next term or io.EOF.
func (r *Reader) Next() (pofile.Term, error) {
	rec, err := r.r.Read()
	if err != nil {
		if err != io.EOF {
			err = fmt.Errorf("csv: %w", err)
		}
		return pofile.Term{}, err
	}
	t := pofile.Term{
		Module: r.col(rec, "module"),
		Type:   r.col(rec, "type"),
		Name:   r.col(rec, "name"),
		ResID:  r.col(rec, "res_id"),
		Source: r.col(rec, "src"),
		Value:  r.col(rec, "value"),
	}
	if c := r.col(rec, "comments"); c != "" {
		t.Comments = strings.Split(c, "\n")
	}
	return t, nil
}

// Writer writes terms with a header row and LF line endings.
type Writer struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewWriter returns a term writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

// Write writes one term row, preceded by the header on first use.
func (w *Writer) Write(t pofile.Term) error {
	if !w.wroteHeader {
		if err := w.w.Write(Columns); err != nil {
			return err
		}
		w.wroteHeader = true
	}
	return w.w.Write([]string{t.Module, t.Type, t.Name, t.ResID, t.Source, t.Value, strings.Join(t.Comments, "\n")})
}

// Flush flushes buffered rows, writing the header if nothing else was written.
func (w *Writer) Flush() error {
	if !w.wroteHeader {
		if err := w.w.Write(Columns); err != nil {
			return err
		}
		w.wroteHeader = true
	}
	w.w.Flush()
	return w.w.Error()
}

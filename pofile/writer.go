package pofile

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// Group is one PO entry as written by Writer: a source string with every
// module and target it was collected from.
type Group struct {
	Modules  []string
	Targets  []Target
	Source   string
	Value    string
	Comments []string
}

// Writer emits a module catalog.
type Writer struct {
	bw      *bufio.Writer
	Project string
	Version string
	// Now stamps the header; defaults to time.Now.
	Now func() time.Time
}

// NewWriter returns a Writer for the given project name and version.
func NewWriter(w io.Writer, project, version string) *Writer {
	return &Writer{bw: bufio.NewWriter(w), Project: project, Version: version, Now: time.Now}
}

// WriteHeader writes the catalog preamble listing the exported modules and
// the msgid "" header entry.
func (w *Writer) WriteHeader(modules []string) error {
	fmt.Fprintf(w.bw, "# Translation of %s.\n", w.Project)
	w.bw.WriteString("# This file contains the translation of the following modules:\n")
	for _, m := range modules {
		fmt.Fprintf(w.bw, "#\t* %s\n", m)
	}
	w.bw.WriteString("#\n")
	w.bw.WriteString("msgid \"\"\nmsgstr \"\"\n")
	for _, line := range strings.SplitAfter(MakeHeader(w.Project, w.Version, w.Now()), "\n") {
		if line == "" {
			continue
		}
		q, err := Quote(strings.TrimSuffix(line, "\n"))
		if err != nil {
			return err
		}
		w.bw.WriteString(q[:len(q)-1] + "\\n\"\n")
	}
	w.bw.WriteString("\n")
	return nil
}

// Write writes one entry followed by a blank line. Code targets add the
// python-format flag.
func (w *Writer) Write(g Group) error {
	msgid, err := Quote(g.Source)
	if err != nil {
		return err
	}
	msgstr, err := Quote(g.Value)
	if err != nil {
		return err
	}

	switch len(g.Modules) {
	case 0:
	case 1:
		fmt.Fprintf(w.bw, "#. module: %s\n", g.Modules[0])
	default:
		fmt.Fprintf(w.bw, "#. modules: %s\n", strings.Join(g.Modules, ", "))
	}
	for _, c := range g.Comments {
		fmt.Fprintf(w.bw, "#. %s\n", c)
	}
	code := false
	for _, t := range g.Targets {
		fmt.Fprintf(w.bw, "#: %s\n", t)
		code = code || t.Type == "code"
	}
	if code {
		w.bw.WriteString("#, python-format\n")
	}
	fmt.Fprintf(w.bw, "msgid %s\nmsgstr %s\n\n", msgid, msgstr)
	return nil
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Package pofile reads and writes the PO dialect used for module translation
// catalogs: quoting, a term reader that fans entries out to their targets,
// a grouped writer and an in-memory file model for merging.
package pofile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Entry is a single block of a PO file.
type Entry struct {
	// TranslatorComments hold the raw text after "#" of translator comment lines.
	TranslatorComments []string
	// ExtractedComments are "#." lines, including the module marker.
	ExtractedComments []string
	// References are the raw "#:" lines.
	References []string
	// Flags are the comma separated values of "#," lines.
	Flags []string
	// PreviousMsgID is the "#| msgid" of a fuzzy entry.
	PreviousMsgID string

	MsgID  string
	MsgStr string

	// Obsolete marks "#~" blocks.
	Obsolete bool
	// Line is the line number of the msgid keyword.
	Line int
}

// IsTranslated reports whether the entry carries a usable translation.
func (e *Entry) IsTranslated() bool {
	return e.MsgID != "" && !e.IsFuzzy() && e.MsgStr != ""
}

// IsFuzzy reports whether the entry is flagged fuzzy.
func (e *Entry) IsFuzzy() bool {
	return e.HasFlag("fuzzy")
}

// HasFlag checks if a specific flag is present.
func (e *Entry) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// SetFuzzy adds or removes the fuzzy flag.
func (e *Entry) SetFuzzy(fuzzy bool) {
	if fuzzy {
		if !e.IsFuzzy() {
			e.Flags = append([]string{"fuzzy"}, e.Flags...)
		}
		return
	}
	kept := e.Flags[:0]
	for _, f := range e.Flags {
		if f != "fuzzy" {
			kept = append(kept, f)
		}
	}
	e.Flags = kept
}

// Modules returns the modules named by "#. module:" or "#. modules:" lines.
func (e *Entry) Modules() []string {
	var mods []string
	for _, c := range e.ExtractedComments {
		rest, ok := moduleMarker(c)
		if !ok {
			continue
		}
		for _, m := range strings.Split(rest, ",") {
			if m = strings.TrimSpace(m); m != "" {
				mods = append(mods, m)
			}
		}
	}
	return mods
}

// Comments returns the extracted comments that are not module markers.
func (e *Entry) Comments() []string {
	var out []string
	for _, c := range e.ExtractedComments {
		if _, ok := moduleMarker(c); !ok {
			out = append(out, c)
		}
	}
	return out
}

// Targets parses the "#:" references. Malformed references are ignored.
func (e *Entry) Targets() []Target {
	var targets []Target
	for _, ref := range e.References {
		for _, part := range strings.Fields(ref) {
			if t, ok := ParseTarget(part); ok {
				targets = append(targets, t)
			}
		}
	}
	return targets
}

func moduleMarker(c string) (string, bool) {
	switch {
	case strings.HasPrefix(c, "modules:"):
		return c[len("modules:"):], true
	case strings.HasPrefix(c, "module:"):
		return c[len("module:"):], true
	}
	return "", false
}

// Target is a place a translation applies to: "type:name:res_id".
type Target struct {
	Type  string
	Name  string
	ResID string
}

func (t Target) String() string {
	return t.Type + ":" + t.Name + ":" + t.ResID
}

// ParseTarget splits a reference. A two-part reference "path:line" is a code
// target.
func ParseTarget(s string) (Target, bool) {
	parts := strings.SplitN(s, ":", 3)
	switch len(parts) {
	case 2:
		return Target{Type: "code", Name: parts[0], ResID: parts[1]}, true
	case 3:
		return Target{Type: parts[0], Name: parts[1], ResID: parts[2]}, true
	}
	return Target{}, false
}

// File is a parsed PO/POT file.
type File struct {
	// Header is the metadata entry (msgid "").
	Header  *Entry
	Entries []*Entry
}

// NewFile creates an empty file with an empty header.
func NewFile() *File {
	return &File{Header: &Entry{}}
}

// HeaderField returns a header field value by name.
func (f *File) HeaderField(name string) string {
	if f.Header == nil {
		return ""
	}
	for _, line := range strings.Split(f.Header.MsgStr, "\n") {
		if idx := strings.Index(line, ":"); idx > 0 {
			if strings.EqualFold(strings.TrimSpace(line[:idx]), name) {
				return strings.TrimSpace(line[idx+1:])
			}
		}
	}
	return ""
}

// SetHeaderField sets a header field value, appending it when missing.
func (f *File) SetHeaderField(name, value string) {
	if f.Header == nil {
		f.Header = &Entry{}
	}
	lines := strings.Split(f.Header.MsgStr, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, ":"); idx > 0 && strings.EqualFold(strings.TrimSpace(line[:idx]), name) {
			lines[i] = name + ": " + value
			f.Header.MsgStr = strings.Join(lines, "\n")
			return
		}
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = append(lines[:n-1], name+": "+value, "")
	} else {
		lines = append(lines, name+": "+value)
	}
	f.Header.MsgStr = strings.Join(lines, "\n")
}

// EntryByMsgID finds a live entry by its msgid.
func (f *File) EntryByMsgID(msgid string) *Entry {
	for _, e := range f.Entries {
		if e.MsgID == msgid && !e.Obsolete {
			return e
		}
	}
	return nil
}

// Stats returns translation statistics over live entries.
func (f *File) Stats() (total, translated, fuzzy, untranslated int) {
	for _, e := range f.Entries {
		if e.MsgID == "" || e.Obsolete {
			continue
		}
		total++
		switch {
		case e.IsFuzzy():
			fuzzy++
		case e.IsTranslated():
			translated++
		default:
			untranslated++
		}
	}
	return
}

// Parse reads a whole PO/POT file. The first msgid "" entry becomes the header.
func Parse(r io.Reader) (*File, error) {
	f := &File{}
	sc := newScanner(r)
	for {
		e, err := sc.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if e.MsgID == "" && !e.Obsolete && f.Header == nil {
			f.Header = e
			continue
		}
		f.Entries = append(f.Entries, e)
	}
	if f.Header == nil {
		f.Header = &Entry{}
	}
	return f, nil
}

// ParseFile reads a PO/POT file from disk.
func ParseFile(path string) (*File, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	f, err := Parse(in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Write serializes the file. Entries are separated by a blank line.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if f.Header != nil {
		if err := writeEntry(bw, f.Header); err != nil {
			return err
		}
	}
	for _, e := range f.Entries {
		bw.WriteString("\n")
		if err := writeEntry(bw, e); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the file to disk.
func (f *File) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeEntry(w *bufio.Writer, e *Entry) error {
	for _, c := range e.TranslatorComments {
		w.WriteString("#" + c + "\n")
	}
	for _, c := range e.ExtractedComments {
		w.WriteString("#. " + c + "\n")
	}
	for _, ref := range e.References {
		w.WriteString("#: " + ref + "\n")
	}
	if len(e.Flags) > 0 {
		w.WriteString("#, " + strings.Join(e.Flags, ", ") + "\n")
	}
	prefix := ""
	if e.Obsolete {
		prefix = "#~ "
	}
	if e.PreviousMsgID != "" {
		if err := writeField(w, "#| ", "msgid", e.PreviousMsgID); err != nil {
			return err
		}
	}
	if err := writeField(w, prefix, "msgid", e.MsgID); err != nil {
		return err
	}
	return writeField(w, prefix, "msgstr", e.MsgStr)
}

func writeField(w *bufio.Writer, prefix, keyword, value string) error {
	q, err := Quote(value)
	if err != nil {
		return fmt.Errorf("%s: %w", keyword, err)
	}
	// A value ending in a newline leaves an empty trailing literal behind.
	q = strings.TrimSuffix(q, "\n\"\"")
	if prefix != "" {
		q = strings.ReplaceAll(q, "\n", "\n"+prefix)
	}
	w.WriteString(prefix + keyword + " " + q + "\n")
	return nil
}

// MakeHeader builds the msgstr of a catalog header entry.
func MakeHeader(project, version string, now time.Time) string {
	stamp := now.UTC().Format("2006-01-02 15:04-0700")
	return fmt.Sprintf("Project-Id-Version: %s %s\n"+
		"Report-Msgid-Bugs-To: \n"+
		"POT-Creation-Date: %s\n"+
		"PO-Revision-Date: %s\n"+
		"Last-Translator: \n"+
		"Language-Team: \n"+
		"MIME-Version: 1.0\n"+
		"Content-Type: text/plain; charset=UTF-8\n"+
		"Content-Transfer-Encoding: \n"+
		"Plural-Forms: \n",
		project, version, stamp, stamp)
}

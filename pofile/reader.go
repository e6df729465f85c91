package pofile

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Term is one translation entry as exchanged by the catalog readers and
// writers: a source string, where it applies, and its translation.
type Term struct {
	Module   string
	Type     string
	Name     string
	ResID    string
	Source   string
	Value    string
	Comments []string
}

// Target returns the place the term applies to.
func (t Term) Target() Target {
	return Target{Type: t.Type, Name: t.Name, ResID: t.ResID}
}

// Reader yields one Term per target of each PO entry.
//
// The header entry, obsolete entries and fuzzy entries produce nothing.
// Entries without any target are skipped with a warning. Only the first
// code target of an entry is kept.
type Reader struct {
	sc         *scanner
	log        logrus.FieldLogger
	queue      []Term
	seenHeader bool
	skipped    int
}

// NewReader returns a term reader over r. A nil logger uses the logrus
// standard logger.
func NewReader(r io.Reader, log logrus.FieldLogger) *Reader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reader{sc: newScanner(r), log: log}
}

// Skipped returns how many entries were dropped for lack of a target.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Next returns the next term, or io.EOF when the stream is exhausted.
// Malformed input yields a *ParseError.
func (r *Reader) Next() (Term, error) {
	for len(r.queue) == 0 {
		e, err := r.sc.next()
		if err != nil {
			return Term{}, err
		}
		r.fanOut(e)
	}
	t := r.queue[0]
	r.queue = r.queue[1:]
	return t, nil
}

// All drains the reader.
func (r *Reader) All() ([]Term, error) {
	var terms []Term
	for {
		t, err := r.Next()
		if err == io.EOF {
			return terms, nil
		}
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
}

func (r *Reader) fanOut(e *Entry) {
	if e.Obsolete {
		return
	}
	first := !r.seenHeader
	r.seenHeader = true
	if e.MsgID == "" {
		if !first {
			r.log.WithField("line", e.Line).Warn("ignoring entry with empty msgid")
		}
		return
	}
	if e.IsFuzzy() {
		return
	}
	targets := e.Targets()
	if len(targets) == 0 {
		r.skipped++
		r.log.WithFields(logrus.Fields{"line": e.Line, "msgid": e.MsgID}).
			Warn("missing translation target, entry skipped")
		return
	}

	var module string
	if mods := e.Modules(); len(mods) > 0 {
		module = mods[0]
	}
	comments := e.Comments()
	codeSeen := false
	for _, t := range targets {
		if t.Type == "code" {
			if codeSeen {
				continue
			}
			codeSeen = true
		}
		r.queue = append(r.queue, Term{
			Module:   module,
			Type:     t.Type,
			Name:     t.Name,
			ResID:    t.ResID,
			Source:   e.MsgID,
			Value:    e.MsgStr,
			Comments: comments,
		})
	}
}

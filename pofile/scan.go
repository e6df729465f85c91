package pofile

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseError reports malformed PO input.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// scanner splits a PO stream into entries. It walks the block grammar
// comments, msgid, continuation lines, msgstr, continuation lines; anything
// else where a keyword is expected is a ParseError.
type scanner struct {
	sc      *bufio.Scanner
	line    int
	pending *string
	started bool
}

func newScanner(r io.Reader) *scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &scanner{sc: sc}
}

func (s *scanner) readLine() (string, bool) {
	if s.pending != nil {
		l := *s.pending
		s.pending = nil
		return l, true
	}
	if !s.sc.Scan() {
		return "", false
	}
	s.line++
	l := s.sc.Text()
	if !s.started {
		s.started = true
		l = strings.TrimPrefix(l, "\ufeff")
	}
	return strings.TrimRight(l, "\r"), true
}

func (s *scanner) unread(l string) {
	s.pending = &l
}

func (s *scanner) errorf(text, format string, args ...any) error {
	return &ParseError{Line: s.line, Text: text, Msg: fmt.Sprintf(format, args...)}
}

// next returns the following entry or io.EOF.
func (s *scanner) next() (*Entry, error) {
	e := &Entry{}
	for {
		line, ok := s.readLine()
		if !ok {
			if err := s.sc.Err(); err != nil {
				return nil, fmt.Errorf("reading PO stream: %w", err)
			}
			return nil, io.EOF
		}
		switch {
		case strings.TrimSpace(line) == "":
			continue
		case strings.HasPrefix(line, "#~"):
			return s.obsolete(e, line)
		case strings.HasPrefix(line, "#"):
			addComment(e, line)
		case strings.HasPrefix(line, "msgid "):
			e.Line = s.line
			return s.body(e, line)
		default:
			return nil, s.errorf(line, "expected msgid")
		}
	}
}

func (s *scanner) body(e *Entry, first string) (*Entry, error) {
	ids := []string{strings.TrimPrefix(first, "msgid ")}
	var strs []string
	for strs == nil {
		line, ok := s.readLine()
		if !ok {
			return nil, s.errorf(first, "msgid without msgstr")
		}
		t := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(t, `"`):
			ids = append(ids, t)
		case strings.HasPrefix(line, "msgstr "):
			strs = []string{strings.TrimPrefix(line, "msgstr ")}
		default:
			return nil, s.errorf(line, "expected msgstr")
		}
	}
	for {
		line, ok := s.readLine()
		if !ok {
			break
		}
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, `"`) {
			strs = append(strs, t)
			continue
		}
		if t != "" {
			s.unread(line)
		}
		break
	}
	e.MsgID = unquoteLines(ids)
	e.MsgStr = unquoteLines(strs)
	return e, nil
}

// obsolete consumes a run of "#~" lines. The content is kept on the entry
// for the file model; term readers drop it.
func (s *scanner) obsolete(e *Entry, first string) (*Entry, error) {
	e.Obsolete = true
	e.Line = s.line
	var field *[]string
	var ids, strs []string
	line := first
	for {
		body := strings.TrimPrefix(strings.TrimPrefix(line, "#~"), " ")
		switch {
		case strings.HasPrefix(body, "msgid "):
			ids = []string{strings.TrimPrefix(body, "msgid ")}
			field = &ids
		case strings.HasPrefix(body, "msgstr "):
			strs = []string{strings.TrimPrefix(body, "msgstr ")}
			field = &strs
		case strings.HasPrefix(strings.TrimSpace(body), `"`) && field != nil:
			*field = append(*field, strings.TrimSpace(body))
		}
		next, ok := s.readLine()
		if !ok {
			break
		}
		if !strings.HasPrefix(next, "#~") {
			if strings.TrimSpace(next) != "" {
				s.unread(next)
			}
			break
		}
		line = next
	}
	e.MsgID = unquoteLines(ids)
	e.MsgStr = unquoteLines(strs)
	return e, nil
}

func addComment(e *Entry, line string) {
	switch {
	case strings.HasPrefix(line, "#."):
		e.ExtractedComments = append(e.ExtractedComments, strings.TrimSpace(line[2:]))
	case strings.HasPrefix(line, "#:"):
		if ref := strings.TrimSpace(line[2:]); ref != "" {
			e.References = append(e.References, ref)
		}
	case strings.HasPrefix(line, "#,"):
		for _, f := range strings.Split(line[2:], ",") {
			if f = strings.TrimSpace(f); f != "" {
				e.Flags = append(e.Flags, f)
			}
		}
	case strings.HasPrefix(line, "#|"):
		prev := strings.TrimSpace(line[2:])
		if strings.HasPrefix(prev, "msgid ") {
			e.PreviousMsgID = Unquote(strings.TrimPrefix(prev, "msgid "))
		} else if strings.HasPrefix(prev, `"`) {
			e.PreviousMsgID += Unquote(prev)
		}
	default:
		e.TranslatorComments = append(e.TranslatorComments, line[1:])
	}
}

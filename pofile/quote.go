package pofile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEscapedNewline is returned by Quote when the input already contains the
// two-character sequence backslash-n. Such strings cannot be quoted without
// losing the distinction between an escaped and a real newline.
var ErrEscapedNewline = errors.New("pofile: string contains an escaped newline")

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", "\\n\"\n\"",
)

// Quote returns s as a PO string literal. Embedded newlines split the literal
// over several lines, each line ending with an escaped newline.
func Quote(s string) (string, error) {
	if strings.Contains(s, `\n`) {
		return "", fmt.Errorf("%w: %.40q", ErrEscapedNewline, s)
	}
	return `"` + quoteReplacer.Replace(s) + `"`, nil
}

// Unquote strips the surrounding quotes of a single PO string line and
// resolves its escapes. \n and \t become newline and tab, any other
// escaped character stands for itself.
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// unquoteLines joins the values of a multi-line PO literal as produced by Quote.
func unquoteLines(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(Unquote(l))
	}
	return b.String()
}

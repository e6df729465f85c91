package extract

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minios-linux/transkit/markup"
)

// skipDirs are never scanned for sources.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"vendor":       true,
	"testdata":     true,
	"i18n":         true,
}

// WebComment marks terms used by the web client.
const WebComment = "openerp-web"

// sourceKind tells how a file is scanned.
type sourceKind int

const (
	kindNone sourceKind = iota
	kindGo
	kindPython
	kindJS
	kindQWeb
)

// classify returns how the file at rel, relative to the addon root, is
// scanned. Web assets are only scanned below static/src.
func classify(rel string) sourceKind {
	slash := filepath.ToSlash(rel)
	switch filepath.Ext(rel) {
	case ".go":
		if strings.HasSuffix(rel, "_test.go") {
			return kindNone
		}
		return kindGo
	case ".py":
		return kindPython
	case ".js":
		if strings.HasPrefix(slash, "static/src/js/") {
			return kindJS
		}
	case ".xml":
		if strings.HasPrefix(slash, "static/src/xml/") {
			return kindQWeb
		}
	}
	return kindNone
}

// literalCall is a translatable literal found in source code.
type literalCall struct {
	Source string
	Line   int
}

// sourceTerms scans the addon rooted at dir and pushes one code term per
// literal. Files that cannot be read or parsed are reported through warn.
func (g *Generator) sourceTerms(module, dir string, push func(module, typ, name, resID, source string, comments []string), warn func(path string, err error)) error {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			warn(path, err)
			return nil
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			continue
		}
		kind := classify(rel)
		if kind == kindNone {
			continue
		}
		src, err := os.ReadFile(path)
		if err != nil {
			warn(path, err)
			continue
		}
		name := "addons/" + module + "/" + filepath.ToSlash(rel)

		var calls []literalCall
		var comments []string
		switch kind {
		case kindGo:
			calls, err = extractGo(path, src, g.goKeywords())
		case kindPython:
			calls = scanCalls(string(src), []string{"_"}, "#")
		case kindJS:
			calls = scanCalls(string(src), []string{"_t", "_lt"}, "//")
			comments = []string{WebComment}
		case kindQWeb:
			calls, err = extractQWeb(string(src))
			comments = []string{WebComment}
		}
		if err != nil {
			warn(path, err)
			continue
		}
		for _, c := range calls {
			push(module, "code", name, itoa(c.Line), c.Source, comments)
		}
	}
	return nil
}

// extractQWeb returns the markup terms of a QWeb template file.
func extractQWeb(src string) ([]literalCall, error) {
	var out []literalCall
	var failed error
	_, err := markup.XMLTranslate(func(term string) (string, bool) {
		out = append(out, literalCall{Source: term, Line: lineOf(src, term)})
		return "", false
	}, src)
	if err != nil {
		failed = err
	}
	return out, failed
}

// lineOf returns the 1-based line of the first occurrence of term in src,
// 0 when the term does not appear verbatim.
func lineOf(src, term string) int {
	i := strings.Index(src, term)
	if i < 0 {
		return 0
	}
	return strings.Count(src[:i], "\n") + 1
}

// scanCalls finds calls keyword("literal") in Python or JavaScript source.
// Adjacent literals, and literals joined by +, are concatenated. Calls whose
// first argument is not a literal are ignored.
func scanCalls(src string, keywords []string, lineComment string) []literalCall {
	var out []literalCall
	line := 1
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\n':
			line++
			continue
		case strings.HasPrefix(src[i:], lineComment):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				return out
			}
			i += end - 1
			continue
		case c == '"' || c == '\'' || c == '`':
			if _, n, ok := readLiteral(src[i:]); ok {
				line += strings.Count(src[i:i+n], "\n")
				i += n - 1
			}
			continue
		}
		if i > 0 && isIdentByte(src[i-1]) {
			continue
		}
		for _, kw := range keywords {
			if !strings.HasPrefix(src[i:], kw) {
				continue
			}
			j := skipSpace(src, i+len(kw))
			if j >= len(src) || src[j] != '(' {
				continue
			}
			if text, ok := readArgument(src[j+1:]); ok {
				out = append(out, literalCall{Source: text, Line: line})
			}
			break
		}
	}
	return out
}

// readArgument reads a literal argument, following implicit and explicit
// concatenation.
func readArgument(s string) (string, bool) {
	var b strings.Builder
	i := skipSpace(s, 0)
	found := false
	for i < len(s) {
		v, n, ok := readLiteral(s[i:])
		if !ok {
			break
		}
		b.WriteString(v)
		found = true
		i = skipSpace(s, i+n)
		if i < len(s) && s[i] == '+' {
			i = skipSpace(s, i+1)
		}
	}
	if !found {
		return "", false
	}
	if i < len(s) && s[i] != ')' && s[i] != ',' && s[i] != '%' && s[i] != '.' {
		return "", false
	}
	return b.String(), true
}

// readLiteral decodes the quoted literal at the start of s and returns its
// value and length. Python triple quotes and JavaScript template literals
// without substitutions are supported.
func readLiteral(s string) (string, int, bool) {
	if s == "" {
		return "", 0, false
	}
	q := s[0]
	if q != '"' && q != '\'' && q != '`' {
		return "", 0, false
	}
	delim := s[:1]
	if q != '`' && strings.HasPrefix(s, strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	var b strings.Builder
	for i := len(delim); i < len(s); i++ {
		c := s[i]
		switch {
		case strings.HasPrefix(s[i:], delim):
			if q == '`' && strings.Contains(b.String(), "${") {
				return "", 0, false
			}
			return b.String(), i + len(delim), true
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\n':
			default:
				b.WriteByte(s[i])
			}
		case c == '\n' && len(delim) == 1 && q != '`':
			return "", 0, false
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, false
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c == '.' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

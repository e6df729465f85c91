package markup

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Lookup returns the translation of a term. A false second result, or an
// empty translation, keeps the source term.
type Lookup func(term string) (string, bool)

// TranslateFunc is the common signature of XMLTranslate and HTMLTranslate.
type TranslateFunc func(lookup Lookup, value string) (string, error)

// inlineElements may be part of a term.
var inlineElements = map[string]bool{
	"abbr": true, "b": true, "bdi": true, "bdo": true, "br": true, "cite": true,
	"code": true, "data": true, "del": true, "dfn": true, "em": true, "font": true,
	"i": true, "ins": true, "kbd": true, "keygen": true, "mark": true, "math": true,
	"meter": true, "output": true, "progress": true, "q": true, "ruby": true,
	"s": true, "samp": true, "small": true, "span": true, "strong": true,
	"sub": true, "sup": true, "time": true, "u": true, "var": true, "wbr": true,
	"text": true, "select": true, "option": true,
}

// skippedElements are never translated, nor anything inside them.
var skippedElements = map[string]bool{"script": true, "style": true, "title": true}

var translatedAttrs = map[string]bool{
	"string": true, "add-label": true, "help": true, "sum": true, "avg": true,
	"confirm": true, "placeholder": true, "alt": true, "title": true,
	"aria-label": true, "aria-keyshortcuts": true, "aria-placeholder": true,
	"aria-roledescription": true, "aria-valuetext": true, "value_label": true,
	"data-tooltip": true, "data-editor-message": true, "label": true,
}

// isTranslatedAttr reports whether attribute key of n holds user-facing text.
func isTranslatedAttr(n *Node, key string) bool {
	if translatedAttrs[key] {
		return true
	}
	if strings.HasPrefix(key, "t-attf-") && translatedAttrs[strings.TrimPrefix(key, "t-attf-")] {
		return true
	}
	if key == "value" && n.Data == "input" {
		typ, ok := n.Get("type")
		return !ok || typ == "text"
	}
	return false
}

func hasTDirective(n *Node) bool {
	for _, a := range n.Attr {
		if strings.HasPrefix(a.Key, "t-") {
			return true
		}
	}
	return false
}

// isSkipped reports elements whose content stays untouched.
func isSkipped(n *Node) bool {
	if skippedElements[n.Data] {
		return true
	}
	if v, ok := n.Get("t-translation"); ok && strings.TrimSpace(v) == "off" {
		return true
	}
	if n.Data == "attribute" {
		name, _ := n.Get("name")
		return !translatedAttrs[name]
	}
	return false
}

// isInline reports whether n can take part in a term: an allow-listed element
// without QWeb directives whose children are all text or inline elements.
func isInline(n *Node) bool {
	if n.Type != ElementNode || !inlineElements[n.Data] || hasTDirective(n) || isSkipped(n) {
		return false
	}
	for _, c := range n.Children {
		switch c.Type {
		case TextNode:
		case ElementNode:
			if !isInline(c) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// hasText reports whether n shows text: non-blank text or a translated
// attribute, reachable through inline elements only.
func hasText(n *Node) bool {
	switch n.Type {
	case TextNode:
		return strings.TrimSpace(n.Data) != ""
	case ElementNode:
		if !isInline(n) {
			return false
		}
		for _, a := range n.Attr {
			if isTranslatedAttr(n, a.Key) && strings.TrimSpace(a.Val) != "" {
				return true
			}
		}
		for _, c := range n.Children {
			if hasText(c) {
				return true
			}
		}
	}
	return false
}

func anyText(nodes []*Node) bool {
	for _, n := range nodes {
		if hasText(n) {
			return true
		}
	}
	return false
}

func allInline(nodes []*Node) bool {
	for _, n := range nodes {
		switch n.Type {
		case TextNode:
		case ElementNode:
			if !isInline(n) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// translator walks a tree and substitutes terms in place.
type translator struct {
	lookup  Lookup
	mode    Mode
	changed bool
}

// process translates the attributes and content of element n. Runs of text
// and inline children are translated as single terms; other children are
// processed recursively and delimit the runs.
func (t *translator) process(n *Node) {
	if isSkipped(n) {
		return
	}
	t.translateAttrs(n)
	var out, pending []*Node
	for _, c := range n.Children {
		if c.Type == TextNode || isInline(c) {
			pending = append(pending, c)
			continue
		}
		out = append(out, t.translateRun(pending)...)
		pending = nil
		if c.Type == ElementNode {
			t.process(c)
		}
		out = append(out, c)
	}
	n.Children = append(out, t.translateRun(pending)...)
}

// translateRun translates a run of sibling text and inline nodes as one term.
// Textless elements at either end (icons) stay outside the term.
func (t *translator) translateRun(run []*Node) []*Node {
	if !anyText(run) {
		return run
	}
	lo, hi := 0, len(run)
	for lo < hi && !hasText(run[lo]) {
		lo++
	}
	for hi > lo && !hasText(run[hi-1]) {
		hi--
	}
	core := run[lo:hi]
	content := Render(core, t.mode)
	term := strings.TrimSpace(content)
	if term == "" {
		return run
	}
	trans, ok := t.lookup(term)
	if !ok || trans == "" || trans == term {
		return run
	}
	result := strings.Replace(content, term, trans, 1)
	replaced, ok := t.reparse(result)
	if !ok {
		return run
	}
	t.changed = true
	out := make([]*Node, 0, len(run)-len(core)+len(replaced))
	out = append(out, run[:lo]...)
	out = append(out, replaced...)
	return append(out, run[hi:]...)
}

// reparse turns a translated term back into nodes. A translation that does
// not parse becomes plain text. A translation that would introduce block
// markup or leave no visible text is rejected.
func (t *translator) reparse(s string) ([]*Node, bool) {
	var res ParseResult
	if t.mode == XML {
		res = ParseXML(s)
	} else {
		res = ParseHTML(s)
	}
	var nodes []*Node
	switch r := res.(type) {
	case Ok:
		nodes = r.Nodes
	case Malformed:
		nodes = []*Node{{Type: TextNode, Data: s}}
	}
	if !allInline(nodes) || !anyText(nodes) {
		return nil, false
	}
	return nodes, true
}

func (t *translator) translateAttrs(n *Node) {
	for i, a := range n.Attr {
		if !isTranslatedAttr(n, a.Key) {
			continue
		}
		term := strings.TrimSpace(a.Val)
		if term == "" {
			continue
		}
		trans, ok := t.lookup(term)
		if !ok || trans == "" || trans == term {
			continue
		}
		n.Attr[i].Val = strings.Replace(a.Val, term, trans, 1)
		t.changed = true
	}
}

// translateNodes translates top-level nodes as the content of an anonymous
// block and reports whether anything changed.
func translateNodes(lookup Lookup, nodes []*Node, mode Mode) ([]*Node, bool) {
	for _, n := range nodes {
		if n.Type == TextNode && strings.TrimSpace(n.Data) == "" {
			continue
		}
		if n.Type == DirectiveNode && strings.HasPrefix(strings.ToUpper(n.Data), "DOCTYPE") {
			return nodes, false
		}
		break
	}
	t := &translator{lookup: lookup, mode: mode}
	root := &Node{Type: ElementNode, Children: nodes}
	t.process(root)
	return root.Children, t.changed
}

// XMLTranslate translates the terms of an XML value. Values that are not
// well-formed XML are retried as an HTML fragment. When no term is replaced
// the value is returned unchanged, byte for byte.
func XMLTranslate(lookup Lookup, value string) (string, error) {
	if value == "" {
		return value, nil
	}
	var nodes []*Node
	switch r := ParseXML(value).(type) {
	case Ok:
		nodes = r.Nodes
	case Malformed:
		switch h := ParseHTML(value).(type) {
		case Ok:
			nodes = h.Nodes
		case Malformed:
			return value, &MalformedError{XML: r.Detail, HTML: h.Detail}
		}
	}
	nodes, changed := translateNodes(lookup, nodes, XML)
	if !changed {
		return value, nil
	}
	return Render(nodes, XML), nil
}

// HTMLTranslate translates the terms of an HTML value. A value that cannot
// be parsed is logged and returned unchanged.
func HTMLTranslate(lookup Lookup, value string) (string, error) {
	if value == "" {
		return value, nil
	}
	var nodes []*Node
	switch r := ParseHTML(value).(type) {
	case Ok:
		nodes = r.Nodes
	case Malformed:
		logrus.WithField("detail", r.Detail).Error("cannot translate malformed HTML, keeping source")
		return value, nil
	}
	nodes, changed := translateNodes(lookup, nodes, HTML)
	if !changed {
		return value, nil
	}
	return Render(nodes, HTML), nil
}

// Terms returns the terms of value in document order, as the translate
// function would look them up.
func Terms(translate TranslateFunc, value string) []string {
	var terms []string
	translate(func(term string) (string, bool) {
		terms = append(terms, term)
		return "", false
	}, value)
	return terms
}

// TextContent returns the text of a term with its markup removed.
func TextContent(term string) string {
	if !strings.ContainsAny(term, "<&") {
		return term
	}
	if r, ok := ParseHTML(term).(Ok); ok {
		return textContent(r.Nodes)
	}
	return term
}

// Package markup translates the human-readable text of XML and HTML
// documents term by term, keeping the structure of the document intact.
//
// A term is the smallest run of text and inline markup that must be
// translated as a whole, for example "Blah <i>blah</i> blah". Block elements
// and translatable attributes delimit terms.
package markup

import (
	"strings"
)

// NodeType identifies the kind of a Node.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
	CommentNode
	ProcInstNode
	DirectiveNode
)

// Attr is an element attribute. Key keeps any namespace prefix verbatim.
type Attr struct {
	Key string
	Val string
}

// Node is a markup tree node. Text lives in TextNode children, so mixed
// content is an ordered list of text and element siblings.
type Node struct {
	Type     NodeType
	Data     string
	Attr     []Attr
	Children []*Node
}

// Get returns the value of an attribute.
func (n *Node) Get(key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Mode selects the serialization dialect.
type Mode int

const (
	// XML writes empty elements as <tag/>.
	XML Mode = iota
	// HTML writes void elements as <tag> and leaves script and style raw.
	HTML
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "keygen": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

var rawTextElements = map[string]bool{"script": true, "style": true}

// Render serializes a list of sibling nodes.
func Render(nodes []*Node, mode Mode) string {
	var b strings.Builder
	for _, n := range nodes {
		render(&b, n, mode, false)
	}
	return b.String()
}

func render(b *strings.Builder, n *Node, mode Mode, raw bool) {
	switch n.Type {
	case TextNode:
		if raw {
			b.WriteString(n.Data)
		} else {
			b.WriteString(escapeText(n.Data))
		}
	case CommentNode:
		b.WriteString("<!--" + n.Data + "-->")
	case ProcInstNode:
		b.WriteString("<?" + n.Data + "?>")
	case DirectiveNode:
		b.WriteString("<!" + n.Data + ">")
	case ElementNode:
		b.WriteString("<" + n.Data)
		for _, a := range n.Attr {
			b.WriteString(" " + a.Key + `="` + escapeAttr(a.Val) + `"`)
		}
		if len(n.Children) == 0 {
			switch {
			case mode == XML:
				b.WriteString("/>")
				return
			case voidElements[n.Data]:
				b.WriteString(">")
				return
			}
		}
		b.WriteString(">")
		childRaw := mode == HTML && rawTextElements[n.Data]
		for _, c := range n.Children {
			render(b, c, mode, childRaw)
		}
		b.WriteString("</" + n.Data + ">")
	}
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;", "\n", "&#10;", "\t", "&#9;")
)

func escapeText(s string) string { return textEscaper.Replace(s) }
func escapeAttr(s string) string { return attrEscaper.Replace(s) }

// textContent returns the concatenated text of the nodes, markup removed.
func textContent(nodes []*Node) string {
	var b strings.Builder
	var walk func(ns []*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			switch n.Type {
			case TextNode:
				b.WriteString(n.Data)
			case ElementNode:
				walk(n.Children)
			}
		}
	}
	walk(nodes)
	return b.String()
}

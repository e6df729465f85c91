package markup

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseResult is the outcome of parsing a document: either Ok or Malformed.
type ParseResult interface {
	parseResult()
}

// Ok holds the top-level nodes of a successfully parsed document.
type Ok struct {
	Nodes []*Node
}

// Malformed reports why a document could not be parsed.
type Malformed struct {
	Detail string
}

func (Ok) parseResult()        {}
func (Malformed) parseResult() {}

// MalformedError is returned when a value parses neither as XML nor as HTML.
type MalformedError struct {
	XML  string
	HTML string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("markup: cannot parse value as XML (%s) or HTML (%s)", e.XML, e.HTML)
}

// ParseXML parses well-formed XML content. Several top-level nodes are
// accepted, namespace prefixes are kept as written.
func ParseXML(s string) ParseResult {
	dec := xml.NewDecoder(strings.NewReader(s))
	dec.Strict = true
	root := &Node{Type: ElementNode}
	stack := []*Node{root}
	appendChild := func(n *Node) {
		top := stack[len(stack)-1]
		top.Children = append(top.Children, n)
	}
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Malformed{Detail: err.Error()}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Type: ElementNode, Data: qualified(t.Name)}
			for _, a := range t.Attr {
				n.Attr = append(n.Attr, Attr{Key: qualified(a.Name), Val: a.Value})
			}
			appendChild(n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 1 || stack[len(stack)-1].Data != qualified(t.Name) {
				return Malformed{Detail: fmt.Sprintf("unexpected end element </%s>", qualified(t.Name))}
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			top := stack[len(stack)-1]
			if k := len(top.Children); k > 0 && top.Children[k-1].Type == TextNode {
				top.Children[k-1].Data += string(t)
			} else {
				appendChild(&Node{Type: TextNode, Data: string(t)})
			}
		case xml.Comment:
			appendChild(&Node{Type: CommentNode, Data: string(t)})
		case xml.ProcInst:
			data := t.Target
			if len(t.Inst) > 0 {
				data += " " + string(t.Inst)
			}
			appendChild(&Node{Type: ProcInstNode, Data: data})
		case xml.Directive:
			appendChild(&Node{Type: DirectiveNode, Data: string(t)})
		}
	}
	if len(stack) != 1 {
		return Malformed{Detail: fmt.Sprintf("unclosed element <%s>", stack[len(stack)-1].Data)}
	}
	return Ok{Nodes: root.Children}
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// ParseHTML parses an HTML fragment in the context of a <div>.
func ParseHTML(s string) ParseResult {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	frag, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return Malformed{Detail: err.Error()}
	}
	nodes := make([]*Node, 0, len(frag))
	for _, h := range frag {
		if n := fromHTML(h); n != nil {
			nodes = append(nodes, n)
		}
	}
	return Ok{Nodes: nodes}
}

func fromHTML(h *html.Node) *Node {
	var n *Node
	switch h.Type {
	case html.TextNode:
		return &Node{Type: TextNode, Data: h.Data}
	case html.CommentNode:
		return &Node{Type: CommentNode, Data: h.Data}
	case html.DoctypeNode:
		return &Node{Type: DirectiveNode, Data: "DOCTYPE " + h.Data}
	case html.ElementNode:
		n = &Node{Type: ElementNode, Data: h.Data}
		for _, a := range h.Attr {
			key := a.Key
			if a.Namespace != "" {
				key = a.Namespace + ":" + key
			}
			n.Attr = append(n.Attr, Attr{Key: key, Val: a.Val})
		}
	default:
		return nil
	}
	for c := h.FirstChild; c != nil; c = c.NextSibling {
		if child := fromHTML(c); child != nil {
			n.Children = append(n.Children, child)
		}
	}
	return n
}

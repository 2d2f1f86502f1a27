// Package xml wraps xmlquery/xpath with the small navigation surface the
// ReqIF parser needs: element lookup by XPath, attribute access and
// text/markup extraction.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by Go's xml.Decoder,
//     which xmlquery uses internally and which never fetches external
//     entities.
package xml

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML element node.
type Node struct {
	node *xmlquery.Node
}

// compiled caches XPath expressions; parsers share them across goroutines.
var compiled sync.Map // map[string]*xpath.Expr

func compile(expr string) (*xpath.Expr, error) {
	if e, ok := compiled.Load(expr); ok {
		return e.(*xpath.Expr), nil
	}
	e, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	compiled.Store(expr, e)
	return e, nil
}

// Parse parses XML text and returns a Document.
func Parse(text string) (*Document, error) {
	root, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query against the document.
func (d *Document) XPath(expr string) ([]*Node, error) {
	return (&Node{node: d.root}).XPath(expr)
}

// XPath executes an XPath query relative to the node.
func (n *Node) XPath(expr string) ([]*Node, error) {
	e, err := compile(expr)
	if err != nil {
		return nil, err
	}
	if n == nil || n.node == nil {
		return nil, nil
	}
	nodes := xmlquery.QuerySelectorAll(n.node, e)
	result := make([]*Node, 0, len(nodes))
	for _, m := range nodes {
		result = append(result, &Node{node: m})
	}
	return result, nil
}

// Find is XPath for expressions known to be valid at compile time; an
// invalid expression panics.
func (n *Node) Find(expr string) []*Node {
	nodes, err := n.XPath(expr)
	if err != nil {
		panic(err)
	}
	return nodes
}

// FindOne returns the first node matching expr, or nil.
func (n *Node) FindOne(expr string) *Node {
	e, err := compile(expr)
	if err != nil {
		panic(err)
	}
	if n == nil || n.node == nil {
		return nil
	}
	m := xmlquery.QuerySelector(n.node, e)
	if m == nil {
		return nil
	}
	return &Node{node: m}
}

// Name returns the element's local name.
func (n *Node) Name() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Data
}

// Prefix returns the element's namespace prefix, if any.
func (n *Node) Prefix() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.Prefix
}

// Attr returns the value of a specific attribute.
func (n *Node) Attr(name string) string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

// HasAttr reports whether the attribute is present, even if empty.
func (n *Node) HasAttr(name string) bool {
	if n == nil || n.node == nil {
		return false
	}
	for _, a := range n.node.Attr {
		if a.Name.Local == name {
			return true
		}
	}
	return false
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	if n == nil || n.node == nil {
		return nil
	}
	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Child returns the first child element with the given local name.
func (n *Node) Child(name string) *Node {
	if n == nil || n.node == nil {
		return nil
	}
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == name {
			return &Node{node: child}
		}
	}
	return nil
}

// Text returns the trimmed text content of the node and its descendants.
func (n *Node) Text() string {
	return strings.TrimSpace(n.InnerText())
}

// InnerText returns all text content of the node and its descendants.
func (n *Node) InnerText() string {
	if n == nil || n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// InnerXML returns the inner XML of the node.
func (n *Node) InnerXML() string {
	if n == nil || n.node == nil {
		return ""
	}
	var buf bytes.Buffer
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		buf.WriteString(child.OutputXML(true))
	}
	return buf.String()
}

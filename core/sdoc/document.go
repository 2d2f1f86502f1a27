// Package sdoc converts a ReqIF bundle into StrictDoc-style documents.
//
// The converter is strict on purpose: it refuses the constructs the
// target schema cannot hold (non-text attribute kinds, unnamed object
// types, colliding field names, blank values and dangling references)
// with a ConversionRejectedError. Field names are produced by the
// versioned mapping in fields.go.
package sdoc

import (
	"bytes"
	"encoding/json"
)

// Document is one specification rendered in the target schema.
type Document struct {
	Title      string
	Grammar    Grammar
	Options    Options
	Nodes      []*Node
	SourceFile string // archive member the document came from, if any
}

// Grammar declares the node types used by a document.
type Grammar struct {
	Elements []*Element `json:"ELEMENTS"`
}

// Element is one node type and its fields.
type Element struct {
	NodeType  string     `json:"NODE_TYPE"`
	Fields    []Field    `json:"FIELDS"`
	Relations []Relation `json:"RELATIONS"`
}

func (e *Element) hasField(title string) bool {
	for _, f := range e.Fields {
		if f.Title == title {
			return true
		}
	}
	return false
}

// Field declares one grammar field. Every field is an optional string.
type Field struct {
	Title    string `json:"TITLE"`
	Required string `json:"REQUIRED"`
	Type     string `json:"TYPE"`
}

// Relation is a grammar relation kind or, on a node, one outgoing link.
type Relation struct {
	Type  string `json:"TYPE"`
	Value string `json:"VALUE,omitempty"`
}

// Options are the document-level rendering options.
type Options struct {
	Markup    string `json:"MARKUP"`
	EnableMID bool   `json:"ENABLE_MID"`
}

// Keys a node writes for its own structure.
const (
	KeyTOC       = "_TOC"
	KeyNodeType  = "_NODE_TYPE"
	KeyRelations = "RELATIONS"
	KeyNodes     = "NODES"
)

// StructuralKeys lists the node keys no attribute field may use.
var StructuralKeys = []string{KeyTOC, KeyNodeType, KeyRelations, KeyNodes}

// IsStructuralKey reports whether key is written by the node itself.
func IsStructuralKey(key string) bool {
	for _, k := range StructuralKeys {
		if k == key {
			return true
		}
	}
	return false
}

// FieldValue is one populated field of a node.
type FieldValue struct {
	Name  string
	Value string
}

// Node is one requirement in the document tree.
type Node struct {
	TOC       string
	NodeType  string
	Fields    []FieldValue
	Relations []Relation
	Nodes     []*Node
}

// Field returns the value of the named field.
func (n *Node) Field(name string) (string, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

type member struct {
	key   string
	value any
}

// marshalObject writes members as a JSON object in the given order.
func marshalObject(members []member) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(m.value)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON renders the document with its keys in schema order.
func (d *Document) MarshalJSON() ([]byte, error) {
	nodes := d.Nodes
	if nodes == nil {
		nodes = []*Node{}
	}
	members := []member{
		{"_NODE_TYPE", "DOCUMENT"},
		{"TITLE", d.Title},
		{"GRAMMAR", d.Grammar},
		{"_OPTIONS", d.Options},
		{"NODES", nodes},
	}
	if d.SourceFile != "" {
		members = append(members, member{"_SOURCE_FILE", d.SourceFile})
	}
	return marshalObject(members)
}

// MarshalJSON renders the node with its fields in definition order.
func (n *Node) MarshalJSON() ([]byte, error) {
	members := make([]member, 0, len(n.Fields)+4)
	members = append(members, member{KeyTOC, n.TOC}, member{KeyNodeType, n.NodeType})
	for _, f := range n.Fields {
		members = append(members, member{f.Name, f.Value})
	}
	if len(n.Relations) > 0 {
		members = append(members, member{KeyRelations, n.Relations})
	}
	if len(n.Nodes) > 0 {
		members = append(members, member{KeyNodes, n.Nodes})
	}
	return marshalObject(members)
}

// CountNodes counts every node of every document, nested ones included.
func CountNodes(docs []*Document) int {
	count := 0
	var stack []*Node
	for _, d := range docs {
		stack = append(stack, d.Nodes...)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, n.Nodes...)
	}
	return count
}

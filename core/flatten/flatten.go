// Package flatten turns a ReqIF bundle into a flat list of requirements
// and the hierarchy links between them.
//
// The primary path walks every specification's hierarchy. When that
// yields nothing but the bundle still has spec objects (no
// specifications, or hierarchies pruned to nothing), every spec object
// is emitted directly instead so the data is not lost.
package flatten

import (
	"html"
	"regexp"
	"strings"

	"github.com/FocuswithJustin/reqifnorm/core/reqif"
)

// LinkHierarchy is the only link kind produced today.
const LinkHierarchy = "hierarchy"

// Well-known ReqIF attribute names used to derive requirement fields.
const (
	AttrChapterName = "ReqIF.ChapterName"
	AttrText        = "ReqIF.Text"
	AttrForeignID   = "ReqIF.ForeignID"
)

// Requirement is one flattened node or spec object.
type Requirement struct {
	ID         string         `json:"id"`
	ForeignID  string         `json:"foreign_id,omitempty"`
	OriginID   string         `json:"origin_id,omitempty"`
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"`
	LastChange string         `json:"last_change,omitempty"`
	Attributes map[string]any `json:"attributes"`
	SourceFile string         `json:"source_file,omitempty"`
}

// Link is a directed parent to child edge.
type Link struct {
	Source     string `json:"source"`
	Type       string `json:"type"`
	Target     string `json:"target"`
	SourceFile string `json:"source_file,omitempty"`
}

// Result is the flattened form of one bundle.
type Result struct {
	Requirements []*Requirement `json:"requirements"`
	Links        []*Link        `json:"links"`
}

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// CleanHTML removes markup tags, resolves entities and collapses runs
// of whitespace.
func CleanHTML(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

// Flatten produces the requirements and links of b. The result is never
// empty when b has at least one spec object.
func Flatten(b *reqif.Bundle) *Result {
	f := &flattener{
		b:    b,
		res:  &Result{Requirements: []*Requirement{}, Links: []*Link{}},
		seen: make(map[string]bool),
	}
	if b == nil {
		return f.res
	}

	for _, spec := range b.Specifications {
		f.walk(spec)
	}
	if len(f.res.Requirements) == 0 {
		for _, obj := range b.SpecObjects {
			f.emit(f.requirement(obj, nil))
		}
	}
	return f.res
}

type flattener struct {
	b    *reqif.Bundle
	res  *Result
	seen map[string]bool
}

func (f *flattener) emit(r *Requirement) {
	if r == nil || f.seen[r.ID] {
		return
	}
	f.seen[r.ID] = true
	f.res.Requirements = append(f.res.Requirements, r)
}

// walk visits a specification depth-first in document order. Nodes whose
// spec object is missing produce no requirement, but their edges are
// still linked.
func (f *flattener) walk(spec *reqif.Specification) {
	type visit struct {
		node   *reqif.HierarchyNode
		parent *reqif.HierarchyNode
	}
	stack := make([]visit, 0, len(spec.Children))
	for i := len(spec.Children) - 1; i >= 0; i-- {
		stack = append(stack, visit{node: spec.Children[i]})
	}

	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		h := v.node

		if obj := f.b.SpecObject(h.ObjectRef); obj != nil {
			f.emit(f.requirement(obj, h))
		}
		if v.parent != nil {
			f.res.Links = append(f.res.Links, &Link{Source: v.parent.Identifier, Type: LinkHierarchy, Target: h.Identifier})
		}
		for i := len(h.Children) - 1; i >= 0; i-- {
			stack = append(stack, visit{node: h.Children[i], parent: h})
		}
	}
}

// requirement builds the requirement for obj, placed at node h, or for
// the bare object when h is nil.
func (f *flattener) requirement(obj *reqif.SpecObject, h *reqif.HierarchyNode) *Requirement {
	r := &Requirement{ID: obj.Identifier, LastChange: obj.LastChange, Attributes: make(map[string]any, len(obj.Attributes))}
	display := obj.LongName
	if h != nil {
		r.ID = h.Identifier
		r.OriginID = obj.Identifier
		if h.LastChange != "" {
			r.LastChange = h.LastChange
		}
		if h.LongName != "" {
			display = h.LongName
		}
	}

	if t := f.b.SpecType(obj.TypeRef); t != nil {
		r.Type = t.LongName
		if r.Type == "" {
			r.Type = t.Identifier
		}
	}

	raw := make(map[string]reqif.Value, len(obj.Attributes))
	for _, a := range obj.Attributes {
		name := a.DefinitionRef
		def := f.b.DefinitionFor(obj, a)
		if def != nil && def.LongName != "" {
			name = def.LongName
		}
		raw[name] = a.Value
		r.Attributes[name] = f.value(def, a.Value)
	}

	if v, ok := raw[AttrForeignID]; ok {
		r.ForeignID = plain(v)
	}
	r.Name = deriveName(raw, display)
	return r
}

func (f *flattener) value(def *reqif.AttributeDefinition, v reqif.Value) any {
	switch v.Kind {
	case reqif.ValueNone:
		return nil
	case reqif.ValueXHTML:
		return v.Stripped
	case reqif.ValueBool:
		return v.Bool
	case reqif.ValueInteger:
		return v.Int
	case reqif.ValueReal:
		return v.Real
	case reqif.ValueEnum:
		return f.b.EnumNames(def, v.Enum)
	}
	return v.Str
}

// plain is the text of a value with rich text reduced to its projection.
func plain(v reqif.Value) string {
	if v.Kind == reqif.ValueXHTML {
		return v.Stripped
	}
	return v.Text()
}

// deriveName picks, in order: the chapter name, the markup-stripped
// text, the display name.
func deriveName(raw map[string]reqif.Value, display string) string {
	if v, ok := raw[AttrChapterName]; ok {
		if name := strings.TrimSpace(plain(v)); name != "" {
			return name
		}
	}
	if v, ok := raw[AttrText]; ok {
		if name := CleanHTML(v.Text()); name != "" {
			return name
		}
	}
	return display
}

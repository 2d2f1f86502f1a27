package sdoc

import (
	"fmt"
	"strconv"
	"strings"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/reqif"
)

// ErrNoSpecifications is the rejection message for a bundle without documents.
const ErrNoSpecifications = "No specifications found in ReqIF file"

// Relation and option defaults of every generated document.
const (
	ParentRelation = "Parent"
	DefaultMarkup  = "HTML"
)

var supportedKinds = map[reqif.AttributeKind]bool{
	reqif.KindString: true,
	reqif.KindXHTML:  true,
	reqif.KindEnum:   true,
}

// Converter maps a bundle onto the target schema, one Document per
// specification. The zero value is ready to use.
type Converter struct{}

// Convert renders every specification of b or rejects the bundle.
func (c Converter) Convert(b *reqif.Bundle) ([]*Document, error) {
	if b == nil || len(b.Specifications) == 0 {
		return nil, rerrors.NewRejected("", "", ErrNoSpecifications)
	}
	if err := checkTypes(b); err != nil {
		return nil, err
	}
	if err := checkRelations(b); err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(b.Specifications))
	for _, spec := range b.Specifications {
		doc, err := c.document(b, spec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func checkTypes(b *reqif.Bundle) error {
	for _, t := range b.SpecTypes {
		if t.Category != reqif.CategorySpecObject {
			continue
		}
		if strings.TrimSpace(t.LongName) == "" {
			return rerrors.NewRejected("spec type", t.Identifier, "missing name")
		}
		seen := make(map[string]bool, len(t.Definitions))
		for _, d := range t.Definitions {
			if !supportedKinds[d.Kind] {
				return rerrors.NewRejected("attribute type", d.LongName, fmt.Sprintf("unsupported kind %s", d.Kind))
			}
			key := DefinitionKey(d)
			if key == "" {
				return rerrors.NewRejected("field name", d.Identifier, "empty field name")
			}
			if IsStructuralKey(key) {
				return rerrors.NewRejected("field name", key, fmt.Sprintf("reserved field in type %s", t.LongName))
			}
			if seen[key] {
				return rerrors.NewRejected("field name", key, fmt.Sprintf("duplicate field in type %s", t.LongName))
			}
			seen[key] = true
		}
	}
	return nil
}

func checkRelations(b *reqif.Bundle) error {
	for _, r := range b.SpecRelations {
		if b.SpecObject(r.Source) == nil {
			return rerrors.NewRejected("reference", r.Identifier, fmt.Sprintf("relation source %s not found", r.Source))
		}
		if b.SpecObject(r.Target) == nil {
			return rerrors.NewRejected("reference", r.Identifier, fmt.Sprintf("relation target %s not found", r.Target))
		}
		if r.TypeRef != "" && b.SpecType(r.TypeRef) == nil {
			return rerrors.NewRejected("reference", r.Identifier, fmt.Sprintf("relation type %s not found", r.TypeRef))
		}
	}
	return nil
}

func (c Converter) document(b *reqif.Bundle, spec *reqif.Specification) (*Document, error) {
	title := spec.LongName
	if strings.TrimSpace(title) == "" {
		title = spec.Identifier
	}
	doc := &Document{
		Title:   title,
		Options: Options{Markup: DefaultMarkup},
	}
	grammar := make(map[string]*Element)

	type frame struct {
		nodes []*reqif.HierarchyNode
		next  int
		into  *[]*Node
		toc   string
	}
	stack := []*frame{{nodes: spec.Children, into: &doc.Nodes}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if f.next >= len(f.nodes) {
			stack = stack[:len(stack)-1]
			continue
		}
		h := f.nodes[f.next]
		f.next++

		toc := strconv.Itoa(f.next)
		if f.toc != "" {
			toc = f.toc + "." + toc
		}
		node, t, err := c.node(b, h, toc)
		if err != nil {
			return nil, err
		}
		if _, ok := grammar[node.NodeType]; !ok {
			grammar[node.NodeType] = &Element{
				NodeType:  node.NodeType,
				Relations: []Relation{{Type: ParentRelation}},
			}
			doc.Grammar.Elements = append(doc.Grammar.Elements, grammar[node.NodeType])
		}
		addFields(grammar[node.NodeType], t, node)

		*f.into = append(*f.into, node)
		if len(h.Children) > 0 {
			stack = append(stack, &frame{nodes: h.Children, into: &node.Nodes, toc: toc})
		}
	}
	return doc, nil
}

func addFields(e *Element, t *reqif.SpecType, n *Node) {
	add := func(key string) {
		if !e.hasField(key) {
			e.Fields = append(e.Fields, Field{Title: key, Required: "False", Type: "String"})
		}
	}
	for _, d := range t.Definitions {
		add(DefinitionKey(d))
	}
	// Values bound to another type's definition.
	for _, f := range n.Fields {
		add(f.Name)
	}
}

func (c Converter) node(b *reqif.Bundle, h *reqif.HierarchyNode, toc string) (*Node, *reqif.SpecType, error) {
	obj := b.SpecObject(h.ObjectRef)
	if obj == nil {
		return nil, nil, rerrors.NewRejected("reference", h.Identifier, fmt.Sprintf("spec object %s not found", h.ObjectRef))
	}
	t := b.SpecType(obj.TypeRef)
	if t == nil {
		return nil, nil, rerrors.NewRejected("reference", obj.Identifier, fmt.Sprintf("spec type %s not found", obj.TypeRef))
	}

	values := make(map[string]string, len(obj.Attributes))
	var foreign []FieldValue
	for _, a := range obj.Attributes {
		def := b.DefinitionFor(obj, a)
		if def == nil {
			return nil, nil, rerrors.NewRejected("reference", obj.Identifier, fmt.Sprintf("attribute definition %s not found", a.DefinitionRef))
		}
		if !supportedKinds[a.Kind] || !supportedKinds[def.Kind] {
			return nil, nil, rerrors.NewRejected("attribute type", def.LongName, fmt.Sprintf("unsupported kind %s", a.Kind))
		}
		if a.Value.Blank() {
			return nil, nil, rerrors.NewRejected("attribute value", obj.Identifier, fmt.Sprintf("empty value for %s", def.LongName))
		}
		text := valueText(b, def, a.Value)
		if t.Definition(def.Identifier) == nil {
			foreign = append(foreign, FieldValue{Name: DefinitionKey(def), Value: text})
			continue
		}
		values[def.Identifier] = text
	}

	node := &Node{TOC: toc, NodeType: SafeFieldName(t.LongName)}
	taken := make(map[string]bool, len(t.Definitions)+len(StructuralKeys))
	for _, k := range StructuralKeys {
		taken[k] = true
	}
	for _, d := range t.Definitions {
		key := DefinitionKey(d)
		taken[key] = true
		if v, ok := values[d.Identifier]; ok {
			node.Fields = append(node.Fields, FieldValue{Name: key, Value: v})
		}
	}
	// A foreign value never shadows a field of the node's own type or
	// an earlier foreign value.
	for _, f := range foreign {
		if taken[f.Name] {
			continue
		}
		taken[f.Name] = true
		node.Fields = append(node.Fields, f)
	}

	for _, target := range b.RelationIndex[obj.Identifier] {
		node.Relations = append(node.Relations, Relation{Type: ParentRelation, Value: target})
	}
	return node, t, nil
}

func valueText(b *reqif.Bundle, def *reqif.AttributeDefinition, v reqif.Value) string {
	if v.Kind == reqif.ValueEnum {
		return strings.Join(b.EnumNames(def, v.Enum), ", ")
	}
	return v.Text()
}

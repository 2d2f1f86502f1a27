package reqif

import (
	"fmt"
	"strconv"
	"strings"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/preprocess"
	"github.com/FocuswithJustin/reqifnorm/core/xml"
)

// RootTag is the element every ReqIF document must start with.
const RootTag = "REQ-IF"

// Parser turns ReqIF bytes into a Bundle.
type Parser struct {
	// SkipPreprocess disables the text repairs applied before parsing.
	SkipPreprocess bool
}

// Parse decodes, optionally preprocesses and parses a ReqIF document.
// Every failure is a *errors.MalformedInputError.
func (p Parser) Parse(data []byte) (*Bundle, error) {
	text, err := preprocess.Decode(data)
	if err != nil {
		return nil, err
	}
	if !p.SkipPreprocess {
		text = preprocess.Preprocess(text)
	}
	return ParseString(text)
}

// ParseString parses already decoded ReqIF text without any repairs.
func ParseString(text string) (*Bundle, error) {
	doc, err := xml.Parse(text)
	if err != nil {
		return nil, rerrors.NewMalformed("", "", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, rerrors.NewMalformed("", "document has no root element", nil)
	}
	if root.Name() != RootTag {
		return nil, rerrors.NewMalformed("", fmt.Sprintf("Expected root tag %s, got %s", RootTag, root.Name()), nil)
	}

	b := &Bundle{Header: parseHeader(root.FindOne("THE-HEADER/REQ-IF-HEADER"))}

	content := root.FindOne("CORE-CONTENT/REQ-IF-CONTENT")
	if content != nil {
		b.Datatypes = parseDatatypes(content)
		b.SpecTypes = parseSpecTypes(content)
		if b.SpecObjects, err = parseSpecObjects(content); err != nil {
			return nil, err
		}
		b.SpecRelations = parseRelations(content)
		b.Specifications = parseSpecifications(content)
	}

	b.Reindex()
	return b, nil
}

func parseHeader(h *xml.Node) Header {
	return Header{
		Identifier:   h.Attr("IDENTIFIER"),
		Title:        h.Child("TITLE").Text(),
		Comment:      h.Child("COMMENT").Text(),
		CreationTime: h.Child("CREATION-TIME").Text(),
		SourceToolID: h.Child("SOURCE-TOOL-ID").Text(),
		ReqIFToolID:  h.Child("REQ-IF-TOOL-ID").Text(),
		Version:      h.Child("REQ-IF-VERSION").Text(),
	}
}

var kinds = []AttributeKind{KindString, KindBoolean, KindInteger, KindReal, KindDate, KindEnum, KindXHTML}

// kindOf maps an element name like ATTRIBUTE-VALUE-STRING to its kind.
// Unknown suffixes are returned verbatim so the workaround engine can see
// and coerce them.
func kindOf(element, prefix string) (AttributeKind, bool) {
	suffix, ok := strings.CutPrefix(element, prefix)
	if !ok || suffix == "" {
		return "", false
	}
	for _, k := range kinds {
		if string(k) == suffix {
			return k, true
		}
	}
	return AttributeKind(suffix), true
}

func parseDatatypes(content *xml.Node) []*Datatype {
	var out []*Datatype
	for _, el := range content.Find("DATATYPES/*") {
		kind, ok := kindOf(el.Name(), "DATATYPE-DEFINITION-")
		if !ok {
			continue
		}
		dt := &Datatype{
			Identifier: el.Attr("IDENTIFIER"),
			LongName:   el.Attr("LONG-NAME"),
			Kind:       kind,
		}
		for _, v := range el.Find("SPECIFIED-VALUES/ENUM-VALUE") {
			dt.EnumValues = append(dt.EnumValues, EnumValue{
				Identifier: v.Attr("IDENTIFIER"),
				LongName:   v.Attr("LONG-NAME"),
				Key:        v.FindOne("PROPERTIES/EMBEDDED-VALUE").Attr("KEY"),
			})
		}
		out = append(out, dt)
	}
	return out
}

func parseSpecTypes(content *xml.Node) []*SpecType {
	var out []*SpecType
	for _, el := range content.Find("SPEC-TYPES/*") {
		category := TypeCategory(el.Name())
		switch category {
		case CategorySpecObject, CategorySpecification, CategorySpecRelation, CategoryRelationGroup:
		default:
			continue
		}
		t := &SpecType{
			Identifier: el.Attr("IDENTIFIER"),
			LongName:   el.Attr("LONG-NAME"),
			Category:   category,
			LastChange: el.Attr("LAST-CHANGE"),
		}
		for _, d := range el.Find("SPEC-ATTRIBUTES/*") {
			kind, ok := kindOf(d.Name(), "ATTRIBUTE-DEFINITION-")
			if !ok {
				continue
			}
			t.Definitions = append(t.Definitions, &AttributeDefinition{
				Identifier:  d.Attr("IDENTIFIER"),
				LongName:    d.Attr("LONG-NAME"),
				Kind:        kind,
				DatatypeRef: d.FindOne("TYPE/*").Text(),
			})
		}
		out = append(out, t)
	}
	return out
}

func parseSpecObjects(content *xml.Node) ([]*SpecObject, error) {
	var out []*SpecObject
	for _, el := range content.Find("SPEC-OBJECTS/SPEC-OBJECT") {
		obj := &SpecObject{
			Identifier: el.Attr("IDENTIFIER"),
			LongName:   el.Attr("LONG-NAME"),
			LastChange: el.Attr("LAST-CHANGE"),
			TypeRef:    el.FindOne("TYPE/SPEC-OBJECT-TYPE-REF").Text(),
		}
		for _, v := range el.Find("VALUES/*") {
			attr, err := parseAttribute(v)
			if err != nil {
				return nil, rerrors.NewMalformed("", fmt.Sprintf("spec object %s: %v", obj.Identifier, err), nil)
			}
			if attr != nil {
				obj.Attributes = append(obj.Attributes, attr)
			}
		}
		out = append(out, obj)
	}
	return out, nil
}

func parseAttribute(el *xml.Node) (*Attribute, error) {
	kind, ok := kindOf(el.Name(), "ATTRIBUTE-VALUE-")
	if !ok {
		return nil, nil
	}
	attr := &Attribute{
		DefinitionRef: el.FindOne("DEFINITION/*").Text(),
		Kind:          kind,
	}

	raw := el.Attr("THE-VALUE")
	present := el.HasAttr("THE-VALUE")

	switch kind {
	case KindString:
		if present {
			attr.Value = StringValue(raw)
		}
	case KindDate:
		if present {
			attr.Value = DateValue(raw)
		}
	case KindBoolean:
		if present {
			b, err := parseBool(raw)
			if err != nil {
				return nil, err
			}
			attr.Value = BoolValue(b)
		}
	case KindInteger:
		if present {
			i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid INTEGER value %q", raw)
			}
			attr.Value = IntValue(i)
		}
	case KindReal:
		if present {
			f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid REAL value %q", raw)
			}
			attr.Value = RealValue(f)
		}
	case KindEnum:
		var ids []string
		for _, ref := range el.Find("VALUES/ENUM-VALUE-REF") {
			ids = append(ids, ref.Text())
		}
		attr.Value = EnumValues(ids...)
	case KindXHTML:
		if v := el.Child("THE-VALUE"); v != nil {
			attr.Value = XHTMLValue(strings.TrimSpace(v.InnerXML()), StripMarkup(v.InnerText()))
		}
	default:
		// Non-standard kinds keep their lexical value for later coercion.
		if present {
			attr.Value = StringValue(raw)
		} else if v := el.Child("THE-VALUE"); v != nil {
			attr.Value = StringValue(StripMarkup(v.InnerText()))
		}
	}
	return attr, nil
}

// parseBool accepts the xsd:boolean lexical forms.
func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid BOOLEAN value %q", s)
}

// StripMarkup collapses the whitespace of extracted rich text.
func StripMarkup(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func parseRelations(content *xml.Node) []*SpecRelation {
	var out []*SpecRelation
	for _, el := range content.Find("SPEC-RELATIONS/SPEC-RELATION") {
		out = append(out, &SpecRelation{
			Identifier: el.Attr("IDENTIFIER"),
			Source:     el.FindOne("SOURCE/SPEC-OBJECT-REF").Text(),
			Target:     el.FindOne("TARGET/SPEC-OBJECT-REF").Text(),
			TypeRef:    el.FindOne("TYPE/SPEC-RELATION-TYPE-REF").Text(),
		})
	}
	return out
}

func parseSpecifications(content *xml.Node) []*Specification {
	type frame struct {
		el   *xml.Node
		into *[]*HierarchyNode
	}

	var out []*Specification
	for _, el := range content.Find("SPECIFICATIONS/SPECIFICATION") {
		spec := &Specification{
			Identifier: el.Attr("IDENTIFIER"),
			LongName:   el.Attr("LONG-NAME"),
			LastChange: el.Attr("LAST-CHANGE"),
			TypeRef:    el.FindOne("TYPE/SPECIFICATION-TYPE-REF").Text(),
		}

		// Deep exports nest thousands of levels; walk with an explicit stack.
		stack := []frame{{el, &spec.Children}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, c := range f.el.Find("CHILDREN/SPEC-HIERARCHY") {
				h := &HierarchyNode{
					Identifier: c.Attr("IDENTIFIER"),
					LongName:   c.Attr("LONG-NAME"),
					LastChange: c.Attr("LAST-CHANGE"),
					ObjectRef:  c.FindOne("OBJECT/SPEC-OBJECT-REF").Text(),
				}
				*f.into = append(*f.into, h)
				stack = append(stack, frame{c, &h.Children})
			}
		}
		out = append(out, spec)
	}
	return out
}

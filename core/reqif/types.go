// Package reqif holds the typed in-memory graph of a ReqIF document
// (types, spec objects, hierarchy, relations) together with the parser
// that builds it from XML and the loader for multi-document archives.
//
// A Bundle is built once by the parser, repaired in place by the
// workaround engine, and then read by the converter and flattener.
// Nothing in this package is safe for concurrent mutation.
package reqif

import (
	"strconv"
	"strings"
)

// AttributeKind is the declared value kind of an attribute definition.
type AttributeKind string

// Attribute kinds, named after the ReqIF ATTRIBUTE-DEFINITION-* suffixes.
const (
	KindString  AttributeKind = "STRING"
	KindBoolean AttributeKind = "BOOLEAN"
	KindInteger AttributeKind = "INTEGER"
	KindReal    AttributeKind = "REAL"
	KindDate    AttributeKind = "DATE"
	KindEnum    AttributeKind = "ENUMERATION"
	KindXHTML   AttributeKind = "XHTML"
)

// TypeCategory distinguishes the four ReqIF spec type elements.
type TypeCategory string

// Spec type categories.
const (
	CategorySpecObject    TypeCategory = "SPEC-OBJECT-TYPE"
	CategorySpecification TypeCategory = "SPECIFICATION-TYPE"
	CategorySpecRelation  TypeCategory = "SPEC-RELATION-TYPE"
	CategoryRelationGroup TypeCategory = "RELATION-GROUP-TYPE"
)

// Header carries REQ-IF-HEADER metadata.
type Header struct {
	Identifier   string
	Title        string
	Comment      string
	CreationTime string
	SourceToolID string
	ReqIFToolID  string
	Version      string
}

// EnumValue is one specified value of an enumeration datatype.
type EnumValue struct {
	Identifier string
	LongName   string
	Key        string
}

// Datatype is a DATATYPE-DEFINITION-* entry.
type Datatype struct {
	Identifier string
	LongName   string
	Kind       AttributeKind
	EnumValues []EnumValue
}

// EnumValue returns the enumeration value with the given identifier.
func (d *Datatype) EnumValue(id string) (EnumValue, bool) {
	for _, v := range d.EnumValues {
		if v.Identifier == id {
			return v, true
		}
	}
	return EnumValue{}, false
}

// AttributeDefinition declares one field of a SpecType.
type AttributeDefinition struct {
	Identifier  string
	LongName    string
	Kind        AttributeKind
	DatatypeRef string
}

// SpecType is the schema shared by a set of spec objects, specifications
// or relations.
type SpecType struct {
	Identifier  string
	LongName    string
	Category    TypeCategory
	LastChange  string
	Definitions []*AttributeDefinition
}

// Definition returns the attribute definition with the given identifier.
func (t *SpecType) Definition(id string) *AttributeDefinition {
	for _, d := range t.Definitions {
		if d.Identifier == id {
			return d
		}
	}
	return nil
}

// ValueKind tags the payload held by a Value.
type ValueKind int

// Value kinds.
const (
	ValueNone ValueKind = iota
	ValueString
	ValueBool
	ValueInteger
	ValueReal
	ValueDate
	ValueEnum
	ValueXHTML
)

// Value is a kind-tagged attribute value. Exactly the payload matching
// Kind is meaningful: Str for string, date and XHTML (raw markup), Bool,
// Int, Real, and Enum (value identifiers). Stripped is the plain-text
// projection of XHTML content.
type Value struct {
	Kind     ValueKind
	Str      string
	Bool     bool
	Int      int64
	Real     float64
	Enum     []string
	Stripped string
}

// StringValue returns a string-kinded value.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// IntValue returns an integer value.
func IntValue(i int64) Value { return Value{Kind: ValueInteger, Int: i} }

// RealValue returns a real value.
func RealValue(f float64) Value { return Value{Kind: ValueReal, Real: f} }

// DateValue returns a date value holding its lexical xsd:dateTime form.
func DateValue(s string) Value { return Value{Kind: ValueDate, Str: s} }

// EnumValues returns an enumeration value referencing the given enum value ids.
func EnumValues(ids ...string) Value { return Value{Kind: ValueEnum, Enum: ids} }

// XHTMLValue returns a rich-text value with its stripped projection.
func XHTMLValue(markup, stripped string) Value {
	return Value{Kind: ValueXHTML, Str: markup, Stripped: stripped}
}

// IsNone reports whether the value carries nothing at all.
func (v Value) IsNone() bool { return v.Kind == ValueNone }

// IsString reports whether the value is stored as text.
func (v Value) IsString() bool { return v.Kind == ValueString }

// IsText reports whether the payload is a string: plain text, a date's
// lexical form or XHTML markup.
func (v Value) IsText() bool {
	return v.Kind == ValueString || v.Kind == ValueDate || v.Kind == ValueXHTML
}

// Blank reports whether the value is absent or whitespace-only text.
func (v Value) Blank() bool {
	return v.IsNone() || (v.IsText() && strings.TrimSpace(v.Str) == "")
}

// Text is the default string conversion of the value.
func (v Value) Text() string {
	switch v.Kind {
	case ValueString, ValueDate, ValueXHTML:
		return v.Str
	case ValueBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValueInteger:
		return strconv.FormatInt(v.Int, 10)
	case ValueReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case ValueEnum:
		if len(v.Enum) == 0 {
			return ""
		}
		out := v.Enum[0]
		for _, id := range v.Enum[1:] {
			out += ", " + id
		}
		return out
	}
	return ""
}

// Attribute is one value of a spec object.
type Attribute struct {
	DefinitionRef string
	Kind          AttributeKind
	Value         Value
}

// SpecObject is a single requirement-like record.
type SpecObject struct {
	Identifier string
	LongName   string
	TypeRef    string
	LastChange string
	Attributes []*Attribute
}

// HierarchyNode is a SPEC-HIERARCHY entry referencing a spec object.
type HierarchyNode struct {
	Identifier string
	LongName   string
	ObjectRef  string
	LastChange string
	Children   []*HierarchyNode
}

// Specification is a document: an ordered forest of hierarchy nodes.
type Specification struct {
	Identifier string
	LongName   string
	TypeRef    string
	LastChange string
	Children   []*HierarchyNode
}

// SpecRelation is a typed directed edge between two spec objects.
type SpecRelation struct {
	Identifier string
	Source     string
	Target     string
	TypeRef    string
}

// Bundle is one parsed ReqIF document.
type Bundle struct {
	Header         Header
	Datatypes      []*Datatype
	SpecTypes      []*SpecType
	SpecObjects    []*SpecObject
	Specifications []*Specification
	SpecRelations  []*SpecRelation

	// RelationIndex maps a relation source to its targets, in relation
	// order. It must mirror SpecRelations; call RebuildRelationIndex
	// after editing relations.
	RelationIndex map[string][]string

	objects   map[string]*SpecObject
	types     map[string]*SpecType
	datatypes map[string]*Datatype
}

// Reindex rebuilds the identifier lookups and the relation index.
func (b *Bundle) Reindex() {
	b.objects = make(map[string]*SpecObject, len(b.SpecObjects))
	for _, o := range b.SpecObjects {
		if _, dup := b.objects[o.Identifier]; !dup {
			b.objects[o.Identifier] = o
		}
	}
	b.types = make(map[string]*SpecType, len(b.SpecTypes))
	for _, t := range b.SpecTypes {
		if _, dup := b.types[t.Identifier]; !dup {
			b.types[t.Identifier] = t
		}
	}
	b.datatypes = make(map[string]*Datatype, len(b.Datatypes))
	for _, d := range b.Datatypes {
		if _, dup := b.datatypes[d.Identifier]; !dup {
			b.datatypes[d.Identifier] = d
		}
	}
	b.RebuildRelationIndex()
}

// RebuildRelationIndex recomputes RelationIndex from SpecRelations.
func (b *Bundle) RebuildRelationIndex() {
	b.RelationIndex = make(map[string][]string)
	for _, r := range b.SpecRelations {
		b.RelationIndex[r.Source] = append(b.RelationIndex[r.Source], r.Target)
	}
}

// SpecObject returns the spec object with the given identifier, or nil.
func (b *Bundle) SpecObject(id string) *SpecObject {
	if b.objects == nil {
		b.Reindex()
	}
	return b.objects[id]
}

// SpecType returns the spec type with the given identifier, or nil.
func (b *Bundle) SpecType(id string) *SpecType {
	if b.types == nil {
		b.Reindex()
	}
	return b.types[id]
}

// Datatype returns the datatype with the given identifier, or nil.
func (b *Bundle) Datatype(id string) *Datatype {
	if b.datatypes == nil {
		b.Reindex()
	}
	return b.datatypes[id]
}

// DefinitionFor resolves the attribute definition an attribute of obj
// refers to, searching the object's own type first.
func (b *Bundle) DefinitionFor(obj *SpecObject, attr *Attribute) *AttributeDefinition {
	if t := b.SpecType(obj.TypeRef); t != nil {
		if d := t.Definition(attr.DefinitionRef); d != nil {
			return d
		}
	}
	for _, t := range b.SpecTypes {
		if d := t.Definition(attr.DefinitionRef); d != nil {
			return d
		}
	}
	return nil
}

// EnumNames resolves enumeration value identifiers to their long names
// through the definition's datatype; unresolved ids are kept verbatim.
func (b *Bundle) EnumNames(def *AttributeDefinition, ids []string) []string {
	var dt *Datatype
	if def != nil {
		dt = b.Datatype(def.DatatypeRef)
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name := id
		if dt != nil {
			if v, ok := dt.EnumValue(id); ok && v.LongName != "" {
				name = v.LongName
			}
		}
		names = append(names, name)
	}
	return names
}

// Archive is a multi-document container: ReqIF members plus attachments.
type Archive struct {
	Name        string
	Members     []*Member
	Attachments []Attachment
}

// Member is one ReqIF document inside an archive. Err is set, and
// Bundle nil, when the member's bytes could not be parsed.
type Member struct {
	Name   string
	Bundle *Bundle
	Err    error
}

// Attachment is a non-ReqIF archive entry. Names ending in "/" are
// directory markers.
type Attachment struct {
	Name string
	Data []byte
}

// IsDir reports whether the entry is a directory marker.
func (a Attachment) IsDir() bool {
	return len(a.Name) > 0 && (a.Name[len(a.Name)-1] == '/' || a.Name[len(a.Name)-1] == '\\')
}

package sdoc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/reqif"
)

// validBundle is a two-node document the converter accepts as is.
func validBundle() *reqif.Bundle {
	b := &reqif.Bundle{
		Datatypes: []*reqif.Datatype{{
			Identifier: "DT-ENUM",
			Kind:       reqif.KindEnum,
			EnumValues: []reqif.EnumValue{{Identifier: "EV-1", LongName: "Draft"}},
		}},
		SpecTypes: []*reqif.SpecType{
			{
				Identifier: "T-REQ",
				LongName:   "Requirement",
				Category:   reqif.CategorySpecObject,
				Definitions: []*reqif.AttributeDefinition{
					{Identifier: "AD-UID", LongName: "ReqIF.ForeignID", Kind: reqif.KindString},
					{Identifier: "AD-TEXT", LongName: "ReqIF.Text", Kind: reqif.KindXHTML},
					{Identifier: "AD-STATUS", LongName: "Status", Kind: reqif.KindEnum, DatatypeRef: "DT-ENUM"},
				},
			},
			{Identifier: "T-REL", LongName: "Trace", Category: reqif.CategorySpecRelation},
		},
		SpecObjects: []*reqif.SpecObject{
			{Identifier: "O-1", TypeRef: "T-REQ", Attributes: []*reqif.Attribute{
				{DefinitionRef: "AD-UID", Kind: reqif.KindString, Value: reqif.StringValue("R-1")},
				{DefinitionRef: "AD-STATUS", Kind: reqif.KindEnum, Value: reqif.EnumValues("EV-1")},
				{DefinitionRef: "AD-TEXT", Kind: reqif.KindXHTML, Value: reqif.XHTMLValue("<xhtml:p>Hi</xhtml:p>", "Hi")},
			}},
			{Identifier: "O-2", TypeRef: "T-REQ", Attributes: []*reqif.Attribute{
				{DefinitionRef: "AD-UID", Kind: reqif.KindString, Value: reqif.StringValue("R-2")},
			}},
		},
		SpecRelations: []*reqif.SpecRelation{{Identifier: "REL-1", Source: "O-2", Target: "O-1", TypeRef: "T-REL"}},
		Specifications: []*reqif.Specification{{
			Identifier: "S-1",
			LongName:   "Doc",
			Children: []*reqif.HierarchyNode{{
				Identifier: "H-1",
				ObjectRef:  "O-1",
				Children:   []*reqif.HierarchyNode{{Identifier: "H-2", ObjectRef: "O-2"}},
			}},
		}},
	}
	b.Reindex()
	return b
}

func TestConvert(t *testing.T) {
	docs, err := Converter{}.Convert(validBundle())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, "Doc", doc.Title)
	assert.Equal(t, Options{Markup: "HTML"}, doc.Options)

	require.Len(t, doc.Grammar.Elements, 1)
	el := doc.Grammar.Elements[0]
	assert.Equal(t, "REQUIREMENT", el.NodeType)
	assert.Equal(t, []Field{
		{Title: "UID", Required: "False", Type: "String"},
		{Title: "STATEMENT", Required: "False", Type: "String"},
		{Title: "STATUS", Required: "False", Type: "String"},
	}, el.Fields)
	assert.Equal(t, []Relation{{Type: "Parent"}}, el.Relations)

	require.Len(t, doc.Nodes, 1)
	top := doc.Nodes[0]
	assert.Equal(t, "1", top.TOC)
	assert.Equal(t, []FieldValue{
		{Name: "UID", Value: "R-1"},
		{Name: "STATEMENT", Value: "<xhtml:p>Hi</xhtml:p>"},
		{Name: "STATUS", Value: "Draft"},
	}, top.Fields, "fields follow definition order")
	assert.Empty(t, top.Relations)

	require.Len(t, top.Nodes, 1)
	child := top.Nodes[0]
	assert.Equal(t, "1.1", child.TOC)
	assert.Equal(t, []Relation{{Type: "Parent", Value: "O-1"}}, child.Relations)

	assert.Equal(t, 2, CountNodes(docs))
}

func TestConvertTitleFallback(t *testing.T) {
	b := validBundle()
	b.Specifications[0].LongName = " "
	docs, err := Converter{}.Convert(b)
	require.NoError(t, err)
	assert.Equal(t, "S-1", docs[0].Title)
}

func TestDocumentJSON(t *testing.T) {
	docs, err := Converter{}.Convert(validBundle())
	require.NoError(t, err)
	docs[0].SourceFile = "a.reqif"

	data, err := json.Marshal(docs[0])
	require.NoError(t, err)
	out := string(data)

	order := []string{`"_NODE_TYPE":"DOCUMENT"`, `"TITLE":"Doc"`, `"GRAMMAR"`, `"_OPTIONS"`, `"NODES"`, `"_SOURCE_FILE":"a.reqif"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(out, key)
		require.Greater(t, idx, last, "%s out of order in %s", key, out)
		last = idx
	}

	data, err = json.Marshal(docs[0].Nodes[0].Nodes[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"_TOC":"1.1","_NODE_TYPE":"REQUIREMENT","UID":"R-2","RELATIONS":[{"TYPE":"Parent","VALUE":"O-1"}]}`, string(data))
	assert.True(t, strings.HasPrefix(string(data), `{"_TOC":"1.1","_NODE_TYPE":"REQUIREMENT","UID":"R-2"`))
}

func TestDocumentJSONEmpty(t *testing.T) {
	data, err := json.Marshal(&Document{Title: "Empty", Options: Options{Markup: "HTML"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"_NODE_TYPE":"DOCUMENT","TITLE":"Empty","GRAMMAR":{"ELEMENTS":null},
		"_OPTIONS":{"MARKUP":"HTML","ENABLE_MID":false},"NODES":[]}`, string(data))
}

func TestConvertRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *reqif.Bundle)
		message string
	}{
		{
			name:    "no specifications",
			mutate:  func(b *reqif.Bundle) { b.Specifications = nil },
			message: "No specifications found in ReqIF file",
		},
		{
			name:    "unsupported kind",
			mutate:  func(b *reqif.Bundle) { b.SpecTypes[0].Definitions[2].Kind = reqif.KindInteger },
			message: `attribute type "Status": unsupported kind INTEGER`,
		},
		{
			name:    "unsupported value kind",
			mutate:  func(b *reqif.Bundle) { b.SpecObjects[1].Attributes[0].Kind = reqif.KindBoolean },
			message: `attribute type "ReqIF.ForeignID": unsupported kind BOOLEAN`,
		},
		{
			name:    "unnamed type",
			mutate:  func(b *reqif.Bundle) { b.SpecTypes[0].LongName = "" },
			message: `spec type "T-REQ": missing name`,
		},
		{
			name: "duplicate field",
			mutate: func(b *reqif.Bundle) {
				t := b.SpecTypes[0]
				t.Definitions = append(t.Definitions, &reqif.AttributeDefinition{Identifier: "AD-X", LongName: "uid", Kind: reqif.KindString})
			},
			message: `field name "UID": duplicate field in type Requirement`,
		},
		{
			name: "structural field",
			mutate: func(b *reqif.Bundle) {
				t := b.SpecTypes[0]
				t.Definitions = append(t.Definitions, &reqif.AttributeDefinition{Identifier: "AD-X", LongName: "Nodes", Kind: reqif.KindString})
			},
			message: `field name "NODES": reserved field in type Requirement`,
		},
		{
			name: "structural toc field",
			mutate: func(b *reqif.Bundle) {
				t := b.SpecTypes[0]
				t.Definitions = append(t.Definitions, &reqif.AttributeDefinition{Identifier: "AD-X", LongName: "_TOC", Kind: reqif.KindString})
			},
			message: `field name "_TOC": reserved field in type Requirement`,
		},
		{
			name:    "blank value",
			mutate:  func(b *reqif.Bundle) { b.SpecObjects[1].Attributes[0].Value = reqif.StringValue("  ") },
			message: `attribute value "O-2": empty value for ReqIF.ForeignID`,
		},
		{
			name:    "missing value",
			mutate:  func(b *reqif.Bundle) { b.SpecObjects[1].Attributes[0].Value = reqif.Value{} },
			message: `attribute value "O-2": empty value for ReqIF.ForeignID`,
		},
		{
			name:    "dangling hierarchy node",
			mutate:  func(b *reqif.Bundle) { b.Specifications[0].Children[0].Children[0].ObjectRef = "O-9" },
			message: `reference "H-2": spec object O-9 not found`,
		},
		{
			name:    "dangling relation target",
			mutate:  func(b *reqif.Bundle) { b.SpecRelations[0].Target = "O-9" },
			message: `reference "REL-1": relation target O-9 not found`,
		},
		{
			name:    "dangling relation type",
			mutate:  func(b *reqif.Bundle) { b.SpecRelations[0].TypeRef = "T-NOPE" },
			message: `reference "REL-1": relation type T-NOPE not found`,
		},
		{
			name:    "dangling object type",
			mutate:  func(b *reqif.Bundle) { b.SpecObjects[0].TypeRef = "T-NOPE" },
			message: `reference "O-1": spec type T-NOPE not found`,
		},
		{
			name:    "unresolved definition",
			mutate:  func(b *reqif.Bundle) { b.SpecObjects[1].Attributes[0].DefinitionRef = "AD-NOPE" },
			message: `reference "O-2": attribute definition AD-NOPE not found`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBundle()
			tt.mutate(b)
			b.Reindex()

			docs, err := Converter{}.Convert(b)
			require.Error(t, err)
			assert.Nil(t, docs)
			assert.ErrorIs(t, err, rerrors.ErrConversionRejected)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestConvertForeignValuesKeepKeysUnique(t *testing.T) {
	b := validBundle()
	b.SpecTypes = append(b.SpecTypes, &reqif.SpecType{
		Identifier: "T-LINK",
		LongName:   "Link",
		Category:   reqif.CategorySpecRelation,
		Definitions: []*reqif.AttributeDefinition{
			{Identifier: "AD-F-UID", LongName: "uid", Kind: reqif.KindString},
			{Identifier: "AD-F-NODES", LongName: "Nodes", Kind: reqif.KindString},
			{Identifier: "AD-F-TOC", LongName: "_TOC", Kind: reqif.KindString},
			{Identifier: "AD-F-NOTE", LongName: "Note", Kind: reqif.KindString},
			{Identifier: "AD-F-NOTE2", LongName: "note", Kind: reqif.KindString},
		},
	})
	b.SpecObjects[0].Attributes = append(b.SpecObjects[0].Attributes,
		&reqif.Attribute{DefinitionRef: "AD-F-UID", Kind: reqif.KindString, Value: reqif.StringValue("shadow")},
		&reqif.Attribute{DefinitionRef: "AD-F-NODES", Kind: reqif.KindString, Value: reqif.StringValue("field")},
		&reqif.Attribute{DefinitionRef: "AD-F-TOC", Kind: reqif.KindString, Value: reqif.StringValue("9.9")},
		&reqif.Attribute{DefinitionRef: "AD-F-NOTE", Kind: reqif.KindString, Value: reqif.StringValue("first")},
		&reqif.Attribute{DefinitionRef: "AD-F-NOTE2", Kind: reqif.KindString, Value: reqif.StringValue("second")},
	)
	b.Reindex()

	docs, err := Converter{}.Convert(b)
	require.NoError(t, err)

	data, err := json.Marshal(docs[0].Nodes[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"_TOC", "_NODE_TYPE", "UID", "STATEMENT", "STATUS", "NOTE", "NODES"}, objectKeys(t, data))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "1", decoded["_TOC"])
	assert.Equal(t, "R-1", decoded["UID"])
	assert.Equal(t, "first", decoded["NOTE"])
	assert.IsType(t, []any{}, decoded["NODES"])
}

// objectKeys lists the top-level keys of a JSON object in written order,
// duplicates included.
func objectKeys(t *testing.T, data []byte) []string {
	t.Helper()
	dec := json.NewDecoder(bytes.NewReader(data))
	_, err := dec.Token()
	require.NoError(t, err)
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		require.NoError(t, dec.Decode(&skip))
	}
	return keys
}

func TestConvertNilBundle(t *testing.T) {
	_, err := Converter{}.Convert(nil)
	assert.ErrorIs(t, err, rerrors.ErrConversionRejected)
}

func TestConvertMergesNodeTypes(t *testing.T) {
	b := validBundle()
	b.SpecTypes = append(b.SpecTypes, &reqif.SpecType{
		Identifier: "T-REQ2",
		LongName:   "requirement",
		Category:   reqif.CategorySpecObject,
		Definitions: []*reqif.AttributeDefinition{
			{Identifier: "AD-NOTE", LongName: "Note", Kind: reqif.KindString},
		},
	})
	b.SpecObjects[1].TypeRef = "T-REQ2"
	b.SpecObjects[1].Attributes = []*reqif.Attribute{
		{DefinitionRef: "AD-NOTE", Kind: reqif.KindString, Value: reqif.StringValue("n")},
	}
	b.Reindex()

	docs, err := Converter{}.Convert(b)
	require.NoError(t, err)
	require.Len(t, docs[0].Grammar.Elements, 1)
	var titles []string
	for _, f := range docs[0].Grammar.Elements[0].Fields {
		titles = append(titles, f.Title)
	}
	assert.Equal(t, []string{"UID", "STATEMENT", "STATUS", "NOTE"}, titles)
}

func TestCountNodes(t *testing.T) {
	docs := []*Document{
		{Nodes: []*Node{{Nodes: []*Node{{}, {Nodes: []*Node{{}}}}}}},
		{Nodes: []*Node{{}}},
		{},
	}
	assert.Equal(t, 5, CountNodes(docs))
	assert.Zero(t, CountNodes(nil))
}

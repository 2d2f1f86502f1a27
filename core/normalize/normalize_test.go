package normalize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
	"github.com/FocuswithJustin/reqifnorm/core/reqif"
	"github.com/FocuswithJustin/reqifnorm/core/sdoc"
	"github.com/FocuswithJustin/reqifnorm/core/workaround"
)

// MockConverter is a mock implementation of Converter.
type MockConverter struct {
	mock.Mock
}

func (m *MockConverter) Convert(b *reqif.Bundle) ([]*sdoc.Document, error) {
	args := m.Called(b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*sdoc.Document), args.Error(1)
}

// repairable has one dangling relation, which the last pass removes.
func repairable() *reqif.Bundle {
	b := &reqif.Bundle{
		SpecTypes:     []*reqif.SpecType{{Identifier: "T", LongName: "Req"}},
		SpecObjects:   []*reqif.SpecObject{{Identifier: "O"}},
		SpecRelations: []*reqif.SpecRelation{{Identifier: "R", Source: "O", Target: "MISSING"}},
	}
	b.Reindex()
	return b
}

// clean is a bundle none of the workarounds touch.
func clean() *reqif.Bundle {
	b := &reqif.Bundle{SpecTypes: []*reqif.SpecType{{Identifier: "T", LongName: "Req"}}}
	b.Reindex()
	return b
}

func TestConvertDirect(t *testing.T) {
	b := clean()
	docs := []*sdoc.Document{{Title: "Doc"}}
	conv := new(MockConverter)
	conv.On("Convert", b).Return(docs, nil).Once()

	res := (&Orchestrator{Converter: conv}).Convert(b)

	require.True(t, res.Success)
	assert.Equal(t, OutcomeDirect, res.Outcome)
	assert.Empty(t, res.Workarounds)
	assert.Empty(t, res.Error)
	assert.Equal(t, &Output{Comment: Comment, Documents: docs}, res.Output)
	conv.AssertExpectations(t)
}

func TestConvertRepaired(t *testing.T) {
	b := repairable()
	docs := []*sdoc.Document{{Title: "Doc"}}
	conv := new(MockConverter)
	conv.On("Convert", b).Return(nil, rerrors.NewRejected("reference", "R", "relation target MISSING not found")).Once()
	conv.On("Convert", b).Return(docs, nil).Once()

	res := (&Orchestrator{Converter: conv}).Convert(b)

	require.True(t, res.Success)
	assert.Equal(t, OutcomeRepaired, res.Outcome)
	assert.Equal(t, []string{"Removed invalid references: relations:1"}, res.Workarounds)
	assert.Equal(t, res.Workarounds, res.Output.Workarounds)
	assert.Empty(t, b.SpecRelations, "repairs mutate the bundle in place")
	conv.AssertNumberOfCalls(t, "Convert", 2)
}

func TestConvertRepairNoOp(t *testing.T) {
	b := clean()
	rejection := rerrors.NewRejected("", "", "No specifications found in ReqIF file")
	conv := new(MockConverter)
	conv.On("Convert", b).Return(nil, rejection).Once()

	res := (&Orchestrator{Converter: conv}).Convert(b)

	assert.False(t, res.Success)
	assert.Equal(t, OutcomeRepairNoOp, res.Outcome)
	assert.Equal(t, "No specifications found in ReqIF file", res.Error)
	assert.Same(t, rejection, res.Cause, "the original rejection is surfaced unchanged")
	assert.Nil(t, res.Output)
	assert.Nil(t, res.Documents())
	conv.AssertNumberOfCalls(t, "Convert", 1)
}

func TestConvertRepairFailed(t *testing.T) {
	b := repairable()
	conv := new(MockConverter)
	conv.On("Convert", b).Return(nil, rerrors.NewRejected("", "", "first")).Once()
	conv.On("Convert", b).Return(nil, rerrors.NewRejected("", "", "second")).Once()

	res := (&Orchestrator{Converter: conv}).Convert(b)

	assert.False(t, res.Success)
	assert.Equal(t, OutcomeRepairFailed, res.Outcome)
	assert.Equal(t, "second", res.Error)
	assert.Len(t, res.Workarounds, 1, "applied workarounds are reported on failure too")
	conv.AssertNumberOfCalls(t, "Convert", 2)
}

func TestConvertTruncatesError(t *testing.T) {
	b := clean()
	conv := new(MockConverter)
	conv.On("Convert", b).Return(nil, rerrors.NewRejected("", "", strings.Repeat("x", 2000)))

	res := (&Orchestrator{Converter: conv}).Convert(b)
	assert.Len(t, res.Error, DefaultErrorLimit)

	res = (&Orchestrator{Converter: conv, ErrorLimit: 10}).Convert(b)
	assert.Equal(t, strings.Repeat("x", 10), res.Error)
	assert.Len(t, res.Cause.Error(), 2000)
}

func TestConvertDisabledWorkarounds(t *testing.T) {
	b := repairable()
	engine, err := workaround.NewEngine(workaround.PassPruneReferences)
	require.NoError(t, err)
	conv := new(MockConverter)
	conv.On("Convert", b).Return(nil, rerrors.NewRejected("", "", "dangling")).Once()

	res := (&Orchestrator{Converter: conv, Engine: engine}).Convert(b)
	assert.Equal(t, OutcomeRepairNoOp, res.Outcome)
	assert.Len(t, b.SpecRelations, 1)
}

func TestOutputJSON(t *testing.T) {
	out := &Output{Comment: Comment, Documents: []*sdoc.Document{}}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, `{"_COMMENT":"Normalized via StrictDoc.","DOCUMENTS":[]}`, string(data))

	out.Workarounds = []string{"w"}
	data, err = json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, `{"_COMMENT":"Normalized via StrictDoc.","DOCUMENTS":[],"_WORKAROUNDS_APPLIED":["w"]}`, string(data))
}

const needsRepair = `<?xml version="1.0" encoding="UTF-8"?>
<REQ-IF xmlns="http://www.omg.org/spec/ReqIF/20110401/reqif.xsd">
  <CORE-CONTENT><REQ-IF-CONTENT>
    <DATATYPES><DATATYPE-DEFINITION-INTEGER IDENTIFIER="DT-INT"/></DATATYPES>
    <SPEC-TYPES>
      <SPEC-OBJECT-TYPE IDENTIFIER="T-REQ">
        <SPEC-ATTRIBUTES>
          <ATTRIBUTE-DEFINITION-STRING IDENTIFIER="AD-ID" LONG-NAME="ReqIF.ForeignID"/>
          <ATTRIBUTE-DEFINITION-INTEGER IDENTIFIER="AD-PRIO" LONG-NAME="Priority"/>
        </SPEC-ATTRIBUTES>
      </SPEC-OBJECT-TYPE>
    </SPEC-TYPES>
    <SPEC-OBJECTS>
      <SPEC-OBJECT IDENTIFIER="SO-1">
        <TYPE><SPEC-OBJECT-TYPE-REF>T-REQ</SPEC-OBJECT-TYPE-REF></TYPE>
        <VALUES>
          <ATTRIBUTE-VALUE-STRING THE-VALUE="REQ-1"><DEFINITION><ATTRIBUTE-DEFINITION-STRING-REF>AD-ID</ATTRIBUTE-DEFINITION-STRING-REF></DEFINITION></ATTRIBUTE-VALUE-STRING>
          <ATTRIBUTE-VALUE-INTEGER THE-VALUE="3"><DEFINITION><ATTRIBUTE-DEFINITION-INTEGER-REF>AD-PRIO</ATTRIBUTE-DEFINITION-INTEGER-REF></DEFINITION></ATTRIBUTE-VALUE-INTEGER>
        </VALUES>
      </SPEC-OBJECT>
    </SPEC-OBJECTS>
    <SPECIFICATIONS>
      <SPECIFICATION IDENTIFIER="S-1" LONG-NAME="Spec">
        <CHILDREN>
          <SPEC-HIERARCHY IDENTIFIER="H-1"><OBJECT><SPEC-OBJECT-REF>SO-1</SPEC-OBJECT-REF></OBJECT></SPEC-HIERARCHY>
          <SPEC-HIERARCHY IDENTIFIER="H-2"><OBJECT><SPEC-OBJECT-REF>SO-GONE</SPEC-OBJECT-REF></OBJECT></SPEC-HIERARCHY>
        </CHILDREN>
      </SPECIFICATION>
    </SPECIFICATIONS>
  </REQ-IF-CONTENT></CORE-CONTENT>
</REQ-IF>`

func TestProcessBytesEndToEnd(t *testing.T) {
	res := New().ProcessBytes("doc.reqif", []byte(needsRepair))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, OutcomeRepaired, res.Outcome)
	assert.Equal(t, []string{
		"Converted unsupported types to STRING: Priority:INTEGER",
		"Added default names to 1 spec types",
		"Removed invalid references: hierarchy:H-2",
	}, res.Workarounds)

	docs := res.Documents()
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Nodes, 1)
	prio, ok := docs[0].Nodes[0].Field("PRIORITY")
	assert.True(t, ok)
	assert.Equal(t, "3", prio)
	assert.Equal(t, "T_REQ", docs[0].Nodes[0].NodeType)
}

func TestProcessBytesParseError(t *testing.T) {
	res := New().ProcessBytes("bad.reqif", []byte(`<RIF/>`))

	assert.False(t, res.Success)
	assert.Equal(t, OutcomeMalformed, res.Outcome)
	assert.Equal(t, "Parse error: Expected root tag REQ-IF, got RIF", res.Error)
	assert.ErrorIs(t, res.Cause, rerrors.ErrMalformedInput)
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.reqif")
	require.NoError(t, os.WriteFile(path, []byte(needsRepair), 0644))

	res := New().ProcessFile(path)
	assert.True(t, res.Success, res.Error)

	res = New().ProcessFile(filepath.Join(dir, "missing.reqif"))
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Error, ParseErrorPrefix), res.Error)
}

func TestInputFailureTruncates(t *testing.T) {
	res := InputFailure(ArchiveErrorPrefix, rerrors.NewMalformed("", strings.Repeat("y", 1000), nil))
	assert.Equal(t, ArchiveErrorPrefix+strings.Repeat("y", InputErrorLimit), res.Error)
}

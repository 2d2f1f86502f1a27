package workaround

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/reqifnorm/core/reqif"
)

func TestRunRecoversFault(t *testing.T) {
	faulty := Pass{
		Name: "faulty",
		Apply: func(b *reqif.Bundle) Outcome {
			var m map[string]int
			m["boom"]++
			return Outcome{Changes: []string{"never"}}
		},
	}

	out := Run(faulty, &reqif.Bundle{})
	assert.False(t, out.Changed())
	assert.Equal(t, Unchanged, out)
}

func TestRunNilBundle(t *testing.T) {
	for _, p := range catalog {
		assert.False(t, Run(p, nil).Changed(), p.Name)
	}
}

func TestPassNames(t *testing.T) {
	assert.Equal(t, []string{
		"coerce-types", "fill-type-names", "rename-duplicates", "prune-empty", "prune-references",
	}, PassNames())
}

func TestNewEngine(t *testing.T) {
	e, err := NewEngine(PassPruneEmpty, PassCoerceTypes)
	require.NoError(t, err)
	assert.Equal(t, []string{"fill-type-names", "rename-duplicates", "prune-references"}, e.Passes())

	_, err = NewEngine("reorder-everything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown workaround "reorder-everything"`)

	assert.Equal(t, PassNames(), Default().Passes())
}

func TestEngineApply(t *testing.T) {
	b := &reqif.Bundle{
		SpecTypes: []*reqif.SpecType{{
			Identifier: "T",
			Definitions: []*reqif.AttributeDefinition{
				def("AD-1", "Comment", reqif.KindString),
				def("AD-2", "comment", reqif.KindString),
				def("AD-3", "Prio", reqif.KindInteger),
			},
		}},
		SpecObjects: []*reqif.SpecObject{{Identifier: "O", TypeRef: "T", Attributes: []*reqif.Attribute{
			attr("AD-1", reqif.KindString, reqif.StringValue("")),
			attr("AD-3", reqif.KindInteger, reqif.IntValue(1)),
		}}},
		SpecRelations: []*reqif.SpecRelation{{Source: "O", Target: "X"}},
	}
	b.Reindex()

	summaries := Default().Apply(b)
	assert.Equal(t, []string{
		"Converted unsupported types to STRING: Prio:INTEGER",
		"Added default names to 1 spec types",
		"Renamed duplicate fields: comment -> comment_2",
		"Removed empty attributes from 1 objects",
		"Removed invalid references: relations:1",
	}, summaries)

	assert.Empty(t, Default().Apply(b), "a repaired bundle needs no further repair")
}

func TestEngineApplyDisabled(t *testing.T) {
	b := &reqif.Bundle{SpecTypes: []*reqif.SpecType{{Identifier: "T"}}}
	e, err := NewEngine(PassFillTypeNames)
	require.NoError(t, err)
	assert.Empty(t, e.Apply(b))
	assert.Empty(t, b.SpecTypes[0].LongName)
}

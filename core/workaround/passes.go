package workaround

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/reqifnorm/core/reqif"
	"github.com/FocuswithJustin/reqifnorm/core/sdoc"
)

// DefaultTypeName names a spec type that has neither name nor identifier.
const DefaultTypeName = "REQUIREMENT"

var unsupportedKinds = map[reqif.AttributeKind]bool{
	reqif.KindBoolean: true,
	reqif.KindReal:    true,
	reqif.KindInteger: true,
	reqif.KindDate:    true,
}

// CoerceUnsupportedTypes rewrites BOOLEAN, REAL, INTEGER and DATE
// definitions to STRING and converts the matching attribute values to
// their text form. Items are "<name>:<KIND>".
func CoerceUnsupportedTypes(b *reqif.Bundle) Outcome {
	var changes []string
	var defs []*reqif.AttributeDefinition
	coerced := make(map[string]bool)

	for _, t := range b.SpecTypes {
		for _, d := range t.Definitions {
			if unsupportedKinds[d.Kind] {
				changes = append(changes, fmt.Sprintf("%s:%s", d.LongName, d.Kind))
				defs = append(defs, d)
				coerced[d.Identifier] = true
			}
		}
	}

	type valueFix struct {
		attr  *reqif.Attribute
		value reqif.Value
	}
	var values []valueFix
	orphans := make(map[string]bool)

	for _, obj := range b.SpecObjects {
		for _, a := range obj.Attributes {
			byKind := unsupportedKinds[a.Kind]
			byDef := coerced[a.DefinitionRef] && !a.Value.IsNone() && !a.Value.IsString()
			if !byKind && !byDef {
				continue
			}
			if byKind && !coerced[a.DefinitionRef] && !orphans[a.DefinitionRef] {
				// A value whose definition is missing or already STRING.
				orphans[a.DefinitionRef] = true
				changes = append(changes, fmt.Sprintf("%s:%s", a.DefinitionRef, a.Kind))
			}
			v := a.Value
			if !v.IsNone() && !v.IsString() {
				v = reqif.StringValue(v.Text())
			}
			values = append(values, valueFix{a, v})
		}
	}

	if len(changes) == 0 {
		return Unchanged
	}
	for _, d := range defs {
		d.Kind = reqif.KindString
	}
	for _, f := range values {
		f.attr.Kind = reqif.KindString
		f.attr.Value = f.value
	}
	return Outcome{Changes: changes}
}

// FillMissingTypeNames gives every spec type with a blank display name
// its identifier, or DefaultTypeName. Items are type identifiers.
func FillMissingTypeNames(b *reqif.Bundle) Outcome {
	var changes []string
	var fixes []*reqif.SpecType
	for _, t := range b.SpecTypes {
		if strings.TrimSpace(t.LongName) == "" {
			changes = append(changes, t.Identifier)
			fixes = append(fixes, t)
		}
	}
	for _, t := range fixes {
		if strings.TrimSpace(t.Identifier) != "" {
			t.LongName = t.Identifier
		} else {
			t.LongName = DefaultTypeName
		}
	}
	return Outcome{Changes: changes}
}

// RenameDuplicateFields renames attribute definitions whose normalized
// field key collides with an earlier one in the same spec type, or with
// a structural node key, by appending "_<n>" to the original display
// name. Renamed keys are reserved too, so no two definitions share a key
// afterwards. Items are "old -> new".
func RenameDuplicateFields(b *reqif.Bundle) Outcome {
	type rename struct {
		def  *reqif.AttributeDefinition
		name string
	}
	var changes []string
	var renames []rename

	for _, t := range b.SpecTypes {
		seen := make(map[string]int, len(t.Definitions)+len(sdoc.StructuralKeys))
		for _, k := range sdoc.StructuralKeys {
			seen[k] = 1
		}
		for _, d := range t.Definitions {
			key := sdoc.DefinitionKey(d)
			n, dup := seen[key]
			if !dup {
				seen[key] = 1
				continue
			}

			var name, newKey string
			for {
				n++
				name = d.LongName + "_" + strconv.Itoa(n)
				newKey = sdoc.DefinitionKey(&reqif.AttributeDefinition{Identifier: d.Identifier, LongName: name})
				if _, taken := seen[newKey]; !taken {
					break
				}
			}
			seen[key] = n
			seen[newKey] = 1

			renames = append(renames, rename{d, name})
			changes = append(changes, fmt.Sprintf("%s -> %s", d.LongName, name))
		}
	}

	for _, r := range renames {
		r.def.LongName = r.name
	}
	return Outcome{Changes: changes}
}

// PruneEmptyValues drops attributes with no value or whitespace-only
// text. Items are the identifiers of objects that lost an attribute.
func PruneEmptyValues(b *reqif.Bundle) Outcome {
	type prune struct {
		obj  *reqif.SpecObject
		keep []*reqif.Attribute
	}
	var changes []string
	var prunes []prune

	for _, obj := range b.SpecObjects {
		keep := make([]*reqif.Attribute, 0, len(obj.Attributes))
		for _, a := range obj.Attributes {
			if !a.Value.Blank() {
				keep = append(keep, a)
			}
		}
		if len(keep) < len(obj.Attributes) {
			prunes = append(prunes, prune{obj, keep})
			changes = append(changes, obj.Identifier)
		}
	}

	for _, p := range prunes {
		p.obj.Attributes = p.keep
	}
	return Outcome{Changes: changes}
}

// PruneDanglingReferences removes hierarchy subtrees whose node points at
// a missing spec object (item "hierarchy:<node id>") and relations with a
// missing source, target or relation type (item "relations:<count>"). The
// relation index is rebuilt whether or not anything was removed.
func PruneDanglingReferences(b *reqif.Bundle) Outcome {
	objects := make(map[string]bool, len(b.SpecObjects))
	for _, o := range b.SpecObjects {
		objects[o.Identifier] = true
	}
	types := make(map[string]bool, len(b.SpecTypes))
	for _, t := range b.SpecTypes {
		types[t.Identifier] = true
	}

	var changes []string
	var updates []childUpdate
	for _, spec := range b.Specifications {
		removed, u := planTree(&spec.Children, objects)
		changes = append(changes, removed...)
		updates = append(updates, u...)
	}

	relations := make([]*reqif.SpecRelation, 0, len(b.SpecRelations))
	for _, r := range b.SpecRelations {
		if !objects[r.Source] || !objects[r.Target] {
			continue
		}
		if r.TypeRef != "" && !types[r.TypeRef] {
			continue
		}
		relations = append(relations, r)
	}
	dropped := len(b.SpecRelations) - len(relations)
	if dropped > 0 {
		changes = append(changes, fmt.Sprintf("relations:%d", dropped))
	}

	for _, u := range updates {
		*u.target = u.kept
	}
	if dropped > 0 {
		b.SpecRelations = relations
	}
	b.RebuildRelationIndex()
	return Outcome{Changes: changes}
}

type childUpdate struct {
	target *[]*reqif.HierarchyNode
	kept   []*reqif.HierarchyNode
}

// planTree filters a hierarchy in post-order with an explicit stack. A
// node with a dangling object reference is dropped with its subtree and
// only the node itself is reported.
func planTree(roots *[]*reqif.HierarchyNode, objects map[string]bool) ([]string, []childUpdate) {
	type frame struct {
		target *[]*reqif.HierarchyNode
		next   int
		kept   []*reqif.HierarchyNode
	}

	var removed []string
	var updates []childUpdate

	stack := []*frame{{target: roots}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		children := *f.target
		if f.next < len(children) {
			c := children[f.next]
			f.next++
			if !objects[c.ObjectRef] {
				removed = append(removed, "hierarchy:"+c.Identifier)
				continue
			}
			f.kept = append(f.kept, c)
			stack = append(stack, &frame{target: &c.Children})
			continue
		}

		stack = stack[:len(stack)-1]
		if len(f.kept) != len(children) {
			updates = append(updates, childUpdate{f.target, f.kept})
		}
	}
	return removed, updates
}

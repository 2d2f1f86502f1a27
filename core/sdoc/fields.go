package sdoc

import (
	"regexp"
	"strings"

	"github.com/FocuswithJustin/reqifnorm/core/reqif"
)

// FieldMappingVersion identifies the field-title normalization below.
// Bump it whenever reservedFieldTitles or SafeFieldName change; the
// duplicate-field repair depends on matching this converter exactly.
const FieldMappingVersion = "1"

// reservedFieldTitles maps standard ReqIF attribute names onto target
// schema field titles. Anything else keeps its own name.
var reservedFieldTitles = map[string]string{
	"ReqIF.ForeignID": "UID",
	"ReqIF.Name":      "TITLE",
	"ReqIF.Text":      "STATEMENT",
}

var unsafeFieldChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// MapFieldTitle maps a ReqIF attribute display name to its target field title.
func MapFieldTitle(title string) string {
	if mapped, ok := reservedFieldTitles[title]; ok {
		return mapped
	}
	return title
}

// SafeFieldName upper-cases title, turns '.' and '-' into '_' and drops
// every remaining character outside [A-Za-z0-9_].
func SafeFieldName(title string) string {
	s := strings.ToUpper(title)
	s = strings.NewReplacer(".", "_", "-", "_").Replace(s)
	return unsafeFieldChars.ReplaceAllString(s, "")
}

// FieldKey is the normalized field name an attribute definition becomes.
func FieldKey(title string) string {
	return SafeFieldName(MapFieldTitle(title))
}

// DefinitionKey is the field name used for an attribute definition. A
// definition without a display name falls back to its identifier.
func DefinitionKey(def *reqif.AttributeDefinition) string {
	if key := FieldKey(def.LongName); key != "" {
		return key
	}
	return FieldKey(def.Identifier)
}

// Package preprocess normalizes raw ReqIF text before structural parsing.
//
// Producers disagree about byte-order marks, emit comments or junk ahead
// of the XML declaration, and qualify ReqIF elements with a namespace
// prefix the parser does not expect. Preprocess repairs all three without
// ever failing; Decode turns raw bytes into text first.
package preprocess

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	rerrors "github.com/FocuswithJustin/reqifnorm/core/errors"
)

const bom = "\ufeff"

var (
	xmlDecl = regexp.MustCompile(`<\?xml\s[^?]*\?>`)

	// Only ReqIF element names are upper-case; xhtml:div and friends keep their prefix.
	prefixedOpen  = regexp.MustCompile(`<(?:reqif|r):([A-Z])`)
	prefixedClose = regexp.MustCompile(`</(?:reqif|r):([A-Z])`)

	rootTag         = regexp.MustCompile(`<REQ-IF(?:\s[^>]*)?>`)
	defaultNS       = regexp.MustCompile(`\sxmlns\s*=\s*["']`)
	prefixedNSDecl  = regexp.MustCompile(`\s+xmlns:(?:reqif|r)\s*=\s*(?:"[^"]*"|'[^']*')`)
	prefixedNSToken = regexp.MustCompile(`xmlns:(?:reqif|r)(\s*=)`)

	utf16Decl = regexp.MustCompile(`^((?:\x{feff})*<\?xml\s[^?]*encoding\s*=\s*["'])(?i:utf-16(?:le|be)?)(["'])`)
)

// Preprocess applies the fixed repair steps in order. It is pure and
// idempotent: Preprocess(Preprocess(x)) == Preprocess(x).
func Preprocess(content string) string {
	for strings.HasPrefix(content, bom) {
		content = content[len(bom):]
	}

	if loc := xmlDecl.FindStringIndex(content); loc != nil {
		content = content[loc[0]:]
	}

	content = prefixedOpen.ReplaceAllString(content, "<$1")
	content = prefixedClose.ReplaceAllString(content, "</$1")

	return normalizeRootNamespace(content)
}

// normalizeRootNamespace rewrites the prefixed ReqIF namespace declaration
// on the root element into the default form, or drops it when a default
// declaration already exists.
func normalizeRootNamespace(content string) string {
	loc := rootTag.FindStringIndex(content)
	if loc == nil {
		return content
	}
	tag := content[loc[0]:loc[1]]

	var fixed string
	if defaultNS.MatchString(tag) {
		fixed = prefixedNSDecl.ReplaceAllString(tag, "")
	} else {
		first := prefixedNSToken.FindStringIndex(tag)
		if first == nil {
			return content
		}
		// Promote the first declaration; any further one would duplicate xmlns.
		head := tag[:first[0]] + prefixedNSToken.ReplaceAllString(tag[first[0]:first[1]], "xmlns$1")
		fixed = head + prefixedNSDecl.ReplaceAllString(tag[first[1]:], "")
	}
	if fixed == tag {
		return content
	}
	return content[:loc[0]] + fixed + content[loc[1]:]
}

// Decode converts raw document bytes to text. UTF-8 with or without a
// byte-order mark and UTF-16 (LE or BE) with a byte-order mark are
// accepted; anything that does not decode to valid UTF-8 is malformed.
func Decode(data []byte) (string, error) {
	if !bytes.HasPrefix(data, []byte{0xFF, 0xFE}) && !bytes.HasPrefix(data, []byte{0xFE, 0xFF}) {
		if !utf8.Valid(data) {
			return "", rerrors.NewMalformed("", "bad encoding: input is not valid UTF-8", nil)
		}
		return string(data), nil
	}

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", rerrors.NewMalformed("", "bad encoding", err)
	}
	if !utf8.Valid(out) {
		return "", rerrors.NewMalformed("", "bad encoding: decoded text is not valid UTF-8", nil)
	}
	// The text is UTF-8 now; a stale declaration would make the XML
	// reader decode it a second time.
	return utf16Decl.ReplaceAllString(string(out), "${1}UTF-8${2}"), nil
}

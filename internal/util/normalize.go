// Package util provides shared helpers for the ingestion pipeline.
package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes characters and strips combining marks, so
// "André" and "Andre" compare equal.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldDiacritics removes diacritic marks from a string.
func FoldDiacritics(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizePersonName canonicalizes a person name for matching: diacritics
// folded, case folded, DICOM caret separators and surrounding whitespace
// collapsed to single spaces. "DOE^JANE", "Doe, Jane" and "doe jane" all
// normalize to "doe jane".
func NormalizePersonName(name string) string {
	s := FoldDiacritics(name)
	s = strings.ToLower(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '^' || r == ',' || unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

// SamePerson reports whether two person names agree after normalization.
// Empty names never agree.
func SamePerson(a, b string) bool {
	na, nb := NormalizePersonName(a), NormalizePersonName(b)
	return na != "" && na == nb
}
